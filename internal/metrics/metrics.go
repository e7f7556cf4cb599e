// Package metrics is a tiny instrumentation facade. Pipeline code records
// counters and duration samples against whatever Backend the process
// configured; the default backend discards everything, so instrumented code
// pays nothing when metrics are off.
package metrics

import "sync/atomic"

// Metric names emitted by the pipeline.
const (
	// StageTotal counts stage executions; labels: stage, status.
	StageTotal = "load_stage_total"
	// RecordsTotal counts processed records; labels: kind
	// (read, kept, dropped, quarantined, facts).
	RecordsTotal = "load_records_total"
	// BatchesTotal counts completed batch runs.
	BatchesTotal = "load_batches_total"
	// StageDurationSeconds samples stage wall time; labels: stage, status.
	StageDurationSeconds = "load_stage_duration_seconds"
)

// Labels attaches dimensions to a metric sample.
type Labels map[string]string

// Backend receives metric samples. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits any buffered samples now.
	Flush() error

	// Close stops background work and performs a final Flush.
	Close() error
}

// nopBackend drops everything.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }

// holder gives every stored backend the same concrete type; atomic.Value
// requires that.
type holder struct {
	b Backend
}

var current atomic.Value

func init() {
	current.Store(holder{b: nopBackend{}})
}

// SetBackend installs the process-wide backend. Call once at startup, before
// pipeline work begins.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(holder{b: b})
}

func backend() Backend {
	return current.Load().(holder).b
}

// IncCounter adds delta to a counter on the configured backend.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the configured backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush flushes the configured backend.
func Flush() error { return backend().Flush() }

// Close closes the configured backend and resets it to the no-op backend.
func Close() error {
	b := backend()
	SetBackend(nil)
	return b.Close()
}
