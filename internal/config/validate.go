package config

import "fmt"

// Severity classifies validation findings. Errors block a run; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding with a JSON-path-ish location.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// ValidatePipeline checks a pipeline config for structural problems before a
// run starts. It returns all findings rather than stopping at the first so a
// broken config can be fixed in one pass.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if p.Source.Kind != "file" {
		errf("source.kind", "must be %q, got %q", "file", p.Source.Kind)
	}
	if p.Source.File == nil || p.Source.File.Path == "" {
		errf("source.file.path", "is required")
	}

	if !oneOf(p.Parser.Kind, ParserKinds) {
		errf("parser.kind", "must be one of %v, got %q", ParserKinds, p.Parser.Kind)
	}

	if p.OLTP.DSN == "" {
		errf("oltp.dsn", "is required")
	}

	if !oneOf(p.Warehouse.Kind, WarehouseKinds) {
		errf("warehouse.kind", "must be one of %v, got %q", WarehouseKinds, p.Warehouse.Kind)
	}
	if p.Warehouse.DSN == "" {
		errf("warehouse.dsn", "is required")
	}

	if p.Cleanse.DateLayout == "" {
		warnf("cleanse.date_layout", "not set; defaulting to 2006-01-02")
	}
	if p.Runtime.BatchSize < 0 {
		errf("runtime.batch_size", "must be >= 0, got %d", p.Runtime.BatchSize)
	}

	return issues
}

// HasErrors reports whether any issue is severity error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
