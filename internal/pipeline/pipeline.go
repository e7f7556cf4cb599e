// Package pipeline orchestrates one warehouse load: read the sales export,
// cleanse it, refresh the dimensions from the operational database, resolve
// names to surrogate keys, aggregate, and upsert the fact table.
//
// Stages run sequentially; each phase that writes does so inside its own
// transaction (the Repository's responsibility), so an interrupted run leaves
// the warehouse at a phase boundary and a rerun converges to the same state.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"salesdwh/internal/batch"
	"salesdwh/internal/cleanse"
	"salesdwh/internal/config"
	"salesdwh/internal/metrics"
	"salesdwh/internal/resolve"
	"salesdwh/internal/source"
	"salesdwh/internal/warehouse"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes load runs against a fixed operational source and warehouse.
type Runner struct {
	Source source.Source
	Repo   warehouse.Repository
	Logger Logger
}

// Report summarizes one completed run.
type Report struct {
	RowsRead    int
	RowsSkipped int // malformed lines dropped by the reader

	Cleanse cleanse.Stats
	Resolve resolve.Report

	Shops    int
	Products int
	Dates    int

	FactRows     int   // aggregated rows sent to the warehouse
	FactsWritten int64 // rows the backend reported written

	Duration time.Duration
}

// Run executes the full load described by cfg.
//
// Row-level problems (bad dates, unknown names, names whose hierarchy never
// made it into a dimension) are dropped and counted in the Report; Run fails
// only on structural problems: unreadable input, a missing required column,
// an empty batch, or database errors.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (*Report, error) {
	if r.Source == nil || r.Repo == nil {
		return nil, fmt.Errorf("pipeline: Source and Repo are required")
	}
	if cfg.Source.File == nil {
		return nil, fmt.Errorf("pipeline: source.file is required")
	}

	logf := r.logger()
	start := time.Now()
	rep := &Report{}

	// Extract + cleanse.
	records, err := stage(logf, "cleanse", func() ([]cleanse.Record, error) {
		table, err := batch.Load(cfg.Source.File.Path, cfg.Parser)
		if err != nil {
			return nil, err
		}
		rep.RowsRead = len(table.Rows)
		rep.RowsSkipped = table.Skipped

		records, stats, err := cleanse.Clean(table, cleanse.Options{DateLayout: cfg.Cleanse.DateLayout})
		if err != nil {
			return nil, err
		}
		rep.Cleanse = stats
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	logf("stage=cleanse rows_read=%d rows_kept=%d rows_dropped=%d", rep.Cleanse.Total, rep.Cleanse.Kept, rep.Cleanse.Dropped())
	metrics.IncCounter(metrics.RecordsTotal, float64(rep.Cleanse.Total), metrics.Labels{"kind": "read"})
	metrics.IncCounter(metrics.RecordsTotal, float64(rep.Cleanse.Kept), metrics.Labels{"kind": "kept"})
	metrics.IncCounter(metrics.RecordsTotal, float64(rep.Cleanse.Dropped()), metrics.Labels{"kind": "dropped"})

	// Schema.
	if cfg.Warehouse.AutoCreateTables {
		if _, err := stage(logf, "schema", func() (struct{}, error) {
			return struct{}{}, r.Repo.EnsureSchema(ctx)
		}); err != nil {
			return nil, err
		}
	}

	// Dimensions from the operational hierarchies.
	lk, err := stage(logf, "dims", func() (resolve.Lookups, error) {
		return r.loadDimensions(ctx, rep)
	})
	if err != nil {
		return nil, err
	}
	logf("stage=dims shops=%d products=%d", rep.Shops, rep.Products)

	// Resolution.
	rows, resRep := resolve.Resolve(records, lk)
	rep.Resolve = resRep
	if n := resRep.MissingShopKeys + resRep.MissingProductKeys; n > 0 {
		// Usually an incomplete hierarchy in the operational database: the
		// name exists but its inner-joined dimension row does not.
		logf("stage=resolve missing_surrogate_keys=%d", n)
	}
	if resRep.Dropped() > 0 {
		logf("stage=resolve quarantined=%d shop_samples=%q article_samples=%q",
			resRep.Dropped(), resRep.ShopSamples, resRep.ArticleSamples)
		metrics.IncCounter(metrics.RecordsTotal, float64(resRep.Dropped()), metrics.Labels{"kind": "quarantined"})
	}

	// Date dimension for the days this batch touches.
	dateKeys, err := stage(logf, "dates", func() (map[string]int64, error) {
		return r.loadDates(ctx, rows, rep)
	})
	if err != nil {
		return nil, err
	}

	// Aggregate and upsert facts.
	facts, err := aggregate(rows, dateKeys)
	if err != nil {
		return nil, err
	}
	rep.FactRows = len(facts)

	written, err := stage(logf, "facts", func() (int64, error) {
		return r.Repo.UpsertFacts(ctx, facts)
	})
	if err != nil {
		return nil, err
	}
	rep.FactsWritten = written
	logf("stage=facts aggregated=%d written=%d", rep.FactRows, rep.FactsWritten)
	metrics.IncCounter(metrics.RecordsTotal, float64(rep.FactRows), metrics.Labels{"kind": "facts"})
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)

	rep.Duration = time.Since(start).Truncate(time.Millisecond)
	logf("stage=done job=%s duration=%s", cfg.Job, rep.Duration)
	return rep, nil
}

// loadDimensions flattens the operational hierarchies, upserts both
// dimensions, and returns the lookup tables resolution needs.
func (r *Runner) loadDimensions(ctx context.Context, rep *Report) (resolve.Lookups, error) {
	var lk resolve.Lookups

	shops, err := r.Source.ShopHierarchy(ctx)
	if err != nil {
		return lk, fmt.Errorf("shop hierarchy: %w", err)
	}
	products, err := r.Source.ProductHierarchy(ctx)
	if err != nil {
		return lk, fmt.Errorf("product hierarchy: %w", err)
	}
	rep.Shops = len(shops)
	rep.Products = len(products)

	if err := r.Repo.UpsertShops(ctx, shops); err != nil {
		return lk, err
	}
	if err := r.Repo.UpsertProducts(ctx, products); err != nil {
		return lk, err
	}

	if lk.ShopIDs, err = r.Source.ShopIDsByName(ctx); err != nil {
		return lk, fmt.Errorf("shop name lookup: %w", err)
	}
	if lk.ArticleIDs, err = r.Source.ArticleIDsByName(ctx); err != nil {
		return lk, fmt.Errorf("article name lookup: %w", err)
	}
	if lk.ShopKeys, err = r.Repo.ShopKeys(ctx); err != nil {
		return lk, err
	}
	if lk.ProductKeys, err = r.Repo.ProductKeys(ctx); err != nil {
		return lk, err
	}
	return lk, nil
}

// loadDates inserts the distinct days this batch touches and returns the
// day -> surrogate key map for them.
func (r *Runner) loadDates(ctx context.Context, rows []resolve.Row, rep *Report) (map[string]int64, error) {
	seen := map[string]bool{}
	var dates []warehouse.DateRow
	for _, row := range rows {
		k := warehouse.DayKey(row.Date)
		if seen[k] {
			continue
		}
		seen[k] = true
		dates = append(dates, warehouse.NewDateRow(row.Date))
	}
	rep.Dates = len(dates)

	if err := r.Repo.InsertDates(ctx, dates); err != nil {
		return nil, err
	}
	keys, err := r.Repo.DateKeys(ctx)
	if err != nil {
		return nil, err
	}
	for k := range seen {
		if _, ok := keys[k]; !ok {
			return nil, fmt.Errorf("pipeline: date %s missing from date dimension after insert", k)
		}
	}
	return keys, nil
}

// factKey identifies one grain cell of the fact table.
type factKey struct {
	dateID     int64
	shopKey    int64
	productKey int64
}

// aggregate sums quantity and turnover per (date, shop, product). Input
// order does not affect the result; output is sorted by key so batches are
// deterministic.
func aggregate(rows []resolve.Row, dateKeys map[string]int64) ([]warehouse.FactRow, error) {
	sums := make(map[factKey]*warehouse.FactRow, len(rows))

	for _, row := range rows {
		dateID, ok := dateKeys[warehouse.DayKey(row.Date)]
		if !ok {
			return nil, fmt.Errorf("pipeline: no date key for %s", warehouse.DayKey(row.Date))
		}
		k := factKey{dateID: dateID, shopKey: row.ShopKey, productKey: row.ProductKey}
		f, ok := sums[k]
		if !ok {
			f = &warehouse.FactRow{
				DateKey:    k.dateID,
				ShopKey:    k.shopKey,
				ProductKey: k.productKey,
				Turnover:   decimal.Zero,
			}
			sums[k] = f
		}
		f.Quantity += row.Quantity
		f.Turnover = f.Turnover.Add(row.Turnover)
	}

	out := make([]warehouse.FactRow, 0, len(sums))
	for _, f := range sums {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DateKey != b.DateKey {
			return a.DateKey < b.DateKey
		}
		if a.ShopKey != b.ShopKey {
			return a.ShopKey < b.ShopKey
		}
		return a.ProductKey < b.ProductKey
	})
	return out, nil
}

// stage runs fn with duration logging and metrics under a fixed stage name.
func stage[T any](logf func(format string, v ...any), name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()

	status := "ok"
	if err != nil {
		status = "error"
	}
	dur := time.Since(start).Truncate(time.Millisecond)
	metrics.IncCounter(metrics.StageTotal, 1, metrics.Labels{"stage": name, "status": status})
	metrics.ObserveHistogram(metrics.StageDurationSeconds, time.Since(start).Seconds(), metrics.Labels{"stage": name, "status": status})

	if err != nil {
		logf("stage=%s status=error duration=%s err=%v", name, dur, err)
		return out, fmt.Errorf("stage %s: %w", name, err)
	}
	logf("stage=%s ok duration=%s", name, dur)
	return out, nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
