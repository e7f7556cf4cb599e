package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to construct a Repository.
type Config struct {
	// Kind must match a registered backend kind ("postgres", "sqlite", "mssql").
	Kind string
	DSN  string

	// BatchSize is the page size for bulk writes. <= 0 means DefaultBatchSize.
	BatchSize int
}

// DefaultBatchSize is the bulk-write page size used when none is configured.
const DefaultBatchSize = 1000

// PageSize resolves the effective bulk-write page size.
func (c Config) PageSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// Repository is the warehouse write/read boundary for one load run.
//
// Upsert methods are idempotent and transactional per call: pages of rows are
// written inside a single transaction, so a failing page rolls the whole
// phase back. Logical behavior is identical to row-at-a-time upserts.
type Repository interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureSchema creates the star-schema tables, constraints, and fact
	// indexes if they do not exist. Idempotent.
	EnsureSchema(ctx context.Context) error

	// UpsertShops inserts new shops and overwrites descriptive attributes of
	// existing ones, keyed by the source shop id. Surrogate keys are stable
	// across updates (Type-1 dimension).
	UpsertShops(ctx context.Context, rows []ShopRow) error

	// UpsertProducts mirrors UpsertShops for the product dimension.
	UpsertProducts(ctx context.Context, rows []ProductRow) error

	// InsertDates inserts calendar dates not yet present in the date
	// dimension. Conflicts on an existing date are skipped: date attributes
	// never change.
	InsertDates(ctx context.Context, rows []DateRow) error

	// ShopKeys returns the source shop id -> surrogate key map.
	ShopKeys(ctx context.Context) (map[int64]int64, error)

	// ProductKeys returns the source article id -> surrogate key map.
	ProductKeys(ctx context.Context) (map[int64]int64, error)

	// DateKeys returns the DayKey -> surrogate key map.
	DateKeys(ctx context.Context) (map[string]int64, error)

	// UpsertFacts writes aggregated fact rows: an existing
	// (date, shop, product) key has its measures replaced and load timestamp
	// refreshed; new keys are inserted. Returns the number of rows written.
	UpsertFacts(ctx context.Context, rows []FactRow) (int64, error)
}

// ---- backend factory registry ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]factory{}
)

// Register registers a warehouse backend under a kind. Backend packages call
// this from init(); the listed kind becomes the lookup key used by New.
//
// Panics on empty kind, nil factory, or duplicate registration. Failing fast
// here avoids ambiguous backend selection at run time.
func Register(kind string, f factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	registry[kind] = f
}

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing Kind")
	}

	registryMu.RLock()
	f := registry[cfg.Kind]
	registryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported warehouse.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
