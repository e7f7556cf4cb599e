// Package postgres implements warehouse.Repository on PostgreSQL via pgx.
//
// Upserts use INSERT ... ON CONFLICT; every Upsert/Insert call runs its pages
// inside one transaction so a mid-phase failure leaves nothing half-written.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"salesdwh/internal/warehouse"
)

type Repo struct {
	pool *pgxpool.Pool
	page int
}

func init() {
	warehouse.Register("postgres", New)
}

// New creates a Postgres-backed repository.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, page: cfg.PageSize()}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ddlStatements creates the star schema. Order matters: the fact table
// references all three dimensions.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_date (
		dateid   SERIAL PRIMARY KEY,
		fulldate DATE UNIQUE,
		day      INT NOT NULL,
		month    INT NOT NULL,
		quarter  INT NOT NULL,
		year     INT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dim_shop (
		shop_key     BIGSERIAL PRIMARY KEY,
		shopid_src   BIGINT UNIQUE,
		shop_name    VARCHAR(255) NOT NULL,
		city_name    VARCHAR(255) NOT NULL,
		region_name  VARCHAR(255) NOT NULL,
		country_name VARCHAR(255) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dim_product (
		product_key           BIGSERIAL PRIMARY KEY,
		articleid_src         BIGINT UNIQUE,
		article_name          VARCHAR(255) NOT NULL,
		price_eur             NUMERIC(12,2) NOT NULL,
		product_group_name    VARCHAR(255) NOT NULL,
		product_family_name   VARCHAR(255) NOT NULL,
		product_category_name VARCHAR(255) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		dateid       INT NOT NULL REFERENCES dim_date(dateid),
		shop_key     BIGINT NOT NULL REFERENCES dim_shop(shop_key),
		product_key  BIGINT NOT NULL REFERENCES dim_product(product_key),
		quantity     BIGINT NOT NULL CHECK (quantity >= 0),
		turnover_eur NUMERIC(14,2) NOT NULL CHECK (turnover_eur >= 0),
		load_ts      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (dateid, shop_key, product_key)
	);`,
	`CREATE INDEX IF NOT EXISTS ix_fact_sales_shop ON fact_sales(shop_key);`,
	`CREATE INDEX IF NOT EXISTS ix_fact_sales_product ON fact_sales(product_key);`,
}

// EnsureSchema creates tables, constraints, and fact indexes. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range ddlStatements {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertShops writes shop dimension rows, Type-1: existing natural ids get
// their descriptive attributes overwritten, surrogate keys untouched.
func (r *Repo) UpsertShops(ctx context.Context, rows []warehouse.ShopRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		sql, args := buildShopUpsertSQL(rows[start:end])
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert dim_shop: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func buildShopUpsertSQL(rows []warehouse.ShopRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_shop (shopid_src, shop_name, city_name, region_name, country_name) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(&b, i*5, 5)
		args = append(args, row.SourceID, row.Name, row.City, row.Region, row.Country)
	}

	b.WriteString(` ON CONFLICT (shopid_src) DO UPDATE SET
  shop_name = EXCLUDED.shop_name,
  city_name = EXCLUDED.city_name,
  region_name = EXCLUDED.region_name,
  country_name = EXCLUDED.country_name;`)
	return b.String(), args
}

// UpsertProducts mirrors UpsertShops for dim_product.
func (r *Repo) UpsertProducts(ctx context.Context, rows []warehouse.ProductRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		sql, args := buildProductUpsertSQL(rows[start:end])
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert dim_product: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func buildProductUpsertSQL(rows []warehouse.ProductRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_product (articleid_src, article_name, price_eur, product_group_name, product_family_name, product_category_name) VALUES ")

	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(&b, i*6, 6)
		args = append(args, row.SourceID, row.Name, row.Price, row.Group, row.Family, row.Category)
	}

	b.WriteString(` ON CONFLICT (articleid_src) DO UPDATE SET
  article_name = EXCLUDED.article_name,
  price_eur = EXCLUDED.price_eur,
  product_group_name = EXCLUDED.product_group_name,
  product_family_name = EXCLUDED.product_family_name,
  product_category_name = EXCLUDED.product_category_name;`)
	return b.String(), args
}

// InsertDates inserts new calendar dates; existing dates are skipped because
// their derived attributes never change.
func (r *Repo) InsertDates(ctx context.Context, rows []warehouse.DateRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		sql, args := buildDateInsertSQL(rows[start:end])
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert dim_date: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func buildDateInsertSQL(rows []warehouse.DateRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_date (fulldate, day, month, quarter, year) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(&b, i*5, 5)
		args = append(args, row.Date, row.Day, row.Month, row.Quarter, row.Year)
	}

	b.WriteString(" ON CONFLICT (fulldate) DO NOTHING;")
	return b.String(), args
}

// UpsertFacts replaces measures and refreshes load_ts for existing keys,
// inserts the rest. Returns rows written.
func (r *Repo) UpsertFacts(ctx context.Context, rows []warehouse.FactRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var total int64
	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		sql, args := buildFactUpsertSQL(rows[start:end])
		cmd, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("upsert fact_sales: %w", err)
		}
		total += cmd.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return total, err
	}
	return total, nil
}

func buildFactUpsertSQL(rows []warehouse.FactRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO fact_sales (dateid, shop_key, product_key, quantity, turnover_eur) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(&b, i*5, 5)
		args = append(args, row.DateKey, row.ShopKey, row.ProductKey, row.Quantity, row.Turnover)
	}

	b.WriteString(` ON CONFLICT (dateid, shop_key, product_key) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  turnover_eur = EXCLUDED.turnover_eur,
  load_ts = now();`)
	return b.String(), args
}

// ShopKeys returns shopid_src -> shop_key for the whole dimension.
func (r *Repo) ShopKeys(ctx context.Context) (map[int64]int64, error) {
	return r.keyMap(ctx, "SELECT shopid_src, shop_key FROM dim_shop")
}

// ProductKeys returns articleid_src -> product_key for the whole dimension.
func (r *Repo) ProductKeys(ctx context.Context) (map[int64]int64, error) {
	return r.keyMap(ctx, "SELECT articleid_src, product_key FROM dim_product")
}

func (r *Repo) keyMap(ctx context.Context, query string) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var src, key int64
		if err := rows.Scan(&src, &key); err != nil {
			return nil, err
		}
		out[src] = key
	}
	return out, rows.Err()
}

// DateKeys returns warehouse.DayKey(fulldate) -> dateid.
func (r *Repo) DateKeys(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, "SELECT fulldate, dateid FROM dim_date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day time.Time
		var id int64
		if err := rows.Scan(&day, &id); err != nil {
			return nil, err
		}
		out[warehouse.DayKey(day)] = id
	}
	return out, rows.Err()
}

// writePlaceholders appends "($n, $n+1, ...)" starting after `offset` args.
func writePlaceholders(b *strings.Builder, offset, n int) {
	b.WriteString("(")
	for j := 0; j < n; j++ {
		if j > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "$%d", offset+j+1)
	}
	b.WriteString(")")
}
