// Package sqlite implements warehouse.Repository on SQLite (modernc.org,
// pure Go). Useful for local runs and development without a database server.
//
// Key differences vs Postgres:
//   - SQLite has no DATE/TIMESTAMPTZ types; calendar dates are stored as
//     "2006-01-02" TEXT and load timestamps as RFC3339Nano TEXT, which
//     round-trip reliably and are easy to inspect.
//   - Money values are bound as strings into NUMERIC-affinity columns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"salesdwh/internal/warehouse"
)

type Repo struct {
	db   *sql.DB
	page int
}

func init() {
	warehouse.Register("sqlite", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, page: cfg.PageSize()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_date (
		dateid   INTEGER PRIMARY KEY AUTOINCREMENT,
		fulldate TEXT UNIQUE,
		day      INTEGER NOT NULL,
		month    INTEGER NOT NULL,
		quarter  INTEGER NOT NULL,
		year     INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dim_shop (
		shop_key     INTEGER PRIMARY KEY AUTOINCREMENT,
		shopid_src   INTEGER UNIQUE,
		shop_name    TEXT NOT NULL,
		city_name    TEXT NOT NULL,
		region_name  TEXT NOT NULL,
		country_name TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS dim_product (
		product_key           INTEGER PRIMARY KEY AUTOINCREMENT,
		articleid_src         INTEGER UNIQUE,
		article_name          TEXT NOT NULL,
		price_eur             NUMERIC NOT NULL,
		product_group_name    TEXT NOT NULL,
		product_family_name   TEXT NOT NULL,
		product_category_name TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		dateid       INTEGER NOT NULL REFERENCES dim_date(dateid),
		shop_key     INTEGER NOT NULL REFERENCES dim_shop(shop_key),
		product_key  INTEGER NOT NULL REFERENCES dim_product(product_key),
		quantity     INTEGER NOT NULL CHECK (quantity >= 0),
		turnover_eur NUMERIC NOT NULL CHECK (turnover_eur >= 0),
		load_ts      TEXT NOT NULL,
		PRIMARY KEY (dateid, shop_key, product_key)
	);`,
	`CREATE INDEX IF NOT EXISTS ix_fact_sales_shop ON fact_sales(shop_key);`,
	`CREATE INDEX IF NOT EXISTS ix_fact_sales_product ON fact_sales(product_key);`,
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range ddlStatements {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) UpsertShops(ctx context.Context, rows []warehouse.ShopRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		q, args := buildShopUpsertSQL(rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("upsert dim_shop: %w", err)
		}
	}
	return tx.Commit()
}

func buildShopUpsertSQL(rows []warehouse.ShopRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_shop (shopid_src, shop_name, city_name, region_name, country_name) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, row.SourceID, row.Name, row.City, row.Region, row.Country)
	}

	b.WriteString(` ON CONFLICT (shopid_src) DO UPDATE SET
  shop_name = excluded.shop_name,
  city_name = excluded.city_name,
  region_name = excluded.region_name,
  country_name = excluded.country_name;`)
	return b.String(), args
}

func (r *Repo) UpsertProducts(ctx context.Context, rows []warehouse.ProductRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		q, args := buildProductUpsertSQL(rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("upsert dim_product: %w", err)
		}
	}
	return tx.Commit()
}

func buildProductUpsertSQL(rows []warehouse.ProductRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_product (articleid_src, article_name, price_eur, product_group_name, product_family_name, product_category_name) VALUES ")

	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, row.SourceID, row.Name, row.Price.String(), row.Group, row.Family, row.Category)
	}

	b.WriteString(` ON CONFLICT (articleid_src) DO UPDATE SET
  article_name = excluded.article_name,
  price_eur = excluded.price_eur,
  product_group_name = excluded.product_group_name,
  product_family_name = excluded.product_family_name,
  product_category_name = excluded.product_category_name;`)
	return b.String(), args
}

func (r *Repo) InsertDates(ctx context.Context, rows []warehouse.DateRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		q, args := buildDateInsertSQL(rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert dim_date: %w", err)
		}
	}
	return tx.Commit()
}

func buildDateInsertSQL(rows []warehouse.DateRow) (string, []any) {
	var b strings.Builder
	// OR IGNORE relies on the UNIQUE constraint on fulldate.
	b.WriteString("INSERT OR IGNORE INTO dim_date (fulldate, day, month, quarter, year) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, warehouse.DayKey(row.Date), row.Day, row.Month, row.Quarter, row.Year)
	}

	b.WriteString(";")
	return b.String(), args
}

func (r *Repo) UpsertFacts(ctx context.Context, rows []warehouse.FactRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var total int64
	for start := 0; start < len(rows); start += r.page {
		end := min(start+r.page, len(rows))
		q, args := buildFactUpsertSQL(rows[start:end], now)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("upsert fact_sales: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	if err := tx.Commit(); err != nil {
		return total, err
	}
	return total, nil
}

func buildFactUpsertSQL(rows []warehouse.FactRow, loadTS string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO fact_sales (dateid, shop_key, product_key, quantity, turnover_eur, load_ts) VALUES ")

	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, row.DateKey, row.ShopKey, row.ProductKey, row.Quantity, row.Turnover.String(), loadTS)
	}

	b.WriteString(` ON CONFLICT (dateid, shop_key, product_key) DO UPDATE SET
  quantity = excluded.quantity,
  turnover_eur = excluded.turnover_eur,
  load_ts = excluded.load_ts;`)
	return b.String(), args
}

func (r *Repo) ShopKeys(ctx context.Context) (map[int64]int64, error) {
	return r.keyMap(ctx, "SELECT shopid_src, shop_key FROM dim_shop")
}

func (r *Repo) ProductKeys(ctx context.Context) (map[int64]int64, error) {
	return r.keyMap(ctx, "SELECT articleid_src, product_key FROM dim_product")
}

func (r *Repo) keyMap(ctx context.Context, query string) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *Repo) DateKeys(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT fulldate, dateid FROM dim_date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var day string
		var id int64
		if err := rows.Scan(&day, &id); err != nil {
			return nil, err
		}
		out[day] = id
	}
	return out, rows.Err()
}
