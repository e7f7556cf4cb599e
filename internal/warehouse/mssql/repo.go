// Package mssql implements warehouse.Repository for Microsoft SQL Server.
//
// Upserts deliberately avoid MERGE: each page runs an UPDATE joined to a
// VALUES derived table followed by an INSERT ... WHERE NOT EXISTS. The two
// statements share a transaction, so a rerun observes either the old or the
// new batch, never a mix.
//
// SQL Server caps a statement at 2100 parameters; pages are additionally
// clamped so a single statement stays comfortably below that.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"salesdwh/internal/warehouse"
)

type Repo struct {
	db   *sql.DB
	page int
}

func init() {
	warehouse.Register("mssql", New)
}

func New(ctx context.Context, cfg warehouse.Config) (warehouse.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty batch loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, page: cfg.PageSize()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// pageFor clamps the configured page so one statement never exceeds the
// SQL Server parameter limit.
func (r *Repo) pageFor(columns int) int {
	limit := 2000 / columns
	if limit < 1 {
		limit = 1
	}
	if r.page < limit {
		return r.page
	}
	return limit
}

var ddlStatements = []string{
	`IF OBJECT_ID(N'dim_date', N'U') IS NULL BEGIN CREATE TABLE dim_date (
		dateid   BIGINT IDENTITY(1,1) PRIMARY KEY,
		fulldate DATE NOT NULL UNIQUE,
		day      INT NOT NULL,
		month    INT NOT NULL,
		quarter  INT NOT NULL,
		year     INT NOT NULL
	); END;`,
	`IF OBJECT_ID(N'dim_shop', N'U') IS NULL BEGIN CREATE TABLE dim_shop (
		shop_key     BIGINT IDENTITY(1,1) PRIMARY KEY,
		shopid_src   BIGINT NOT NULL UNIQUE,
		shop_name    NVARCHAR(255) NOT NULL,
		city_name    NVARCHAR(255) NOT NULL,
		region_name  NVARCHAR(255) NOT NULL,
		country_name NVARCHAR(255) NOT NULL
	); END;`,
	`IF OBJECT_ID(N'dim_product', N'U') IS NULL BEGIN CREATE TABLE dim_product (
		product_key           BIGINT IDENTITY(1,1) PRIMARY KEY,
		articleid_src         BIGINT NOT NULL UNIQUE,
		article_name          NVARCHAR(255) NOT NULL,
		price_eur             DECIMAL(12,2) NOT NULL,
		product_group_name    NVARCHAR(255) NOT NULL,
		product_family_name   NVARCHAR(255) NOT NULL,
		product_category_name NVARCHAR(255) NOT NULL
	); END;`,
	`IF OBJECT_ID(N'fact_sales', N'U') IS NULL BEGIN CREATE TABLE fact_sales (
		dateid       BIGINT NOT NULL REFERENCES dim_date(dateid),
		shop_key     BIGINT NOT NULL REFERENCES dim_shop(shop_key),
		product_key  BIGINT NOT NULL REFERENCES dim_product(product_key),
		quantity     BIGINT NOT NULL CHECK (quantity >= 0),
		turnover_eur DECIMAL(14,2) NOT NULL CHECK (turnover_eur >= 0),
		load_ts      DATETIME2 NOT NULL,
		PRIMARY KEY (dateid, shop_key, product_key)
	); END;`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'ix_fact_sales_shop')
		CREATE INDEX ix_fact_sales_shop ON fact_sales(shop_key);`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'ix_fact_sales_product')
		CREATE INDEX ix_fact_sales_product ON fact_sales(product_key);`,
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
	defer func() { _ = tx.Rollback() }()

	page := r.pageFor(5)
	for start := 0; start < len(rows); start += page {
		end := min(start+page, len(rows))
		part := rows[start:end]

		upd, updArgs := buildShopUpdateSQL(part)
		if _, err := tx.ExecContext(ctx, upd, updArgs...); err != nil {
			return fmt.Errorf("update dim_shop: %w", err)
		}
		ins, insArgs := buildShopInsertSQL(part)
		if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
			return fmt.Errorf("insert dim_shop: %w", err)
		}
	}
	return tx.Commit()
}

func buildShopUpdateSQL(rows []warehouse.ShopRow) (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE t SET t.shop_name = v.shop_name, t.city_name = v.city_name, t.region_name = v.region_name, t.country_name = v.country_name FROM dim_shop t JOIN (VALUES ")

	args := writeShopValues(&b, rows)

	b.WriteString(") AS v(shopid_src, shop_name, city_name, region_name, country_name) ON t.shopid_src = v.shopid_src")
	return b.String(), args
}

func buildShopInsertSQL(rows []warehouse.ShopRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_shop (shopid_src, shop_name, city_name, region_name, country_name) SELECT v.shopid_src, v.shop_name, v.city_name, v.region_name, v.country_name FROM (VALUES ")

	args := writeShopValues(&b, rows)

	b.WriteString(") AS v(shopid_src, shop_name, city_name, region_name, country_name) WHERE NOT EXISTS (SELECT 1 FROM dim_shop t WHERE t.shopid_src = v.shopid_src)")
	return b.String(), args
}

func writeShopValues(b *strings.Builder, rows []warehouse.ShopRow) []any {
	args := make([]any, 0, len(rows)*5)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(b, &p, 5)
		args = append(args, row.SourceID, row.Name, row.City, row.Region, row.Country)
	}
	return args
}

func (r *Repo) UpsertProducts(ctx context.Context, rows []warehouse.ProductRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	page := r.pageFor(6)
	for start := 0; start < len(rows); start += page {
		end := min(start+page, len(rows))
		part := rows[start:end]

		upd, updArgs := buildProductUpdateSQL(part)
		if _, err := tx.ExecContext(ctx, upd, updArgs...); err != nil {
			return fmt.Errorf("update dim_product: %w", err)
		}
		ins, insArgs := buildProductInsertSQL(part)
		if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
			return fmt.Errorf("insert dim_product: %w", err)
		}
	}
	return tx.Commit()
}

const productCols = "articleid_src, article_name, price_eur, product_group_name, product_family_name, product_category_name"

func buildProductUpdateSQL(rows []warehouse.ProductRow) (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE t SET t.article_name = v.article_name, t.price_eur = v.price_eur, t.product_group_name = v.product_group_name, t.product_family_name = v.product_family_name, t.product_category_name = v.product_category_name FROM dim_product t JOIN (VALUES ")

	args := writeProductValues(&b, rows)

	b.WriteString(") AS v(" + productCols + ") ON t.articleid_src = v.articleid_src")
	return b.String(), args
}

func buildProductInsertSQL(rows []warehouse.ProductRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_product (" + productCols + ") SELECT v.articleid_src, v.article_name, v.price_eur, v.product_group_name, v.product_family_name, v.product_category_name FROM (VALUES ")

	args := writeProductValues(&b, rows)

	b.WriteString(") AS v(" + productCols + ") WHERE NOT EXISTS (SELECT 1 FROM dim_product t WHERE t.articleid_src = v.articleid_src)")
	return b.String(), args
}

func writeProductValues(b *strings.Builder, rows []warehouse.ProductRow) []any {
	args := make([]any, 0, len(rows)*6)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(b, &p, 6)
		args = append(args, row.SourceID, row.Name, row.Price.String(), row.Group, row.Family, row.Category)
	}
	return args
}

func (r *Repo) InsertDates(ctx context.Context, rows []warehouse.DateRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	page := r.pageFor(5)
	for start := 0; start < len(rows); start += page {
		end := min(start+page, len(rows))
		q, args := buildDateInsertSQL(rows[start:end])
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert dim_date: %w", err)
		}
	}
	return tx.Commit()
}

func buildDateInsertSQL(rows []warehouse.DateRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO dim_date (fulldate, day, month, quarter, year) SELECT v.fulldate, v.day, v.month, v.quarter, v.year FROM (VALUES ")

	args := make([]any, 0, len(rows)*5)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(&b, &p, 5)
		args = append(args, warehouse.DayKey(row.Date), row.Day, row.Month, row.Quarter, row.Year)
	}

	b.WriteString(") AS v(fulldate, day, month, quarter, year) WHERE NOT EXISTS (SELECT 1 FROM dim_date t WHERE t.fulldate = v.fulldate)")
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
	defer func() { _ = tx.Rollback() }()

	var total int64
	page := r.pageFor(5)
	for start := 0; start < len(rows); start += page {
		end := min(start+page, len(rows))
		part := rows[start:end]

		upd, updArgs := buildFactUpdateSQL(part)
		res, err := tx.ExecContext(ctx, upd, updArgs...)
		if err != nil {
			return total, fmt.Errorf("update fact_sales: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}

		ins, insArgs := buildFactInsertSQL(part)
		res, err = tx.ExecContext(ctx, ins, insArgs...)
		if err != nil {
			return total, fmt.Errorf("insert fact_sales: %w", err)
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

const factCols = "dateid, shop_key, product_key, quantity, turnover_eur"

func buildFactUpdateSQL(rows []warehouse.FactRow) (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE t SET t.quantity = v.quantity, t.turnover_eur = v.turnover_eur, t.load_ts = SYSUTCDATETIME() FROM fact_sales t JOIN (VALUES ")

	args := writeFactValues(&b, rows)

	b.WriteString(") AS v(" + factCols + ") ON t.dateid = v.dateid AND t.shop_key = v.shop_key AND t.product_key = v.product_key")
	return b.String(), args
}

func buildFactInsertSQL(rows []warehouse.FactRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO fact_sales (" + factCols + ", load_ts) SELECT v.dateid, v.shop_key, v.product_key, v.quantity, v.turnover_eur, SYSUTCDATETIME() FROM (VALUES ")

	args := writeFactValues(&b, rows)

	b.WriteString(") AS v(" + factCols + ") WHERE NOT EXISTS (SELECT 1 FROM fact_sales t WHERE t.dateid = v.dateid AND t.shop_key = v.shop_key AND t.product_key = v.product_key)")
	return b.String(), args
}

func writeFactValues(b *strings.Builder, rows []warehouse.FactRow) []any {
	args := make([]any, 0, len(rows)*5)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		writePlaceholders(b, &p, 5)
		args = append(args, row.DateKey, row.ShopKey, row.ProductKey, row.Quantity, row.Turnover.String())
	}
	return args
}

// writePlaceholders appends "(@pN, @pN+1, ...)" and advances the counter.
func writePlaceholders(b *strings.Builder, p *int, n int) {
	b.WriteString("(")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("@p")
		b.WriteString(strconv.Itoa(*p))
		*p++
	}
	b.WriteString(")")
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
		var day sql.NullTime
		var id int64
		if err := rows.Scan(&day, &id); err != nil {
			return nil, err
		}
		if day.Valid {
			out[warehouse.DayKey(day.Time)] = id
		}
	}
	return out, rows.Err()
}
