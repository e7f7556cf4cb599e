// Package source reads the operational (OLTP) database that owns the shop
// and product master data. The pipeline flattens its normalized hierarchies
// into dimension rows and uses its id/name tables to resolve the names found
// in sales exports back to source ids.
package source

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"salesdwh/internal/warehouse"
)

// Source is the read-only boundary to the operational database.
type Source interface {
	Close()

	// ShopHierarchy flattens shop -> city -> region -> country into one
	// denormalized row per shop.
	ShopHierarchy(ctx context.Context) ([]warehouse.ShopRow, error)

	// ProductHierarchy flattens article -> group -> family -> category into
	// one denormalized row per article.
	ProductHierarchy(ctx context.Context) ([]warehouse.ProductRow, error)

	// ShopIDsByName maps shop names to source shop ids, for resolving the
	// shop names appearing in sales exports.
	ShopIDsByName(ctx context.Context) (map[string]int64, error)

	// ArticleIDsByName maps article names to source article ids.
	ArticleIDsByName(ctx context.Context) (map[string]int64, error)
}

const (
	shopHierarchySQL = `SELECT s.shopid, s.name, c.name, r.name, co.name
FROM shop s
JOIN city c ON s.cityid = c.cityid
JOIN region r ON c.regionid = r.regionid
JOIN country co ON r.countryid = co.countryid`

	productHierarchySQL = `SELECT a.articleid, a.name, a.price, pg.name, pf.name, pc.name
FROM article a
JOIN productgroup pg ON a.productgroupid = pg.productgroupid
JOIN productfamily pf ON pg.productfamilyid = pf.productfamilyid
JOIN productcategory pc ON pf.productcategoryid = pc.productcategoryid`

	shopNamesSQL    = `SELECT name, shopid FROM shop`
	articleNamesSQL = `SELECT name, articleid FROM article`
)

// DB implements Source over a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the operational database and verifies
// connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() { d.pool.Close() }

func (d *DB) ShopHierarchy(ctx context.Context) ([]warehouse.ShopRow, error) {
	rows, err := d.pool.Query(ctx, shopHierarchySQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (warehouse.ShopRow, error) {
		var s warehouse.ShopRow
		err := row.Scan(&s.SourceID, &s.Name, &s.City, &s.Region, &s.Country)
		return s, err
	})
}

func (d *DB) ProductHierarchy(ctx context.Context) ([]warehouse.ProductRow, error) {
	rows, err := d.pool.Query(ctx, productHierarchySQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (warehouse.ProductRow, error) {
		var p warehouse.ProductRow
		var price decimal.Decimal
		if err := row.Scan(&p.SourceID, &p.Name, &price, &p.Group, &p.Family, &p.Category); err != nil {
			return p, err
		}
		p.Price = price
		return p, nil
	})
}

func (d *DB) ShopIDsByName(ctx context.Context) (map[string]int64, error) {
	return d.nameIDMap(ctx, shopNamesSQL)
}

func (d *DB) ArticleIDsByName(ctx context.Context) (map[string]int64, error) {
	return d.nameIDMap(ctx, articleNamesSQL)
}

func (d *DB) nameIDMap(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}
