// Package resolve maps the shop and article names found in cleansed sales
// rows to warehouse surrogate keys, via the source ids owned by the
// operational database.
//
// Matching is exact string comparison. A name that differs from the master
// data in case, whitespace, or spelling does not match; such rows are
// quarantined and reported, never written to the warehouse.
package resolve

import (
	"time"

	"github.com/shopspring/decimal"

	"salesdwh/internal/cleanse"
)

// sampleLimit caps how many distinct unmatched names a Report retains.
const sampleLimit = 5

// Lookups holds the mapping tables resolution needs: name -> source id from
// the operational database, and source id -> surrogate key from the
// warehouse dimensions loaded earlier in the same run.
type Lookups struct {
	ShopIDs    map[string]int64
	ArticleIDs map[string]int64

	ShopKeys    map[int64]int64
	ProductKeys map[int64]int64
}

// Row is a fully resolved sales row, ready for aggregation.
type Row struct {
	Date       time.Time
	ShopKey    int64
	ProductKey int64
	Quantity   int64
	Turnover   decimal.Decimal
}

// Report describes what resolution dropped.
//
// Unmatched counts rows whose name is unknown to the operational database
// (bad input). MissingShopKeys / MissingProductKeys count rows whose name
// resolved to a source id that has no surrogate key. That happens with valid
// input: the dimensions are flattened with inner joins, so a shop or article
// with an incomplete hierarchy is named in the operational database but
// absent from the warehouse. Both cases quarantine the row; neither stops
// the run.
type Report struct {
	UnmatchedShops    int
	UnmatchedArticles int

	MissingShopKeys    int
	MissingProductKeys int

	ShopSamples    []string
	ArticleSamples []string
}

// Dropped returns the total number of quarantined rows.
func (r Report) Dropped() int {
	return r.UnmatchedShops + r.UnmatchedArticles + r.MissingShopKeys + r.MissingProductKeys
}

// Resolve maps each cleansed record to surrogate keys. Records that cannot
// be resolved are dropped and counted; output order follows input order.
func Resolve(records []cleanse.Record, lk Lookups) ([]Row, Report) {
	out := make([]Row, 0, len(records))
	var rep Report

	shopSeen := map[string]bool{}
	articleSeen := map[string]bool{}

	for _, rec := range records {
		shopID, ok := lk.ShopIDs[rec.ShopName]
		if !ok {
			rep.UnmatchedShops++
			rep.ShopSamples = sample(rep.ShopSamples, shopSeen, rec.ShopName)
			continue
		}
		articleID, ok := lk.ArticleIDs[rec.ArticleName]
		if !ok {
			rep.UnmatchedArticles++
			rep.ArticleSamples = sample(rep.ArticleSamples, articleSeen, rec.ArticleName)
			continue
		}

		shopKey, ok := lk.ShopKeys[shopID]
		if !ok {
			rep.MissingShopKeys++
			rep.ShopSamples = sample(rep.ShopSamples, shopSeen, rec.ShopName)
			continue
		}
		productKey, ok := lk.ProductKeys[articleID]
		if !ok {
			rep.MissingProductKeys++
			rep.ArticleSamples = sample(rep.ArticleSamples, articleSeen, rec.ArticleName)
			continue
		}

		out = append(out, Row{
			Date:       rec.Date,
			ShopKey:    shopKey,
			ProductKey: productKey,
			Quantity:   rec.Quantity,
			Turnover:   rec.Turnover,
		})
	}
	return out, rep
}

func sample(samples []string, seen map[string]bool, name string) []string {
	if seen[name] || len(samples) >= sampleLimit {
		return samples
	}
	seen[name] = true
	return append(samples, name)
}
