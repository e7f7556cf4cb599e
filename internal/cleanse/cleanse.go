// Package cleanse casts and validates raw batch rows into typed sale records.
//
// Row-level problems never abort the run: offending rows are dropped and
// counted per reason. Only systemic problems (empty batch, missing column)
// return an error.
package cleanse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesdwh/internal/batch"
)

// DefaultDateLayout is used when the pipeline config does not set one.
const DefaultDateLayout = "2006-01-02"

// Record is one validated sale row. Dates carry day precision only.
type Record struct {
	Line        int
	Date        time.Time
	ShopName    string
	ArticleName string
	Quantity    int64
	Turnover    decimal.Decimal
}

// Stats counts the fate of every input row, per drop reason.
type Stats struct {
	Total     int
	Kept      int
	BadDate   int
	EmptyName int
	BadNumber int
	Negative  int
}

// Dropped returns the total number of rejected rows.
func (s Stats) Dropped() int {
	return s.BadDate + s.EmptyName + s.BadNumber + s.Negative
}

// Options configures the cleansing stage.
type Options struct {
	// DateLayout is the expected batch date format in Go reference-time
	// notation. Empty means DefaultDateLayout.
	DateLayout string
}

// Clean validates and types every row of the batch.
//
// Check order per row (first failure wins for the drop count):
//  1. date parses with the configured layout
//  2. shop and article names are non-empty
//  3. turnover parses after locale normalization, quantity parses as integer
//  4. both measures are non-negative
func Clean(t *batch.Table, opt Options) ([]Record, Stats, error) {
	var stats Stats

	if t == nil || len(t.Rows) == 0 {
		return nil, stats, fmt.Errorf("cleanse: empty batch")
	}

	layout := opt.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}

	ixDate := t.Index(batch.ColDate)
	ixShop := t.Index(batch.ColShop)
	ixArticle := t.Index(batch.ColArticle)
	ixQuantity := t.Index(batch.ColQuantity)
	ixTurnover := t.Index(batch.ColTurnover)
	for name, ix := range map[string]int{
		batch.ColDate:     ixDate,
		batch.ColShop:     ixShop,
		batch.ColArticle:  ixArticle,
		batch.ColQuantity: ixQuantity,
		batch.ColTurnover: ixTurnover,
	} {
		if ix < 0 {
			return nil, stats, fmt.Errorf("cleanse: missing required column %q", name)
		}
	}

	out := make([]Record, 0, len(t.Rows))

	for i, row := range t.Rows {
		stats.Total++

		day, err := time.Parse(layout, row[ixDate])
		if err != nil {
			stats.BadDate++
			continue
		}

		shop := row[ixShop]
		article := row[ixArticle]
		if shop == "" || article == "" {
			stats.EmptyName++
			continue
		}

		turnover, err := decimal.NewFromString(NormalizeDecimal(row[ixTurnover]))
		if err != nil {
			stats.BadNumber++
			continue
		}
		quantity, err := parseQuantity(row[ixQuantity])
		if err != nil {
			stats.BadNumber++
			continue
		}

		// Returns/refunds are not supported by this pipeline.
		if quantity < 0 || turnover.IsNegative() {
			stats.Negative++
			continue
		}

		stats.Kept++
		out = append(out, Record{
			Line:        i + 2, // 1-based, after the header row
			Date:        day.Truncate(24 * time.Hour),
			ShopName:    shop,
			ArticleName: article,
			Quantity:    quantity,
			Turnover:    turnover,
		})
	}

	return out, stats, nil
}

// parseQuantity reads a sold count. Exports sometimes render counts in float
// form ("3.0"); those are accepted and truncated toward zero, matching the
// INT column they land in. Counts never carry locale separators.
func parseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// NormalizeDecimal converts a locale-formatted amount to the standard point
// form: "1.234,56" becomes "1234.56". In the export's locale a dot is always
// a thousands separator and a comma the decimal separator, so dots are
// stripped unconditionally before the comma becomes a point.
func NormalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	return s
}
