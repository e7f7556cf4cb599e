// Package warehouse defines the star-schema row types and the backend-agnostic
// Repository interface for the dimensional store.
//
// Row types live here (not in the pipeline package) so backend packages can
// consume them without circular imports.
package warehouse

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShopRow is one denormalized shop dimension candidate, keyed by the source
// system's shop id.
type ShopRow struct {
	SourceID int64
	Name     string
	City     string
	Region   string
	Country  string
}

// ProductRow is one denormalized product dimension candidate, keyed by the
// source system's article id.
type ProductRow struct {
	SourceID int64
	Name     string
	Price    decimal.Decimal
	Group    string
	Family   string
	Category string
}

// DateRow is one calendar date dimension row. Attributes are pure functions
// of the date and never change once stored.
type DateRow struct {
	Date    time.Time
	Day     int
	Month   int
	Quarter int
	Year    int
}

// NewDateRow derives the date dimension attributes for a calendar day.
func NewDateRow(t time.Time) DateRow {
	y, m, d := t.Date()
	return DateRow{
		Date:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Day:     d,
		Month:   int(m),
		Quarter: (int(m)-1)/3 + 1,
		Year:    y,
	}
}

// DayKey renders a calendar day in the canonical form used for date-key maps.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// FactRow is one aggregated sales fact, fully keyed by warehouse surrogate
// keys. Measures are sums over the current batch only.
type FactRow struct {
	DateKey    int64
	ShopKey    int64
	ProductKey int64
	Quantity   int64
	Turnover   decimal.Decimal
}
