package cleanse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salesdwh/internal/batch"
)

func table(rows ...[]string) *batch.Table {
	return &batch.Table{
		Columns: []string{"date", "shop_name", "article_name", "quantity", "turnover"},
		Rows:    rows,
	}
}

func TestNormalizeDecimal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"1.234,56", "1234.56"},
		{"10,50", "10.50"},
		{"5", "5"},
		{"1.000.000,99", "1000000.99"},
		{" 42,00 ", "42.00"},
	}
	for _, tc := range cases {
		if got := NormalizeDecimal(tc.in); got != tc.want {
			t.Errorf("NormalizeDecimal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanKeepsWellFormedRowsUnchanged(t *testing.T) {
	t.Parallel()

	recs, stats, err := Clean(table(
		[]string{"2024-01-05", "Shop A", "Widget", "3", "10,50"},
	), Options{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if stats.Kept != 1 || stats.Dropped() != 0 {
		t.Fatalf("stats: %+v", stats)
	}

	r := recs[0]
	if !r.Date.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date: %v", r.Date)
	}
	if r.ShopName != "Shop A" || r.ArticleName != "Widget" {
		t.Fatalf("names: %q %q", r.ShopName, r.ArticleName)
	}
	if r.Quantity != 3 || !r.Turnover.Equal(decimal.RequireFromString("10.50")) {
		t.Fatalf("measures: %d %s", r.Quantity, r.Turnover)
	}
}

func TestCleanThousandsSeparator(t *testing.T) {
	t.Parallel()

	recs, _, err := Clean(table(
		[]string{"2024-01-05", "Shop A", "Widget", "1", "1.234,56"},
	), Options{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if want := decimal.RequireFromString("1234.56"); !recs[0].Turnover.Equal(want) {
		t.Fatalf("turnover: %s, want %s", recs[0].Turnover, want)
	}
}

func TestCleanDropReasons(t *testing.T) {
	t.Parallel()

	recs, stats, err := Clean(table(
		[]string{"2024-01-05", "Shop A", "Widget", "3", "10,50"}, // kept
		[]string{"05/01/2024", "Shop A", "Widget", "3", "10,50"}, // bad date
		[]string{"2024-01-05", "", "Widget", "3", "10,50"},       // empty shop
		[]string{"2024-01-05", "Shop A", "", "3", "10,50"},       // empty article
		[]string{"2024-01-05", "Shop A", "Widget", "x", "10,50"}, // bad quantity
		[]string{"2024-01-05", "Shop A", "Widget", "3", "n/a"},   // bad turnover
		[]string{"2024-01-05", "Shop A", "Widget", "-1", "10,50"},
		[]string{"2024-01-05", "Shop A", "Widget", "3", "-0,01"},
	), Options{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if len(recs) != 1 {
		t.Fatalf("kept records: %d", len(recs))
	}
	want := Stats{Total: 8, Kept: 1, BadDate: 1, EmptyName: 2, BadNumber: 2, Negative: 2}
	if stats != want {
		t.Fatalf("stats: %+v, want %+v", stats, want)
	}
}

func TestCleanAcceptsFloatFormedQuantities(t *testing.T) {
	t.Parallel()

	recs, stats, err := Clean(table(
		[]string{"2024-01-05", "Shop A", "Widget", "3.0", "10,50"},
		[]string{"2024-01-05", "Shop A", "Widget", "2.8", "5,25"},
		[]string{"2024-01-05", "Shop A", "Widget", "x", "5,25"},
	), Options{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := Stats{Total: 3, Kept: 2, BadNumber: 1}
	if stats != want {
		t.Fatalf("stats: %+v, want %+v", stats, want)
	}
	if recs[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", recs[0].Quantity)
	}
	if recs[1].Quantity != 2 {
		t.Errorf("quantity = %d, want 2 (truncated)", recs[1].Quantity)
	}
}

func TestCleanNegativeQuantityNeverReachesOutput(t *testing.T) {
	t.Parallel()

	recs, stats, err := Clean(table(
		[]string{"2024-01-05", "Shop A", "Widget", "-1", "10,50"},
		[]string{"2024-01-05", "Shop A", "Widget", "2", "5,25"},
	), Options{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if stats.Negative != 1 {
		t.Fatalf("negative count: %d", stats.Negative)
	}
	for _, r := range recs {
		if r.Quantity < 0 {
			t.Fatalf("negative quantity survived cleansing: %+v", r)
		}
	}
}

func TestCleanCustomDateLayout(t *testing.T) {
	t.Parallel()

	recs, stats, err := Clean(table(
		[]string{"05.01.2024", "Shop A", "Widget", "3", "10,50"},
	), Options{DateLayout: "02.01.2006"})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if stats.Kept != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if recs[0].Date.Month() != time.January || recs[0].Date.Day() != 5 {
		t.Fatalf("date: %v", recs[0].Date)
	}
}

func TestCleanEmptyBatchIsFatal(t *testing.T) {
	t.Parallel()

	if _, _, err := Clean(table(), Options{}); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if _, _, err := Clean(nil, Options{}); err == nil {
		t.Fatal("expected error for nil batch")
	}
}
