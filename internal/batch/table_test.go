package batch

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"salesdwh/internal/config"
)

func TestReadCSVCanonicalizesHeaders(t *testing.T) {
	t.Parallel()

	in := "\uFEFFDate;Shop;Article;Sold;Revenue\n" +
		"2024-01-05;Shop A;Widget;3;10,50\n"

	tbl, err := ReadCSV(strings.NewReader(in), config.Options{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	want := []string{"date", "shop_name", "article_name", "quantity", "turnover"}
	for i, c := range want {
		if tbl.Columns[i] != c {
			t.Fatalf("column %d: got %q, want %q (all: %v)", i, tbl.Columns[i], c, tbl.Columns)
		}
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0][4] != "10,50" {
		t.Fatalf("rows: %v", tbl.Rows)
	}
}

func TestReadCSVHeaderMapOverridesAliases(t *testing.T) {
	t.Parallel()

	in := "Tag;Filiale;Artikel;Menge;Umsatz\n2024-01-05;Shop A;Widget;3;10,50\n"
	opt := config.Options{
		"header_map": map[string]any{
			"Tag":     "date",
			"Filiale": "shop_name",
			"Artikel": "article_name",
			"Menge":   "quantity",
			"Umsatz":  "turnover",
		},
	}

	tbl, err := ReadCSV(strings.NewReader(in), opt)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tbl.Index(ColTurnover) != 4 {
		t.Fatalf("turnover index: %d (%v)", tbl.Index(ColTurnover), tbl.Columns)
	}
}

func TestReadCSVSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	in := "date;shop_name;article_name;quantity;turnover\n" +
		"2024-01-05;Shop A;Widget;3;10,50\n" +
		"short;row\n" +
		"2024-01-06;Shop B;Widget;1;5,00;extra\n" +
		"2024-01-07;Shop A;Gadget;2;7,25\n"

	tbl, err := ReadCSV(strings.NewReader(in), config.Options{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("kept rows: %d (%v)", len(tbl.Rows), tbl.Rows)
	}
	if tbl.Skipped != 2 {
		t.Fatalf("skipped: %d, want 2", tbl.Skipped)
	}
}

func TestReadCSVMissingColumnIsFatal(t *testing.T) {
	t.Parallel()

	in := "date;shop_name;quantity;turnover\n2024-01-05;Shop A;3;10,50\n"
	if _, err := ReadCSV(strings.NewReader(in), config.Options{}); err == nil {
		t.Fatal("expected missing-column error")
	} else if !strings.Contains(err.Error(), "article_name") {
		t.Fatalf("error should name the missing column: %v", err)
	}
}

func TestReadCSVDecodesLatin1(t *testing.T) {
	t.Parallel()

	// "München" encoded as ISO 8859-1.
	utf8In := "date;shop_name;article_name;quantity;turnover\n2024-01-05;München Süd;Widget;3;10,50\n"
	enc, err := charmap.ISO8859_1.NewEncoder().String(utf8In)
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadCSV(strings.NewReader(enc), config.Options{"encoding": "latin1"})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got := tbl.Rows[0][tbl.Index(ColShop)]; got != "München Süd" {
		t.Fatalf("shop name: %q", got)
	}
}

func TestReadHTMLFirstTable(t *testing.T) {
	t.Parallel()

	in := `<html><body>
	<h1>Daily sales</h1>
	<table>
	  <tr><th>Date</th><th>Shop</th><th>Article</th><th>Sold</th><th>Revenue</th></tr>
	  <tr><td>2024-01-05</td><td>Shop A</td><td>Widget</td><td>3</td><td>10,50</td></tr>
	  <tr><td>broken</td></tr>
	  <tr><td>2024-01-06</td><td>Shop B</td><td>Gadget</td><td>1</td><td>5,00</td></tr>
	</table>
	</body></html>`

	tbl, err := ReadHTML(strings.NewReader(in), config.Options{})
	if err != nil {
		t.Fatalf("ReadHTML: %v", err)
	}
	if len(tbl.Rows) != 2 || tbl.Skipped != 1 {
		t.Fatalf("rows=%d skipped=%d", len(tbl.Rows), tbl.Skipped)
	}
	if got := tbl.Rows[1][tbl.Index(ColArticle)]; got != "Gadget" {
		t.Fatalf("article: %q", got)
	}
}

func TestReadHTMLNoTable(t *testing.T) {
	t.Parallel()

	if _, err := ReadHTML(strings.NewReader("<html><body><p>empty</p></body></html>"), config.Options{}); err == nil {
		t.Fatal("expected error for document without a table")
	}
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sales.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Date", "Shop", "Article", "Sold", "Revenue"},
		{"2024-01-05", "Shop A", "Widget", "3", "10,50"},
		{"2024-01-06", "Shop B", "Gadget", "1", ""}, // trailing blank cell
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	tbl, err := ReadXLSX(path, config.Options{})
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(tbl.Columns) != 5 || tbl.Columns[1] != ColShop {
		t.Fatalf("columns: %v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows: %v", tbl.Rows)
	}
	// Short second row padded to full width.
	if got := tbl.Rows[1][tbl.Index(ColTurnover)]; got != "" {
		t.Fatalf("padded cell: %q", got)
	}
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := Load("whatever.bin", config.Parser{Kind: "parquet"}); err == nil {
		t.Fatal("expected unsupported-kind error")
	}
}
