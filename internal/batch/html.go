package batch

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"salesdwh/internal/config"
)

// ReadHTML reads a report-style HTML export into a Table. Some POS systems
// only emit their daily export as an HTML report page; the first <table> in
// the document is taken as the batch.
//
// Options:
//   - trim_space: trim each cell, default true
//   - header_map: source header -> canonical column renames
//
// The first row (th cells, or td when the report has no th header) is the
// header. Rows with a different cell count are skipped and counted.
func ReadHTML(r io.Reader, opt config.Options) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("html batch: no <table> found")
	}

	trim := opt.Bool("trim_space", true)
	cell := func(sel *goquery.Selection) string {
		v := sel.Text()
		if trim {
			v = strings.TrimSpace(v)
		}
		return v
	}

	var t *Table
	var reqErr error

	table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.Find("th, td")
		if cells.Length() == 0 {
			return true
		}

		rec := make([]string, 0, cells.Length())
		cells.Each(func(_ int, td *goquery.Selection) {
			rec = append(rec, cell(td))
		})

		if t == nil {
			t = &Table{Columns: canonicalizeHeaders(rec, opt.StringMap("header_map"))}
			if err := requireColumns(t.Columns); err != nil {
				reqErr = err
				return false
			}
			return true
		}

		if len(rec) != len(t.Columns) {
			t.Skipped++
			return true
		}
		t.Rows = append(t.Rows, rec)
		return true
	})

	if reqErr != nil {
		return nil, reqErr
	}
	if t == nil {
		return nil, fmt.Errorf("html batch: table has no rows")
	}
	return t, nil
}
