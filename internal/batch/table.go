// Package batch loads a point-of-sale export file into an in-memory table
// with canonical column names. It is a thin boundary: no value parsing or
// validation happens here beyond header normalization and row shape checks.
package batch

import (
	"fmt"
	"os"
	"strings"

	"salesdwh/internal/config"
)

// Canonical column names expected by the cleansing stage.
const (
	ColDate     = "date"
	ColShop     = "shop_name"
	ColArticle  = "article_name"
	ColQuantity = "quantity"
	ColTurnover = "turnover"
)

// Required is the canonical column set every batch must provide.
var Required = []string{ColDate, ColShop, ColArticle, ColQuantity, ColTurnover}

// defaultAliases maps common export header spellings (post-normalization) to
// canonical names. A configured header_map takes precedence.
var defaultAliases = map[string]string{
	"shop":    ColShop,
	"article": ColArticle,
	"sold":    ColQuantity,
	"revenue": ColTurnover,
}

// Table is an in-memory tabular batch. Rows are raw strings aligned to
// Columns; all typing happens downstream in the cleansing stage.
type Table struct {
	Columns []string
	Rows    [][]string

	// Skipped counts malformed input rows (wrong field count, unparseable
	// lines) dropped by the reader.
	Skipped int
}

// Index returns the position of a canonical column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Load reads the batch file selected by the parser config.
func Load(path string, p config.Parser) (*Table, error) {
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case "csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open batch: %w", err)
		}
		defer f.Close()
		return ReadCSV(f, p.Options)

	case "xlsx":
		return ReadXLSX(path, p.Options)

	case "html":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open batch: %w", err)
		}
		defer f.Close()
		return ReadHTML(f, p.Options)

	default:
		return nil, fmt.Errorf("unsupported parser.kind %q", p.Kind)
	}
}

// canonicalizeHeader normalizes one raw header cell:
//   - trim surrounding whitespace (and a BOM on the first column)
//   - exact rename via the configured header_map
//   - else lowercase with spaces collapsed to underscores
//   - else built-in aliases (shop -> shop_name, sold -> quantity, ...)
func canonicalizeHeader(h string, first bool, rename map[string]string) string {
	h = strings.TrimSpace(h)
	if first {
		h = strings.TrimPrefix(h, "\uFEFF")
	}
	if mapped, ok := rename[h]; ok {
		return mapped
	}
	h = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	if mapped, ok := rename[h]; ok {
		return mapped
	}
	if alias, ok := defaultAliases[h]; ok {
		return alias
	}
	return h
}

func canonicalizeHeaders(hdr []string, rename map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		out[i] = canonicalizeHeader(h, i == 0, rename)
	}
	return out
}

// requireColumns verifies the canonical column set is present. A missing
// column is a systemic error: the whole batch is unusable.
func requireColumns(cols []string) error {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, want := range Required {
		if !have[want] {
			return fmt.Errorf("batch: missing required column %q (have %v)", want, cols)
		}
	}
	return nil
}
