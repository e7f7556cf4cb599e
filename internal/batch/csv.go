package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"salesdwh/internal/config"
)

// ReadCSV reads a delimited export into a Table.
//
// Options:
//   - comma:       field delimiter; sniffed from a bounded sample when unset
//   - lazy_quotes: tolerate bare quotes, default false
//   - trim_space:  trim each cell, default true
//   - encoding:    "latin1" to decode ISO 8859-1 exports; sniffed when unset
//   - header_map:  source header -> canonical column renames
//
// Rows whose field count does not match the header are skipped and counted,
// never fatal. A missing required column after header normalization is fatal.
func ReadCSV(r io.Reader, opt config.Options) (*Table, error) {
	comma := opt.Rune("comma", 0)
	encoding := opt.String("encoding", "")
	if comma == 0 || encoding == "" {
		var sample []byte
		sample, r = sniffReader(r)
		if comma == 0 {
			comma = sniffDelimiter(sample)
		}
		if encoding == "" {
			encoding = sniffEncoding(sample)
		}
	}

	if dec := decoderFor(encoding); dec != nil {
		r = transform.NewReader(r, dec)
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	trim := opt.Bool("trim_space", true)

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Columns: canonicalizeHeaders(hdr, opt.StringMap("header_map"))}
	if err := requireColumns(t.Columns); err != nil {
		return nil, err
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Bad line (stray quote, etc): skip it, keep the batch.
			t.Skipped++
			continue
		}
		if len(rec) != len(t.Columns) {
			t.Skipped++
			continue
		}

		row := make([]string, len(rec))
		for i, v := range rec {
			if trim {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// decoderFor maps an encoding option to a charmap decoder. Returns nil for
// UTF-8 (no transformation needed).
func decoderFor(name string) transform.Transformer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1.NewDecoder()
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder()
	default:
		return nil
	}
}
