package batch

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"salesdwh/internal/config"
)

// ReadXLSX reads a spreadsheet export into a Table.
//
// Options:
//   - sheet:      sheet name; default is the first sheet
//   - trim_space: trim each cell, default true
//   - header_map: source header -> canonical column renames
//
// The first row is the header. Short rows are padded with empty cells
// (excelize drops trailing blanks); over-long rows are skipped and counted.
func ReadXLSX(path string, opt config.Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := opt.String("sheet", "")
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	trim := opt.Bool("trim_space", true)

	t := &Table{Columns: canonicalizeHeaders(rows[0], opt.StringMap("header_map"))}
	if err := requireColumns(t.Columns); err != nil {
		return nil, err
	}

	for _, rec := range rows[1:] {
		if len(rec) > len(t.Columns) {
			t.Skipped++
			continue
		}
		row := make([]string, len(t.Columns))
		for i := range row {
			if i < len(rec) {
				v := rec[i]
				if trim {
					v = strings.TrimSpace(v)
				}
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}
