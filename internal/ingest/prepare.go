package ingest

import (
	"fmt"
	"strings"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/infer"
	"github.com/tabquery/tabquery/internal/sheets"
)

// preparedTable is a sheet with sanitized names, inferred types and rows
// normalized to the header width. nulled counts, per column position, the
// non-blank cells that do not fit the inferred type and are stored as NULL.
type preparedTable struct {
	name    string
	columns []catalog.Column
	rows    [][]string
	nulled  []int
}

func prepareSheet(sheet sheets.Sheet, tableName string, opts Options) (preparedTable, error) {
	if len(sheet.Header) == 0 {
		return preparedTable{}, fmt.Errorf("sheet %q has no header row", sheet.Name)
	}
	if opts.MaxColumns > 0 && len(sheet.Header) > opts.MaxColumns {
		return preparedTable{}, fmt.Errorf("sheet %q has %d columns, the limit is %d", sheet.Name, len(sheet.Header), opts.MaxColumns)
	}
	if opts.MaxRowsPerSheet > 0 && len(sheet.Rows) > opts.MaxRowsPerSheet {
		return preparedTable{}, fmt.Errorf("sheet %q has %d rows, the limit is %d", sheet.Name, len(sheet.Rows), opts.MaxRowsPerSheet)
	}

	width := len(sheet.Header)
	rows := make([][]string, len(sheet.Rows))
	for i, row := range sheet.Rows {
		switch {
		case len(row) == width:
			rows[i] = row
		case len(row) > width:
			rows[i] = row[:width]
		default:
			padded := make([]string, width)
			copy(padded, row)
			rows[i] = padded
		}
	}

	names := ColumnNames(sheet.Header)
	columns := make([]catalog.Column, width)
	nulled := make([]int, width)
	values := make([]string, len(rows))
	for c := range names {
		for r, row := range rows {
			values[r] = row[c]
		}
		dataType := infer.Column(values, infer.Options{SampleSize: opts.TypeSampleSize, Threshold: opts.TypeThreshold})
		dataType = infer.Widen(values, dataType)
		nulled[c] = infer.Unconvertible(values, dataType)
		column := catalog.Column{Name: names[c], Type: dataType, Position: c}
		if dataType == catalog.TypeText {
			column.SampleValues = sampleValues(values, opts.SampleValueLimit)
		}
		columns[c] = column
	}

	return preparedTable{name: tableName, columns: columns, rows: rows, nulled: nulled}, nil
}

// sampleValues returns up to limit distinct non-blank values in first-seen order.
func sampleValues(values []string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
