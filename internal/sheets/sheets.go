// Package sheets turns uploaded CSV and XLSX files into header + rows grids.
package sheets

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tabquery/tabquery/internal/catalog"
)

var ErrUnsupportedFormat = errors.New("sheets: unsupported file format")

type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// FileTypeFor maps a file name to its catalog file type by extension.
func FileTypeFor(name string) (catalog.FileType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return catalog.FileTypeCSV, nil
	case ".xlsx", ".xlsm":
		return catalog.FileTypeXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ParseFile reads a CSV or XLSX file from disk.
func ParseFile(path string) (catalog.FileType, []Sheet, error) {
	fileType, err := FileTypeFor(path)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sheets, err := Parse(f, fileType, filepath.Base(path))
	if err != nil {
		return "", nil, err
	}
	return fileType, sheets, nil
}

func Parse(r io.Reader, fileType catalog.FileType, name string) ([]Sheet, error) {
	switch fileType {
	case catalog.FileTypeCSV:
		sheet, err := ParseCSV(r, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return nil, err
		}
		return []Sheet{sheet}, nil
	case catalog.FileTypeXLSX:
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}
}

// ParseCSV reads a delimited file whose first record is the header. The
// delimiter is picked from comma, semicolon and tab by counting them in the
// first line.
func ParseCSV(r io.Reader, name string) (Sheet, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	head, _ := br.Peek(4096)

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(head)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("read csv: %w", err)
	}
	sheet := Sheet{Name: name}
	if len(records) == 0 {
		return sheet, nil
	}
	sheet.Header = records[0]
	sheet.Rows = records[1:]
	return sheet, nil
}

func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', bytes.Count(head, []byte{','})
	for _, candidate := range []rune{';', '\t'} {
		if count := bytes.Count(head, []byte(string(candidate))); count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best
}

// ParseXLSX returns one Sheet per worksheet in workbook order. Worksheets with
// no cells at all are skipped.
func ParseXLSX(r io.Reader) ([]Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := make([]Sheet, 0)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		rows = trimBlankRows(rows)
		if len(rows) == 0 {
			continue
		}
		out = append(out, Sheet{Name: name, Header: rows[0], Rows: rows[1:]})
	}
	return out, nil
}

// trimBlankRows drops leading and trailing rows with no non-blank cell.
func trimBlankRows(rows [][]string) [][]string {
	blank := func(row []string) bool {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return false
			}
		}
		return true
	}
	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	for len(rows) > 0 && blank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return rows
}

// WriteXLSX writes sheets into a new workbook, in order.
func WriteXLSX(w io.Writer, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("at least one sheet is required")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet.Name, err)
		}
		if err := writeRow(f, sheet.Name, 1, sheet.Header); err != nil {
			return err
		}
		for j, row := range sheet.Rows {
			if err := writeRow(f, sheet.Name, j+2, row); err != nil {
				return err
			}
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	row := make([]any, len(values))
	for i, value := range values {
		row[i] = value
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d of %q: %w", rowNum, sheet, err)
	}
	return nil
}

// WriteCSV writes a single sheet as comma separated values.
func WriteCSV(w io.Writer, sheet Sheet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(sheet.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(sheet.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}
