package sheets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabquery/tabquery/internal/catalog"
)

func TestParseCSVReadsHeaderAndRows(t *testing.T) {
	input := "\xEF\xBB\xBFregion,sales\nEast,100\nWest,200\n"
	sheet, err := ParseCSV(strings.NewReader(input), "sales")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if sheet.Name != "sales" {
		t.Fatalf("Name = %q", sheet.Name)
	}
	if len(sheet.Header) != 2 || sheet.Header[0] != "region" {
		t.Fatalf("Header = %#v", sheet.Header)
	}
	if len(sheet.Rows) != 2 || sheet.Rows[1][1] != "200" {
		t.Fatalf("Rows = %#v", sheet.Rows)
	}
}

func TestParseCSVSniffsSemicolonAndAllowsRaggedRows(t *testing.T) {
	input := "a;b;c\n1;2\n4;5;6;7\n"
	sheet, err := ParseCSV(strings.NewReader(input), "data")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(sheet.Header) != 3 {
		t.Fatalf("Header = %#v", sheet.Header)
	}
	if len(sheet.Rows[0]) != 2 || len(sheet.Rows[1]) != 4 {
		t.Fatalf("Rows = %#v", sheet.Rows)
	}
}

func TestParseCSVEmptyInput(t *testing.T) {
	sheet, err := ParseCSV(strings.NewReader(""), "empty")
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(sheet.Header) != 0 || len(sheet.Rows) != 0 {
		t.Fatalf("sheet = %#v", sheet)
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := []Sheet{
		{Name: "Orders", Header: []string{"id", "amount"}, Rows: [][]string{{"1", "9.5"}, {"2", "3"}}},
		{Name: "Empty Sheet", Header: []string{"only", "header"}},
	}
	if err := WriteXLSX(&buf, in); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	out, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ParseXLSX() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(sheets) = %d", len(out))
	}
	if out[0].Name != "Orders" || len(out[0].Rows) != 2 || out[0].Rows[0][1] != "9.5" {
		t.Fatalf("sheet[0] = %#v", out[0])
	}
	if out[1].Name != "Empty Sheet" || len(out[1].Rows) != 0 || len(out[1].Header) != 2 {
		t.Fatalf("sheet[1] = %#v", out[1])
	}
}

func TestParseXLSXRejectsGarbage(t *testing.T) {
	if _, err := ParseXLSX(strings.NewReader("not a workbook")); err == nil {
		t.Fatal("expected error for invalid workbook")
	}
}

func TestParseFileDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Quarterly Sales.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	fileType, sheets, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if fileType != catalog.FileTypeCSV {
		t.Fatalf("fileType = %q", fileType)
	}
	if len(sheets) != 1 || sheets[0].Name != "Quarterly Sales" {
		t.Fatalf("sheets = %#v", sheets)
	}

	if _, _, err := ParseFile(filepath.Join(dir, "data.parquet")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFile(parquet) error = %v, want ErrUnsupportedFormat", err)
	}
}
