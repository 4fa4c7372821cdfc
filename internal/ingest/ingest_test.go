package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/sheets"
	"github.com/tabquery/tabquery/internal/storage/memory"
)

type fakeRegistrar struct {
	dataset catalog.Dataset
	tables  []catalog.Table
	err     error
	calls   int
}

func (f *fakeRegistrar) Register(_ context.Context, dataset catalog.Dataset, tables []catalog.Table) (catalog.Dataset, error) {
	f.calls++
	if f.err != nil {
		return catalog.Dataset{}, f.err
	}
	f.dataset = dataset
	f.tables = tables
	return dataset, nil
}

func testOptions() Options {
	return Options{TypeSampleSize: 100, TypeThreshold: 0.9, MaxColumns: 10, MaxRowsPerSheet: 1000, SampleValueLimit: 3}
}

func TestColumnNames(t *testing.T) {
	got := ColumnNames([]string{"Region Name", "Sales ($)", "", "sales", "Sales!", "2024 Total", "  ", "Ünits"})
	want := []string{"region_name", "sales", "column_3", "sales_1", "sales_2", "c_2024_total", "column_7", "ünits"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ColumnNames() = %#v, want %#v", got, want)
	}
}

func TestNamesAvoidReservedWords(t *testing.T) {
	got := ColumnNames([]string{"Export", "Import", "Load", "Order", "Date", "Year", "Group"})
	want := []string{"export_col", "import_col", "load_col", "order_col", "date", "year", "group_col"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ColumnNames() = %#v, want %#v", got, want)
	}

	namer := newTableNamer()
	tables := []string{namer.next("Order", 0), namer.next("Date", 1), namer.next("Update", 2), namer.next("Orders", 3)}
	if want := []string{"order_table", "date_table", "update_table", "orders"}; !reflect.DeepEqual(tables, want) {
		t.Fatalf("table names = %#v, want %#v", tables, want)
	}
}

func TestTableNamerDedupesAndFallsBack(t *testing.T) {
	namer := newTableNamer()
	got := []string{namer.next("Q1 Sales", 0), namer.next("q1-sales", 1), namer.next("***", 2)}
	want := []string{"q1_sales", "q1sales", "table_3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %#v, want %#v", got, want)
	}
	if dup := namer.next("Q1 Sales", 3); dup != "q1_sales_1" {
		t.Fatalf("duplicate name = %q", dup)
	}
	if long := SanitizeName(strings.Repeat("x", 100)); len(long) != maxIdentifierLength {
		t.Fatalf("len(long name) = %d", len(long))
	}
}

func TestIngestMaterializesAndRegistersTables(t *testing.T) {
	store := memory.New()
	registrar := &fakeRegistrar{}
	ingestor := New(registrar, store, testOptions(), nil)

	input := []sheets.Sheet{
		{
			Name:   "Orders",
			Header: []string{"Order ID", "Region", "Amount", "Ordered At", "Paid"},
			Rows: [][]string{
				{"1", "East", "10.5", "2024-01-02", "yes"},
				{"2", "West", "3", "2024-01-03", "no"},
				{"3", "East", "", "2024-01-04"},
				{"4", "North", "7.25", "2024-01-05", "yes", "extra"},
			},
		},
		{Name: "Empty", Header: []string{"a", "b"}},
	}
	dataset, err := ingestor.Ingest(context.Background(), Descriptor{Name: "sales.xlsx", SourceRef: "uploads/sales.xlsx", FileType: catalog.FileTypeXLSX}, input)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if dataset.DatasetID == "" || dataset.Name != "sales.xlsx" {
		t.Fatalf("dataset = %#v", dataset)
	}
	if registrar.calls != 1 || len(registrar.tables) != 2 {
		t.Fatalf("registered %d tables over %d calls", len(registrar.tables), registrar.calls)
	}

	orders := registrar.tables[0]
	if orders.Name != "orders" || orders.RowCount != 4 || orders.ColumnCount != 5 || orders.Position != 0 {
		t.Fatalf("orders = %#v", orders)
	}
	wantTypes := []catalog.DataType{catalog.TypeInteger, catalog.TypeText, catalog.TypeFloat, catalog.TypeDatetime, catalog.TypeBoolean}
	for i, column := range orders.Columns {
		if column.Type != wantTypes[i] {
			t.Fatalf("column %s type = %q, want %q", column.Name, column.Type, wantTypes[i])
		}
		if column.Position != i || column.TableID != orders.TableID || column.ColumnID == "" {
			t.Fatalf("column = %#v", column)
		}
	}
	if got := orders.Columns[1].SampleValues; !reflect.DeepEqual(got, []string{"East", "West", "North"}) {
		t.Fatalf("sample values = %#v", got)
	}
	if orders.Columns[2].SampleValues != nil {
		t.Fatalf("numeric column has sample values")
	}

	empty := registrar.tables[1]
	if empty.RowCount != 0 || empty.Columns[0].Type != catalog.TypeText || empty.Columns[1].Type != catalog.TypeText {
		t.Fatalf("empty table = %#v", empty)
	}

	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("stored keys = %#v", keys)
	}
	local := filepath.Join(t.TempDir(), "orders.parquet")
	if err := store.GetFile(context.Background(), orders.ObjectPath, local); err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if int64(len(data)) != orders.FileSizeBytes {
		t.Fatalf("object size = %d, catalog size = %d", len(data), orders.FileSizeBytes)
	}
	pf, err := parquet.OpenFile(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if pf.NumRows() != 4 {
		t.Fatalf("NumRows() = %d", pf.NumRows())
	}
}

func TestIngestWidensLateDecimalsAndLogsNulledCells(t *testing.T) {
	rows := make([][]string, 0, 101)
	for n := 1; n <= 100; n++ {
		rows = append(rows, []string{strconv.Itoa(n), strconv.Itoa(n * 10)})
	}
	rows = append(rows, []string{"19.99", "N/A"})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	registrar := &fakeRegistrar{}
	input := []sheets.Sheet{{Name: "Metrics", Header: []string{"Qty", "Code"}, Rows: rows}}
	_, err := New(registrar, memory.New(), testOptions(), logger).Ingest(context.Background(), Descriptor{Name: "metrics.csv", FileType: catalog.FileTypeCSV}, input)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	columns := registrar.tables[0].Columns
	if columns[0].Type != catalog.TypeFloat {
		t.Fatalf("qty type = %q, want float", columns[0].Type)
	}
	if columns[1].Type != catalog.TypeInteger {
		t.Fatalf("code type = %q, want integer", columns[1].Type)
	}

	out := logs.String()
	if !strings.Contains(out, "stored as NULL") || !strings.Contains(out, "column=code") || !strings.Contains(out, "cells=1") {
		t.Fatalf("missing NULL warning for code:\n%s", out)
	}
	if strings.Contains(out, "column=qty") {
		t.Fatalf("qty should not be reported:\n%s", out)
	}
}

func TestIngestRejectsInvalidInputWithoutSideEffects(t *testing.T) {
	cases := []struct {
		name  string
		desc  Descriptor
		input []sheets.Sheet
	}{
		{"no sheets", Descriptor{Name: "a.csv", FileType: catalog.FileTypeCSV}, nil},
		{"no header", Descriptor{Name: "a.csv", FileType: catalog.FileTypeCSV}, []sheets.Sheet{{Name: "a"}}},
		{"bad file type", Descriptor{Name: "a.ods", FileType: "ods"}, []sheets.Sheet{{Name: "a", Header: []string{"x"}}}},
		{"too many columns", Descriptor{Name: "a.csv", FileType: catalog.FileTypeCSV}, []sheets.Sheet{{Name: "a", Header: make([]string, 11)}}},
	}
	for _, tc := range cases {
		store := memory.New()
		registrar := &fakeRegistrar{}
		_, err := New(registrar, store, testOptions(), nil).Ingest(context.Background(), tc.desc, tc.input)
		if !errors.Is(err, ErrIngestion) {
			t.Fatalf("%s: error = %v, want ErrIngestion", tc.name, err)
		}
		if registrar.calls != 0 || len(store.Keys()) != 0 {
			t.Fatalf("%s: side effects: %d register calls, keys %v", tc.name, registrar.calls, store.Keys())
		}
	}
}

func TestIngestRemovesUploadedObjectsWhenRegistrationFails(t *testing.T) {
	store := memory.New()
	registrar := &fakeRegistrar{err: errors.New("catalog unavailable")}
	input := []sheets.Sheet{
		{Name: "one", Header: []string{"a"}, Rows: [][]string{{"1"}}},
		{Name: "two", Header: []string{"b"}, Rows: [][]string{{"x"}}},
	}
	_, err := New(registrar, store, testOptions(), nil).Ingest(context.Background(), Descriptor{Name: "book.xlsx", FileType: catalog.FileTypeXLSX}, input)
	if !errors.Is(err, ErrIngestion) {
		t.Fatalf("error = %v, want ErrIngestion", err)
	}
	if !strings.Contains(err.Error(), "catalog unavailable") {
		t.Fatalf("error should carry the cause: %v", err)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("objects left behind: %v", keys)
	}
}

func TestIngestFailsWhenUploadFails(t *testing.T) {
	store := memory.New()
	store.FailPut = "part-"
	registrar := &fakeRegistrar{}
	input := []sheets.Sheet{{Name: "one", Header: []string{"a"}, Rows: [][]string{{"1"}}}}
	_, err := New(registrar, store, testOptions(), nil).Ingest(context.Background(), Descriptor{Name: "one.csv", FileType: catalog.FileTypeCSV}, input)
	if !errors.Is(err, ErrIngestion) {
		t.Fatalf("error = %v, want ErrIngestion", err)
	}
	if registrar.calls != 0 {
		t.Fatalf("Register() called after failed upload")
	}
}
