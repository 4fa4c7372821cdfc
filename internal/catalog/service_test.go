package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeRepository struct {
	datasets   map[string]Dataset
	tables     map[string][]Table
	listCalls  int
	registered []RegisterDatasetInput
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{datasets: map[string]Dataset{}, tables: map[string][]Table{}}
}

func (f *fakeRepository) HealthCheck(context.Context) error { return nil }

func (f *fakeRepository) RegisterDataset(_ context.Context, in RegisterDatasetInput) (Dataset, error) {
	f.registered = append(f.registered, in)
	ds := in.Dataset
	ds.CreatedAt = time.Unix(1700000000, 0).UTC()
	f.datasets[ds.DatasetID] = ds
	f.tables[ds.DatasetID] = in.Tables
	return ds, nil
}

func (f *fakeRepository) GetDataset(_ context.Context, id string) (Dataset, error) {
	ds, ok := f.datasets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return ds, nil
}

func (f *fakeRepository) ListDatasets(context.Context, int) ([]Dataset, error) {
	out := make([]Dataset, 0, len(f.datasets))
	for _, ds := range f.datasets {
		out = append(out, ds)
	}
	return out, nil
}

func (f *fakeRepository) ListDatasetsCreatedBefore(context.Context, time.Time, int) ([]Dataset, error) {
	return nil, nil
}

func (f *fakeRepository) ListTables(_ context.Context, id string) ([]Table, error) {
	f.listCalls++
	return f.tables[id], nil
}

func (f *fakeRepository) DeleteDataset(_ context.Context, id string) ([]string, error) {
	if _, ok := f.datasets[id]; !ok {
		return nil, ErrNotFound
	}
	paths := make([]string, 0)
	for _, table := range f.tables[id] {
		paths = append(paths, table.ObjectPath)
	}
	delete(f.datasets, id)
	delete(f.tables, id)
	return paths, nil
}

func salesTables() []Table {
	return []Table{{
		TableID:    uuid.NewString(),
		Name:       "sales",
		RowCount:   2,
		ObjectPath: "datasets/x/tables/sales/part-00000.parquet",
		Columns: []Column{
			{ColumnID: uuid.NewString(), Name: "region", Type: TypeText, Position: 0},
			{ColumnID: uuid.NewString(), Name: "amount", Type: TypeFloat, Position: 1},
		},
	}}
}

func TestRegisterThenGetSchemaUsesCache(t *testing.T) {
	repo := newFakeRepository()
	c := New(repo, time.Minute, nil)
	id := uuid.NewString()

	if _, err := c.Register(context.Background(), Dataset{DatasetID: id, Name: "sales.csv", FileType: FileTypeCSV}, salesTables()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		schema, err := c.GetSchema(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSchema() error = %v", err)
		}
		if len(schema.Tables) != 1 || len(schema.Tables[0].Columns) != 2 {
			t.Fatalf("schema = %#v", schema)
		}
	}
	if repo.listCalls != 1 {
		t.Fatalf("ListTables calls = %d, want 1", repo.listCalls)
	}
}

func TestGetSchemaUnknownDatasetReturnsNotFound(t *testing.T) {
	c := New(newFakeRepository(), time.Minute, nil)

	if _, err := c.GetSchema(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSchema() error = %v, want ErrNotFound", err)
	}
	if _, err := c.GetSchema(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSchema(malformed) error = %v, want ErrNotFound", err)
	}
}

func TestResolveTableIsCaseInsensitiveAndScoped(t *testing.T) {
	repo := newFakeRepository()
	c := New(repo, time.Minute, nil)
	first := uuid.NewString()
	second := uuid.NewString()
	if _, err := c.Register(context.Background(), Dataset{DatasetID: first, FileType: FileTypeCSV}, salesTables()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.Register(context.Background(), Dataset{DatasetID: second, FileType: FileTypeXLSX}, []Table{{Name: "inventory"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	table, err := c.ResolveTable(context.Background(), first, "SALES")
	if err != nil {
		t.Fatalf("ResolveTable() error = %v", err)
	}
	if table.Name != "sales" {
		t.Fatalf("table = %q", table.Name)
	}
	if _, err := c.ResolveTable(context.Background(), second, "sales"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveTable(other dataset) error = %v, want ErrNotFound", err)
	}
}

func TestRegisterRejectsDuplicateTableNames(t *testing.T) {
	c := New(newFakeRepository(), time.Minute, nil)
	tables := append(salesTables(), Table{Name: "Sales"})
	_, err := c.Register(context.Background(), Dataset{DatasetID: uuid.NewString(), FileType: FileTypeXLSX}, tables)
	if err == nil {
		t.Fatal("expected duplicate table error")
	}
}

func TestRegisterRejectsInvalidColumnType(t *testing.T) {
	c := New(newFakeRepository(), time.Minute, nil)
	tables := []Table{{Name: "t", Columns: []Column{{Name: "a", Type: "money"}}}}
	if _, err := c.Register(context.Background(), Dataset{DatasetID: uuid.NewString(), FileType: FileTypeCSV}, tables); err == nil {
		t.Fatal("expected invalid type error")
	}
}

func TestDeleteInvalidatesCache(t *testing.T) {
	repo := newFakeRepository()
	c := New(repo, time.Minute, nil)
	id := uuid.NewString()
	if _, err := c.Register(context.Background(), Dataset{DatasetID: id, FileType: FileTypeCSV}, salesTables()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.GetSchema(context.Background(), id); err != nil {
		t.Fatalf("GetSchema() error = %v", err)
	}

	paths, err := c.Delete(context.Background(), id)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %#v", paths)
	}
	if _, err := c.GetSchema(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSchema() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDataTypeDuckDBType(t *testing.T) {
	cases := map[DataType]string{
		TypeInteger:  "BIGINT",
		TypeFloat:    "DOUBLE",
		TypeText:     "VARCHAR",
		TypeDatetime: "TIMESTAMP",
		TypeBoolean:  "BOOLEAN",
	}
	for dt, want := range cases {
		if got := dt.DuckDBType(); got != want {
			t.Fatalf("%s.DuckDBType() = %q, want %q", dt, got, want)
		}
	}
}
