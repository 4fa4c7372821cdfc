package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/tabquery/tabquery/internal/catalog"
)

const (
	datasetID = "8f0b2a52-8c38-4c1e-9d55-7f4b8d0f1a11"
	tableID   = "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"
	columnID  = "6ec0bd7f-11c0-43da-975e-2a8ad9ebae0b"
)

func TestRegisterDatasetInsertsEverythingInOneTx(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO dataset (dataset_id, name, source_ref, file_type)
VALUES ($1, $2, $3, $4)
RETURNING created_at`)).
		WithArgs(datasetID, "sales", "uploads/sales.csv", "csv").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO data_table (table_id, dataset_id, table_name, position, row_count, column_count, object_path, file_size_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)).
		WithArgs(tableID, datasetID, "sales", 0, int64(2), 1, "datasets/x/part.parquet", int64(512)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`
INSERT INTO table_column (column_id, table_id, column_name, data_type, position, sample_values)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)`)).
		WithArgs(columnID, tableID, "region", "text", 0, `["East","West"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	dataset, err := repo.RegisterDataset(context.Background(), catalog.RegisterDatasetInput{
		Dataset: catalog.Dataset{DatasetID: datasetID, Name: "sales", SourceRef: "uploads/sales.csv", FileType: catalog.FileTypeCSV},
		Tables: []catalog.Table{{
			TableID:       tableID,
			Name:          "sales",
			RowCount:      2,
			ColumnCount:   1,
			ObjectPath:    "datasets/x/part.parquet",
			FileSizeBytes: 512,
			Columns: []catalog.Column{
				{ColumnID: columnID, Name: "region", Type: catalog.TypeText, SampleValues: []string{"East", "West"}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("RegisterDataset() error = %v", err)
	}
	if !dataset.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", dataset.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestRegisterDatasetRollsBackOnColumnFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO dataset`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO data_table`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO table_column`)).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := repo.RegisterDataset(context.Background(), catalog.RegisterDatasetInput{
		Dataset: catalog.Dataset{DatasetID: datasetID, FileType: catalog.FileTypeCSV},
		Tables: []catalog.Table{{
			TableID: tableID,
			Name:    "t",
			Columns: []catalog.Column{{ColumnID: columnID, Name: "a", Type: catalog.TypeText}},
		}},
	})
	if err == nil {
		t.Fatal("expected register error")
	}
	assertSQLMock(t, mock)
}

func TestGetDatasetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT dataset_id, name, source_ref, file_type, created_at
FROM dataset
WHERE dataset_id = $1`)).
		WithArgs(datasetID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDataset(context.Background(), datasetID)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestListTablesAttachesColumnsInOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	secondTable := "0d2f1a77-5a0e-4f64-9b8e-3c7e7ed0b7a2"

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT table_id, dataset_id, table_name, position, row_count, column_count, object_path, file_size_bytes, created_at
FROM data_table
WHERE dataset_id = $1
ORDER BY position ASC`)).
		WithArgs(datasetID).
		WillReturnRows(sqlmock.NewRows([]string{"table_id", "dataset_id", "table_name", "position", "row_count", "column_count", "object_path", "file_size_bytes", "created_at"}).
			AddRow(tableID, datasetID, "sales", 0, int64(10), 2, "a.parquet", int64(100), now).
			AddRow(secondTable, datasetID, "returns", 1, int64(0), 1, "b.parquet", int64(50), now))
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT c.column_id, c.table_id, c.column_name, c.data_type, c.position, c.sample_values
FROM table_column c
JOIN data_table t ON t.table_id = c.table_id
WHERE t.dataset_id = $1
ORDER BY t.position ASC, c.position ASC`)).
		WithArgs(datasetID).
		WillReturnRows(sqlmock.NewRows([]string{"column_id", "table_id", "column_name", "data_type", "position", "sample_values"}).
			AddRow("c1", tableID, "region", "text", 0, []byte(`["East"]`)).
			AddRow("c2", tableID, "amount", "float", 1, []byte(`[]`)).
			AddRow("c3", secondTable, "reason", "text", 0, []byte(`[]`)))

	tables, err := repo.ListTables(context.Background(), datasetID)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("len(tables) = %d", len(tables))
	}
	if len(tables[0].Columns) != 2 || tables[0].Columns[1].Name != "amount" || tables[0].Columns[1].Type != catalog.TypeFloat {
		t.Fatalf("sales columns = %#v", tables[0].Columns)
	}
	if len(tables[0].Columns[0].SampleValues) != 1 || tables[0].Columns[0].SampleValues[0] != "East" {
		t.Fatalf("sample values = %#v", tables[0].Columns[0].SampleValues)
	}
	if len(tables[1].Columns) != 1 || tables[1].Columns[0].Name != "reason" {
		t.Fatalf("returns columns = %#v", tables[1].Columns)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDatasetReturnsObjectPaths(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT object_path
FROM data_table
WHERE dataset_id = $1
ORDER BY position ASC`)).
		WithArgs(datasetID).
		WillReturnRows(sqlmock.NewRows([]string{"object_path"}).AddRow("a.parquet").AddRow("b.parquet"))
	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM dataset
WHERE dataset_id = $1`)).
		WithArgs(datasetID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	paths, err := repo.DeleteDataset(context.Background(), datasetID)
	if err != nil {
		t.Fatalf("DeleteDataset() error = %v", err)
	}
	if len(paths) != 2 || paths[0] != "a.parquet" {
		t.Fatalf("paths = %#v", paths)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDatasetNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT object_path`)).
		WithArgs(datasetID).
		WillReturnRows(sqlmock.NewRows([]string{"object_path"}))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM dataset`)).
		WithArgs(datasetID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteDataset(context.Background(), datasetID)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestListDatasetsCreatedBefore(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	cutoff := time.Now().Add(-time.Hour).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT dataset_id, name, source_ref, file_type, created_at
FROM dataset
WHERE created_at < $1
ORDER BY created_at ASC, dataset_id ASC
LIMIT $2`)).
		WithArgs(cutoff, 10).
		WillReturnRows(sqlmock.NewRows([]string{"dataset_id", "name", "source_ref", "file_type", "created_at"}).
			AddRow(datasetID, "old", "old.xlsx", "xlsx", cutoff.Add(-time.Hour)))

	datasets, err := repo.ListDatasetsCreatedBefore(context.Background(), cutoff, 10)
	if err != nil {
		t.Fatalf("ListDatasetsCreatedBefore() error = %v", err)
	}
	if len(datasets) != 1 || datasets[0].FileType != catalog.FileTypeXLSX {
		t.Fatalf("datasets = %#v", datasets)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
