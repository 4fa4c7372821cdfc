package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
)

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// RegisterDataset inserts the dataset, its tables and their columns in a
// single transaction. Nothing is visible unless every insert succeeds.
func (r *Repository) RegisterDataset(ctx context.Context, in catalog.RegisterDatasetInput) (catalog.Dataset, error) {
	dataset := in.Dataset
	err := r.WithTx(ctx, func(tx *TxRepository) error {
		createdAt, err := tx.InsertDataset(ctx, dataset)
		if err != nil {
			return err
		}
		dataset.CreatedAt = createdAt
		for _, table := range in.Tables {
			table.DatasetID = dataset.DatasetID
			if err := tx.InsertTable(ctx, table); err != nil {
				return err
			}
			for _, column := range table.Columns {
				column.TableID = table.TableID
				if err := tx.InsertColumn(ctx, column); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return catalog.Dataset{}, fmt.Errorf("register dataset: %w", err)
	}
	return dataset, nil
}

func (r *Repository) GetDataset(ctx context.Context, datasetID string) (catalog.Dataset, error) {
	query := `
SELECT dataset_id, name, source_ref, file_type, created_at
FROM dataset
WHERE dataset_id = $1`

	var dataset catalog.Dataset
	var fileType string
	if err := r.db.QueryRowContext(ctx, query, datasetID).Scan(
		&dataset.DatasetID,
		&dataset.Name,
		&dataset.SourceRef,
		&fileType,
		&dataset.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Dataset{}, catalog.ErrNotFound
		}
		return catalog.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	dataset.FileType = catalog.FileType(fileType)
	return dataset, nil
}

func (r *Repository) ListDatasets(ctx context.Context, limit int) ([]catalog.Dataset, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT dataset_id, name, source_ref, file_type, created_at
FROM dataset
ORDER BY created_at DESC, dataset_id ASC
LIMIT $1`
	return r.listDatasets(ctx, query, limit)
}

func (r *Repository) ListDatasetsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]catalog.Dataset, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT dataset_id, name, source_ref, file_type, created_at
FROM dataset
WHERE created_at < $1
ORDER BY created_at ASC, dataset_id ASC
LIMIT $2`
	return r.listDatasets(ctx, query, cutoff, limit)
}

func (r *Repository) listDatasets(ctx context.Context, query string, args ...any) ([]catalog.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := make([]catalog.Dataset, 0)
	for rows.Next() {
		var dataset catalog.Dataset
		var fileType string
		if err := rows.Scan(&dataset.DatasetID, &dataset.Name, &dataset.SourceRef, &fileType, &dataset.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		dataset.FileType = catalog.FileType(fileType)
		datasets = append(datasets, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return datasets, nil
}

// ListTables returns the dataset's tables in ingestion order, each with its
// columns in ordinal order.
func (r *Repository) ListTables(ctx context.Context, datasetID string) ([]catalog.Table, error) {
	tableQuery := `
SELECT table_id, dataset_id, table_name, position, row_count, column_count, object_path, file_size_bytes, created_at
FROM data_table
WHERE dataset_id = $1
ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, tableQuery, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]catalog.Table, 0)
	index := make(map[string]int)
	for rows.Next() {
		var table catalog.Table
		if err := rows.Scan(
			&table.TableID,
			&table.DatasetID,
			&table.Name,
			&table.Position,
			&table.RowCount,
			&table.ColumnCount,
			&table.ObjectPath,
			&table.FileSizeBytes,
			&table.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		table.Columns = make([]catalog.Column, 0, table.ColumnCount)
		index[table.TableID] = len(tables)
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	if len(tables) == 0 {
		return tables, nil
	}

	columnQuery := `
SELECT c.column_id, c.table_id, c.column_name, c.data_type, c.position, c.sample_values
FROM table_column c
JOIN data_table t ON t.table_id = c.table_id
WHERE t.dataset_id = $1
ORDER BY t.position ASC, c.position ASC`

	columnRows, err := r.db.QueryContext(ctx, columnQuery, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = columnRows.Close() }()

	for columnRows.Next() {
		var column catalog.Column
		var dataType string
		var samples []byte
		if err := columnRows.Scan(&column.ColumnID, &column.TableID, &column.Name, &dataType, &column.Position, &samples); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		column.Type = catalog.DataType(dataType)
		if len(samples) > 0 {
			if err := json.Unmarshal(samples, &column.SampleValues); err != nil {
				return nil, fmt.Errorf("decode sample values for column %s: %w", column.ColumnID, err)
			}
		}
		i, ok := index[column.TableID]
		if !ok {
			continue
		}
		tables[i].Columns = append(tables[i].Columns, column)
	}
	if err := columnRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return tables, nil
}

// DeleteDataset removes the dataset; tables and columns go with it through
// ON DELETE CASCADE. The object paths of the removed tables are returned.
func (r *Repository) DeleteDataset(ctx context.Context, datasetID string) ([]string, error) {
	var paths []string
	err := r.WithTx(ctx, func(tx *TxRepository) error {
		var err error
		paths, err = tx.ListObjectPaths(ctx, datasetID)
		if err != nil {
			return err
		}
		result, err := tx.q.ExecContext(ctx, `
DELETE FROM dataset
WHERE dataset_id = $1`, datasetID)
		if err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete dataset rows affected: %w", err)
		}
		if affected == 0 {
			return catalog.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txRepo := &TxRepository{q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type TxRepository struct {
	q dbTX
}

func (r *TxRepository) InsertDataset(ctx context.Context, dataset catalog.Dataset) (time.Time, error) {
	query := `
INSERT INTO dataset (dataset_id, name, source_ref, file_type)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

	var createdAt time.Time
	if err := r.q.QueryRowContext(ctx, query, dataset.DatasetID, dataset.Name, dataset.SourceRef, string(dataset.FileType)).Scan(&createdAt); err != nil {
		return time.Time{}, fmt.Errorf("insert dataset in tx: %w", err)
	}
	return createdAt, nil
}

func (r *TxRepository) InsertTable(ctx context.Context, table catalog.Table) error {
	query := `
INSERT INTO data_table (table_id, dataset_id, table_name, position, row_count, column_count, object_path, file_size_bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.q.ExecContext(ctx, query,
		table.TableID,
		table.DatasetID,
		table.Name,
		table.Position,
		table.RowCount,
		table.ColumnCount,
		table.ObjectPath,
		table.FileSizeBytes,
	); err != nil {
		return fmt.Errorf("insert table %q in tx: %w", table.Name, err)
	}
	return nil
}

func (r *TxRepository) InsertColumn(ctx context.Context, column catalog.Column) error {
	samples := column.SampleValues
	if samples == nil {
		samples = []string{}
	}
	encoded, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode sample values: %w", err)
	}

	query := `
INSERT INTO table_column (column_id, table_id, column_name, data_type, position, sample_values)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)`

	if _, err := r.q.ExecContext(ctx, query,
		column.ColumnID,
		column.TableID,
		column.Name,
		string(column.Type),
		column.Position,
		string(encoded),
	); err != nil {
		return fmt.Errorf("insert column %q in tx: %w", column.Name, err)
	}
	return nil
}

func (r *TxRepository) ListObjectPaths(ctx context.Context, datasetID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT object_path
FROM data_table
WHERE dataset_id = $1
ORDER BY position ASC`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list object paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan object path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object paths: %w", err)
	}
	return paths, nil
}
