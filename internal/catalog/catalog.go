package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	RegisterDataset(ctx context.Context, in RegisterDatasetInput) (Dataset, error)
	GetDataset(ctx context.Context, datasetID string) (Dataset, error)
	ListDatasets(ctx context.Context, limit int) ([]Dataset, error)
	ListDatasetsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Dataset, error)
	ListTables(ctx context.Context, datasetID string) ([]Table, error)
	DeleteDataset(ctx context.Context, datasetID string) ([]string, error)
}

type DataType string

const (
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeText     DataType = "text"
	TypeDatetime DataType = "datetime"
	TypeBoolean  DataType = "boolean"
)

func (t DataType) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeText, TypeDatetime, TypeBoolean:
		return true
	default:
		return false
	}
}

// DuckDBType is the column type used when a table is materialized.
func (t DataType) DuckDBType() string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeDatetime:
		return "TIMESTAMP"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
)

func (f FileType) Valid() bool {
	return f == FileTypeCSV || f == FileTypeXLSX
}

type Dataset struct {
	DatasetID string    `json:"dataset_id"`
	Name      string    `json:"name"`
	SourceRef string    `json:"source_ref"`
	FileType  FileType  `json:"file_type"`
	CreatedAt time.Time `json:"created_at"`
}

type Table struct {
	TableID       string    `json:"table_id"`
	DatasetID     string    `json:"dataset_id"`
	Name          string    `json:"name"`
	Position      int       `json:"position"`
	RowCount      int64     `json:"row_count"`
	ColumnCount   int       `json:"column_count"`
	ObjectPath    string    `json:"-"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	Columns       []Column  `json:"columns"`
}

type Column struct {
	ColumnID     string   `json:"column_id"`
	TableID      string   `json:"-"`
	Name         string   `json:"name"`
	Type         DataType `json:"type"`
	Position     int      `json:"position"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// Column looks a column up by name, ignoring case.
func (t Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if strings.EqualFold(column.Name, name) {
			return column, true
		}
	}
	return Column{}, false
}

type Schema struct {
	Dataset Dataset `json:"dataset"`
	Tables  []Table `json:"tables"`
}

// Table looks a table up by name, ignoring case.
func (s Schema) Table(name string) (Table, bool) {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.Name)
	}
	return names
}

type RegisterDatasetInput struct {
	Dataset Dataset
	Tables  []Table
}
