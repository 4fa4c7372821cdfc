package query

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExecution        = errors.New("query execution failed")
	ErrExecutionTimeout = errors.New("query execution timed out")
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

// Request is a validated statement ready for an Engine.
type Request struct {
	SQL    string
	RowCap int
	Files  []TableFile
}

// Result holds at most RowCap rows. RowCount is the number of rows the
// statement produced before truncation.
type Result struct {
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int64            `json:"row_count"`
	Truncated    bool             `json:"truncated"`
	ScannedFiles int              `json:"-"`
	ScannedBytes int64            `json:"-"`
	Duration     time.Duration    `json:"-"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
