// Package history records every question asked of a dataset together with
// its translation, result snapshot and outcome.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/tabquery/tabquery/internal/explain"
	"github.com/tabquery/tabquery/internal/shape"
)

var (
	ErrNotFound = errors.New("query not found")
	// ErrTerminal is returned when updating a query that is executed or failed.
	ErrTerminal = errors.New("query is in a terminal state")
	// ErrTransition is returned for updates that skip a step, such as marking
	// a pending query executed.
	ErrTransition = errors.New("invalid query status transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusTranslated Status = "translated"
	StatusExecuted   Status = "executed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed
}

// Snapshot is the stored form of an execution result. Analysis is absent for
// results without rows.
type Snapshot struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int64            `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Analysis  *explain.Summary `json:"analysis,omitempty"`
}

type Query struct {
	QueryID       string            `json:"query_id"`
	DatasetID     string            `json:"dataset_id"`
	Question      string            `json:"question"`
	GeneratedSQL  *string           `json:"generated_sql"`
	Status        Status            `json:"status"`
	Result        *Snapshot         `json:"result"`
	Visualization *shape.Descriptor `json:"visualization"`
	ErrorKind     *string           `json:"error_kind"`
	ErrorMessage  *string           `json:"error_message"`
	ExecutionMs   *int64            `json:"execution_ms"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Store persists queries. Status only moves pending -> translated ->
// executed, or from pending/translated to failed.
type Store interface {
	Create(ctx context.Context, queryID, datasetID, question string) (Query, error)
	MarkTranslated(ctx context.Context, queryID, sql string) (Query, error)
	MarkExecuted(ctx context.Context, queryID string, snapshot Snapshot, visualization *shape.Descriptor, duration time.Duration) (Query, error)
	MarkFailed(ctx context.Context, queryID, kind, message string) (Query, error)
	Get(ctx context.Context, queryID string) (Query, error)
	ListByDataset(ctx context.Context, datasetID string, limit int) ([]Query, error)
}

// TransitionError picks ErrTerminal or ErrTransition for a rejected update of
// a query currently in status.
func TransitionError(status Status) error {
	if status.Terminal() {
		return ErrTerminal
	}
	return ErrTransition
}
