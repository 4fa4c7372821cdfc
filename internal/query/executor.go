package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/observability"
	"github.com/tabquery/tabquery/internal/sqlguard"
)

type SchemaSource interface {
	GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error)
}

type ExecutorOptions struct {
	RowCap        int
	Timeout       time.Duration
	MaxConcurrent int
}

// Executor validates statements against the dataset catalog and runs them on
// the engine with a row cap, a timeout and a cap on concurrent executions.
type Executor struct {
	schemas  SchemaSource
	engine   Engine
	opts     ExecutorOptions
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	logger   *slog.Logger
}

func NewExecutor(schemas SchemaSource, engine Engine, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		schemas: schemas,
		engine:  engine,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:  logger,
	}
}

// Execute runs sql against the tables of datasetID. Validation and engine
// failures wrap ErrExecution; running out of time (including while waiting
// for admission) returns ErrExecutionTimeout. Unknown datasets return
// catalog.ErrNotFound.
func (e *Executor) Execute(ctx context.Context, datasetID, sql string) (Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, datasetID, sql)
	status := "success"
	switch {
	case errors.Is(err, ErrExecutionTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		observability.ObserveExecution(status, result.Truncated, time.Since(start))
	}
	return result, err
}

func (e *Executor) execute(ctx context.Context, datasetID, sql string) (Result, error) {
	schema, err := e.schemas.GetSchema(ctx, datasetID)
	if err != nil {
		return Result{}, err
	}
	stmt, err := sqlguard.Validate(sql, schema)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}

	files := make([]TableFile, 0, len(stmt.Tables))
	for _, name := range stmt.Tables {
		table, ok := schema.Table(name)
		if !ok {
			return Result{}, fmt.Errorf("%w: table %q is not in dataset %s", ErrExecution, name, datasetID)
		}
		files = append(files, TableFile{
			TableName:     table.Name,
			ObjectPath:    table.ObjectPath,
			FileSizeBytes: table.FileSizeBytes,
		})
	}

	execCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	if err := e.sem.Acquire(execCtx, 1); err != nil {
		return Result{}, e.classify(execCtx, err)
	}
	defer e.sem.Release(1)
	observability.SetExecutionsInFlight(e.inFlight.Add(1))
	defer func() { observability.SetExecutionsInFlight(e.inFlight.Add(-1)) }()

	result, err := e.engine.Execute(execCtx, Request{SQL: stmt.SQL, RowCap: e.opts.RowCap, Files: files})
	if err != nil {
		err = e.classify(execCtx, err)
		e.logger.WarnContext(ctx, "query execution failed",
			slog.String("dataset_id", datasetID),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	e.logger.DebugContext(ctx, "query executed",
		slog.String("dataset_id", datasetID),
		slog.Int64("row_count", result.RowCount),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (e *Executor) classify(execCtx context.Context, err error) error {
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrExecutionTimeout, e.opts.Timeout)
	}
	return fmt.Errorf("%w: %w", ErrExecution, err)
}

// InFlight reports the number of admitted executions.
func (e *Executor) InFlight() int64 {
	return e.inFlight.Load()
}
