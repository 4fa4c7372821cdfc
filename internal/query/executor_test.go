package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/sqlguard"
)

const testDatasetID = "0b8c7f4e-8a55-4a1c-9c36-1f1d3b2c4d5e"

type fakeSchemas struct{}

func (fakeSchemas) GetSchema(_ context.Context, datasetID string) (catalog.Schema, error) {
	if datasetID != testDatasetID {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	return catalog.Schema{
		Dataset: catalog.Dataset{DatasetID: testDatasetID},
		Tables: []catalog.Table{{
			Name:          "orders",
			ObjectPath:    "datasets/ds/tables/t/part-00000.parquet",
			FileSizeBytes: 42,
			Columns: []catalog.Column{
				{Name: "region", Type: catalog.TypeText},
				{Name: "amount", Type: catalog.TypeFloat},
			},
		}},
	}, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []Request
	block    chan struct{}
	// stubborn ignores cancellation while blocked.
	stubborn bool
	err      error
}

func (f *fakeEngine) Execute(ctx context.Context, request Request) (Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	if f.block != nil && f.stubborn {
		<-f.block
	} else if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(1)}}, RowCount: 1}, nil
}

func TestExecutorPassesValidatedStatementToEngine(t *testing.T) {
	engine := &fakeEngine{}
	executor := NewExecutor(fakeSchemas{}, engine, ExecutorOptions{RowCap: 50, Timeout: time.Second}, nil)

	result, err := executor.Execute(context.Background(), testDatasetID, "SELECT region, SUM(amount) FROM orders GROUP BY region; -- done")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("result = %#v", result)
	}
	request := engine.requests[0]
	if request.RowCap != 50 || strings.HasSuffix(request.SQL, ";") || strings.Contains(request.SQL, "--") {
		t.Fatalf("request = %#v", request)
	}
	if len(request.Files) != 1 || request.Files[0].TableName != "orders" || request.Files[0].FileSizeBytes != 42 {
		t.Fatalf("files = %#v", request.Files)
	}
}

func TestExecutorRevalidatesStatements(t *testing.T) {
	engine := &fakeEngine{}
	executor := NewExecutor(fakeSchemas{}, engine, ExecutorOptions{Timeout: time.Second}, nil)

	for _, sql := range []string{"DROP TABLE orders", "SELECT secret FROM orders", "SELECT * FROM read_csv('x.csv')"} {
		_, err := executor.Execute(context.Background(), testDatasetID, sql)
		if !errors.Is(err, ErrExecution) || !errors.Is(err, sqlguard.ErrInvalid) {
			t.Fatalf("Execute(%q) error = %v, want ErrExecution wrapping ErrInvalid", sql, err)
		}
	}
	if len(engine.requests) != 0 {
		t.Fatalf("engine received %d requests", len(engine.requests))
	}
}

func TestExecutorUnknownDataset(t *testing.T) {
	executor := NewExecutor(fakeSchemas{}, &fakeEngine{}, ExecutorOptions{}, nil)
	if _, err := executor.Execute(context.Background(), "missing", "SELECT 1"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestExecutorClassifiesEngineErrors(t *testing.T) {
	engine := &fakeEngine{err: errors.New("Binder Error: division by zero")}
	executor := NewExecutor(fakeSchemas{}, engine, ExecutorOptions{Timeout: time.Second}, nil)

	_, err := executor.Execute(context.Background(), testDatasetID, "SELECT amount / 0 FROM orders")
	if !errors.Is(err, ErrExecution) || errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("error = %v, want ErrExecution", err)
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Fatalf("error should carry engine message: %v", err)
	}
}

func TestExecutorTimesOut(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	executor := NewExecutor(fakeSchemas{}, engine, ExecutorOptions{Timeout: 20 * time.Millisecond}, nil)

	_, err := executor.Execute(context.Background(), testDatasetID, "SELECT region FROM orders")
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("error = %v, want ErrExecutionTimeout", err)
	}
	if executor.InFlight() != 0 {
		t.Fatalf("InFlight() = %d", executor.InFlight())
	}
}

func TestExecutorAdmissionWaitHonorsTimeout(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{}), stubborn: true}
	executor := NewExecutor(fakeSchemas{}, engine, ExecutorOptions{Timeout: 50 * time.Millisecond, MaxConcurrent: 1}, nil)

	holder := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_, err := executor.Execute(ctx, testDatasetID, "SELECT region FROM orders")
		holder <- err
	}()
	deadline := time.Now().Add(time.Second)
	for executor.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	_, err := executor.Execute(context.Background(), testDatasetID, "SELECT amount FROM orders")
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("queued execution error = %v, want ErrExecutionTimeout", err)
	}
	close(engine.block)
	if got := <-holder; got != nil {
		t.Fatalf("first execution error = %v", got)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.requests) != 1 {
		t.Fatalf("engine requests = %d, want 1", len(engine.requests))
	}
}
