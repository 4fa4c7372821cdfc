package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tabquery/tabquery/internal/query"
	"github.com/tabquery/tabquery/internal/storage"
)

const downloadConcurrency = 4

// Engine runs each statement in a private in-memory DuckDB loaded with the
// requested Parquet tables. External access is switched off before the
// statement runs.
type Engine struct {
	Store   storage.ObjectStore
	WorkDir string

	open atomic.Int64
}

func NewEngine(store storage.ObjectStore, workDir string) *Engine {
	return &Engine{Store: store, WorkDir: workDir}
}

// OpenResources counts temp dirs, databases, connections and row cursors
// currently held by executions.
func (e *Engine) OpenResources() int64 {
	return e.open.Load()
}

func (e *Engine) acquire() func() {
	e.open.Add(1)
	return func() { e.open.Add(-1) }
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp(e.WorkDir, "tabquery-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	release := e.acquire()
	defer func() {
		_ = os.RemoveAll(workDir)
		release()
	}()

	localPaths, scannedBytes, err := e.download(ctx, workDir, request.Files)
	if err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	releaseDB := e.acquire()
	defer func() {
		_ = db.Close()
		releaseDB()
	}()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	releaseConn := e.acquire()
	defer func() {
		_ = conn.Close()
		releaseConn()
	}()

	for i, file := range request.Files {
		loadSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(file.TableName), quoteString(localPaths[i]))
		if _, err := conn.ExecContext(ctx, loadSQL); err != nil {
			return query.Result{}, fmt.Errorf("load table %q: %w", file.TableName, err)
		}
	}
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return query.Result{}, fmt.Errorf("lock down engine: %w", err)
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	releaseRows := e.acquire()
	defer func() {
		_ = rows.Close()
		releaseRows()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}
	keys := uniqueColumnNames(columns)

	resultRows := make([]map[string]any, 0)
	var rowCount int64
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		rowCount++
		if request.RowCap > 0 && len(resultRows) >= request.RowCap {
			continue
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(keys))
		for i, key := range keys {
			row[key] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:      keys,
		Rows:         resultRows,
		RowCount:     rowCount,
		Truncated:    rowCount > int64(len(resultRows)),
		ScannedFiles: len(request.Files),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

// download fetches every table file into workDir concurrently and returns
// the local paths in request order.
func (e *Engine) download(ctx context.Context, workDir string, files []query.TableFile) ([]string, int64, error) {
	localPaths := make([]string, len(files))
	var scannedBytes int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(downloadConcurrency)
	for i, file := range files {
		localPaths[i] = filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(file.TableName), i))
		scannedBytes += file.FileSizeBytes
		group.Go(func() error {
			if err := e.Store.GetFile(groupCtx, file.ObjectPath, localPaths[i]); err != nil {
				return fmt.Errorf("get object %q: %w", file.ObjectPath, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, err
	}
	return localPaths, scannedBytes, nil
}

// uniqueColumnNames suffixes repeated result column names with _2, _3, ...
func uniqueColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	used := make(map[string]struct{}, len(columns))
	for i, name := range columns {
		candidate := name
		for k := 2; ; k++ {
			if _, taken := used[candidate]; !taken {
				break
			}
			candidate = fmt.Sprintf("%s_%d", name, k)
		}
		used[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
