package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tabquery/tabquery/internal/history"
	"github.com/tabquery/tabquery/internal/shape"
)

const queryColumns = `query_id, dataset_id, question, generated_sql, status, result_json, visualization_json,
       error_kind, error_message, execution_ms, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, queryID, datasetID, question string) (history.Query, error) {
	query := `
INSERT INTO query_record (query_id, dataset_id, question, status)
VALUES ($1, $2, $3, 'pending')
RETURNING ` + queryColumns

	q, err := scanQuery(s.db.QueryRowContext(ctx, query, queryID, datasetID, question))
	if err != nil {
		return history.Query{}, fmt.Errorf("insert query record: %w", err)
	}
	return q, nil
}

func (s *Store) MarkTranslated(ctx context.Context, queryID, sqlText string) (history.Query, error) {
	query := `
UPDATE query_record
SET status = 'translated', generated_sql = $2, updated_at = NOW()
WHERE query_id = $1 AND status = 'pending'
RETURNING ` + queryColumns
	return s.transition(ctx, queryID, query, queryID, sqlText)
}

func (s *Store) MarkExecuted(ctx context.Context, queryID string, snapshot history.Snapshot, visualization *shape.Descriptor, duration time.Duration) (history.Query, error) {
	resultJSON, err := json.Marshal(snapshot)
	if err != nil {
		return history.Query{}, fmt.Errorf("marshal result snapshot: %w", err)
	}
	var vizJSON any
	if visualization != nil {
		encoded, err := json.Marshal(visualization)
		if err != nil {
			return history.Query{}, fmt.Errorf("marshal visualization: %w", err)
		}
		vizJSON = string(encoded)
	}

	query := `
UPDATE query_record
SET status = 'executed', result_json = $2::jsonb, visualization_json = $3::jsonb, execution_ms = $4, updated_at = NOW()
WHERE query_id = $1 AND status = 'translated'
RETURNING ` + queryColumns
	return s.transition(ctx, queryID, query, queryID, string(resultJSON), vizJSON, duration.Milliseconds())
}

func (s *Store) MarkFailed(ctx context.Context, queryID, kind, message string) (history.Query, error) {
	query := `
UPDATE query_record
SET status = 'failed', error_kind = $2, error_message = $3, updated_at = NOW()
WHERE query_id = $1 AND status IN ('pending', 'translated')
RETURNING ` + queryColumns
	return s.transition(ctx, queryID, query, queryID, kind, message)
}

// transition runs a status-guarded update. When the guard matches nothing the
// current status decides between ErrNotFound, ErrTerminal and ErrTransition.
func (s *Store) transition(ctx context.Context, queryID, query string, args ...any) (history.Query, error) {
	q, err := scanQuery(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return history.Query{}, fmt.Errorf("update query record: %w", err)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM query_record WHERE query_id = $1`, queryID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Query{}, history.ErrNotFound
		}
		return history.Query{}, fmt.Errorf("get query status: %w", err)
	}
	return history.Query{}, history.TransitionError(history.Status(status))
}

func (s *Store) Get(ctx context.Context, queryID string) (history.Query, error) {
	query := `SELECT ` + queryColumns + ` FROM query_record WHERE query_id = $1`
	q, err := scanQuery(s.db.QueryRowContext(ctx, query, queryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Query{}, history.ErrNotFound
		}
		return history.Query{}, fmt.Errorf("get query record: %w", err)
	}
	return q, nil
}

func (s *Store) ListByDataset(ctx context.Context, datasetID string, limit int) ([]history.Query, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + queryColumns + `
FROM query_record
WHERE dataset_id = $1
ORDER BY created_at DESC, query_id ASC
LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]history.Query, 0)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return out, nil
}

func scanQuery(row rowScanner) (history.Query, error) {
	var (
		q            history.Query
		status       string
		generatedSQL sql.NullString
		resultJSON   []byte
		vizJSON      []byte
		errorKind    sql.NullString
		errorMessage sql.NullString
		executionMs  sql.NullInt64
	)
	if err := row.Scan(
		&q.QueryID,
		&q.DatasetID,
		&q.Question,
		&generatedSQL,
		&status,
		&resultJSON,
		&vizJSON,
		&errorKind,
		&errorMessage,
		&executionMs,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return history.Query{}, err
	}
	q.Status = history.Status(status)
	if generatedSQL.Valid {
		q.GeneratedSQL = &generatedSQL.String
	}
	if errorKind.Valid {
		q.ErrorKind = &errorKind.String
	}
	if errorMessage.Valid {
		q.ErrorMessage = &errorMessage.String
	}
	if executionMs.Valid {
		q.ExecutionMs = &executionMs.Int64
	}
	if len(resultJSON) > 0 {
		var snapshot history.Snapshot
		if err := json.Unmarshal(resultJSON, &snapshot); err != nil {
			return history.Query{}, fmt.Errorf("decode result snapshot: %w", err)
		}
		q.Result = &snapshot
	}
	if len(vizJSON) > 0 {
		var descriptor shape.Descriptor
		if err := json.Unmarshal(vizJSON, &descriptor); err != nil {
			return history.Query{}, fmt.Errorf("decode visualization: %w", err)
		}
		q.Visualization = &descriptor
	}
	return q, nil
}
