// Package memory is an in-process history.Store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tabquery/tabquery/internal/history"
	"github.com/tabquery/tabquery/internal/shape"
)

type Store struct {
	mu      sync.RWMutex
	queries map[string]history.Query
	now     func() time.Time
}

func New() *Store {
	return &Store{queries: map[string]history.Query{}, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Create(_ context.Context, queryID, datasetID, question string) (history.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	q := history.Query{
		QueryID:   queryID,
		DatasetID: datasetID,
		Question:  question,
		Status:    history.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.queries[queryID] = q
	return q, nil
}

func (s *Store) MarkTranslated(_ context.Context, queryID, sql string) (history.Query, error) {
	return s.update(queryID, []history.Status{history.StatusPending}, func(q *history.Query) {
		q.Status = history.StatusTranslated
		q.GeneratedSQL = &sql
	})
}

func (s *Store) MarkExecuted(_ context.Context, queryID string, snapshot history.Snapshot, visualization *shape.Descriptor, duration time.Duration) (history.Query, error) {
	return s.update(queryID, []history.Status{history.StatusTranslated}, func(q *history.Query) {
		ms := duration.Milliseconds()
		q.Status = history.StatusExecuted
		q.Result = &snapshot
		q.Visualization = visualization
		q.ExecutionMs = &ms
	})
}

func (s *Store) MarkFailed(_ context.Context, queryID, kind, message string) (history.Query, error) {
	return s.update(queryID, []history.Status{history.StatusPending, history.StatusTranslated}, func(q *history.Query) {
		q.Status = history.StatusFailed
		q.ErrorKind = &kind
		q.ErrorMessage = &message
	})
}

func (s *Store) update(queryID string, from []history.Status, apply func(*history.Query)) (history.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[queryID]
	if !ok {
		return history.Query{}, history.ErrNotFound
	}
	allowed := false
	for _, status := range from {
		if q.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return history.Query{}, history.TransitionError(q.Status)
	}
	apply(&q)
	q.UpdatedAt = s.now()
	s.queries[queryID] = q
	return q, nil
}

func (s *Store) Get(_ context.Context, queryID string) (history.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queries[queryID]
	if !ok {
		return history.Query{}, history.ErrNotFound
	}
	return q, nil
}

func (s *Store) ListByDataset(_ context.Context, datasetID string, limit int) ([]history.Query, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]history.Query, 0)
	for _, q := range s.queries {
		if q.DatasetID == datasetID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].QueryID < out[j].QueryID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
