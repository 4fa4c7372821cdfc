// Package memory is an in-process catalog.Repository for tests and the demo.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
)

type Repository struct {
	mu       sync.RWMutex
	datasets map[string]catalog.Dataset
	tables   map[string][]catalog.Table
	now      func() time.Time
}

func New() *Repository {
	return &Repository{
		datasets: map[string]catalog.Dataset{},
		tables:   map[string][]catalog.Table{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for created_at stamps.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Repository) HealthCheck(context.Context) error { return nil }

func (r *Repository) RegisterDataset(_ context.Context, in catalog.RegisterDatasetInput) (catalog.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.datasets[in.Dataset.DatasetID]; exists {
		return catalog.Dataset{}, fmt.Errorf("dataset %s already exists", in.Dataset.DatasetID)
	}
	now := r.now()
	dataset := in.Dataset
	dataset.CreatedAt = now

	tables := make([]catalog.Table, len(in.Tables))
	for i, table := range in.Tables {
		table.DatasetID = dataset.DatasetID
		table.CreatedAt = now
		table.Columns = append([]catalog.Column(nil), table.Columns...)
		for c := range table.Columns {
			table.Columns[c].TableID = table.TableID
		}
		tables[i] = table
	}
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Position < tables[j].Position })

	r.datasets[dataset.DatasetID] = dataset
	r.tables[dataset.DatasetID] = tables
	return dataset, nil
}

func (r *Repository) GetDataset(_ context.Context, datasetID string) (catalog.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dataset, ok := r.datasets[datasetID]
	if !ok {
		return catalog.Dataset{}, catalog.ErrNotFound
	}
	return dataset, nil
}

func (r *Repository) ListDatasets(_ context.Context, limit int) ([]catalog.Dataset, error) {
	out := r.sorted(func(catalog.Dataset) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return head(out, limit), nil
}

func (r *Repository) ListDatasetsCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]catalog.Dataset, error) {
	out := r.sorted(func(d catalog.Dataset) bool { return d.CreatedAt.Before(cutoff) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return head(out, limit), nil
}

func (r *Repository) ListTables(_ context.Context, datasetID string) ([]catalog.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := r.tables[datasetID]
	out := make([]catalog.Table, len(tables))
	copy(out, tables)
	return out, nil
}

func (r *Repository) DeleteDataset(_ context.Context, datasetID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[datasetID]; !ok {
		return nil, catalog.ErrNotFound
	}
	paths := make([]string, 0, len(r.tables[datasetID]))
	for _, table := range r.tables[datasetID] {
		paths = append(paths, table.ObjectPath)
	}
	delete(r.datasets, datasetID)
	delete(r.tables, datasetID)
	return paths, nil
}

// sorted returns matching datasets ordered by id; callers re-sort stably by time.
func (r *Repository) sorted(keep func(catalog.Dataset) bool) []catalog.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]catalog.Dataset, 0, len(r.datasets))
	for _, dataset := range r.datasets {
		if keep(dataset) {
			out = append(out, dataset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out
}

func head(datasets []catalog.Dataset, limit int) []catalog.Dataset {
	if limit <= 0 {
		limit = 100
	}
	if len(datasets) > limit {
		return datasets[:limit]
	}
	return datasets
}
