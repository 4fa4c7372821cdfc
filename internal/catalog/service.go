package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Catalog serves dataset schemas. Registered datasets never change, so
// resolved schemas are cached until the dataset is deleted or the TTL lapses.
type Catalog struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

func New(repo Repository, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Catalog{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func (c *Catalog) HealthCheck(ctx context.Context) error {
	return c.repo.HealthCheck(ctx)
}

// Register stores a dataset and all of its tables and columns in one atomic step.
func (c *Catalog) Register(ctx context.Context, dataset Dataset, tables []Table) (Dataset, error) {
	if _, err := uuid.Parse(dataset.DatasetID); err != nil {
		return Dataset{}, fmt.Errorf("invalid dataset id %q: %w", dataset.DatasetID, err)
	}
	if !dataset.FileType.Valid() {
		return Dataset{}, fmt.Errorf("invalid file type %q", dataset.FileType)
	}
	if len(tables) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no tables", dataset.DatasetID)
	}
	seen := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		key := strings.ToLower(table.Name)
		if _, ok := seen[key]; ok {
			return Dataset{}, fmt.Errorf("duplicate table name %q", table.Name)
		}
		seen[key] = struct{}{}
		for _, column := range table.Columns {
			if !column.Type.Valid() {
				return Dataset{}, fmt.Errorf("column %s.%s has invalid type %q", table.Name, column.Name, column.Type)
			}
		}
	}

	stored, err := c.repo.RegisterDataset(ctx, RegisterDatasetInput{Dataset: dataset, Tables: tables})
	if err != nil {
		return Dataset{}, err
	}
	c.logger.InfoContext(ctx, "dataset registered",
		slog.String("dataset_id", stored.DatasetID),
		slog.Int("tables", len(tables)),
	)
	return stored, nil
}

func (c *Catalog) GetDataset(ctx context.Context, datasetID string) (Dataset, error) {
	if !validID(datasetID) {
		return Dataset{}, ErrNotFound
	}
	if schema, ok := c.cached(datasetID); ok {
		return schema.Dataset, nil
	}
	return c.repo.GetDataset(ctx, datasetID)
}

func (c *Catalog) ListDatasets(ctx context.Context, limit int) ([]Dataset, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.repo.ListDatasets(ctx, limit)
}

// GetSchema returns the dataset with its tables and columns in ordinal order.
func (c *Catalog) GetSchema(ctx context.Context, datasetID string) (Schema, error) {
	if !validID(datasetID) {
		return Schema{}, ErrNotFound
	}
	if schema, ok := c.cached(datasetID); ok {
		return schema, nil
	}

	dataset, err := c.repo.GetDataset(ctx, datasetID)
	if err != nil {
		return Schema{}, err
	}
	tables, err := c.repo.ListTables(ctx, datasetID)
	if err != nil {
		return Schema{}, err
	}
	schema := Schema{Dataset: dataset, Tables: tables}
	c.cache.SetDefault(datasetID, schema)
	return schema, nil
}

func (c *Catalog) ResolveTable(ctx context.Context, datasetID, name string) (Table, error) {
	schema, err := c.GetSchema(ctx, datasetID)
	if err != nil {
		return Table{}, err
	}
	table, ok := schema.Table(name)
	if !ok {
		return Table{}, ErrNotFound
	}
	return table, nil
}

// Delete removes the dataset with its tables and columns and returns the
// object paths of the materialized tables so callers can remove them.
func (c *Catalog) Delete(ctx context.Context, datasetID string) ([]string, error) {
	if !validID(datasetID) {
		return nil, ErrNotFound
	}
	c.cache.Delete(datasetID)
	paths, err := c.repo.DeleteDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "dataset deleted",
		slog.String("dataset_id", datasetID),
		slog.Int("objects", len(paths)),
	)
	return paths, nil
}

func (c *Catalog) ListDatasetsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Dataset, error) {
	return c.repo.ListDatasetsCreatedBefore(ctx, cutoff, limit)
}

func (c *Catalog) cached(datasetID string) (Schema, bool) {
	value, ok := c.cache.Get(datasetID)
	if !ok {
		return Schema{}, false
	}
	schema, ok := value.(Schema)
	return schema, ok
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
