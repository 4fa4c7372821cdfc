// Package analytics is the public surface of tabquery: ingest a file, inspect
// its schema, ask questions about it and read back the recorded answers.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/explain"
	"github.com/tabquery/tabquery/internal/history"
	"github.com/tabquery/tabquery/internal/ingest"
	"github.com/tabquery/tabquery/internal/nl2sql"
	"github.com/tabquery/tabquery/internal/observability"
	"github.com/tabquery/tabquery/internal/query"
	"github.com/tabquery/tabquery/internal/shape"
	"github.com/tabquery/tabquery/internal/sheets"
	"github.com/tabquery/tabquery/internal/storage"
)

type Catalog interface {
	GetDataset(ctx context.Context, datasetID string) (catalog.Dataset, error)
	ListDatasets(ctx context.Context, limit int) ([]catalog.Dataset, error)
	GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error)
	Delete(ctx context.Context, datasetID string) ([]string, error)
}

type Ingestor interface {
	Ingest(ctx context.Context, desc ingest.Descriptor, input []sheets.Sheet) (catalog.Dataset, error)
}

type Translator interface {
	Translate(ctx context.Context, datasetID, question string) (nl2sql.Translation, error)
}

type Executor interface {
	Execute(ctx context.Context, datasetID, sql string) (query.Result, error)
}

// Narrator explains a summarized result in prose.
type Narrator interface {
	Narrate(ctx context.Context, question string, result query.Result, summary *explain.Summary) (string, error)
}

// Dependencies wires a Service. Narrator is optional; without it answers
// carry statistics only.
type Dependencies struct {
	Catalog    Catalog
	Ingestor   Ingestor
	Translator Translator
	Executor   Executor
	Narrator   Narrator
	History    history.Store
	Objects    storage.ObjectStore
	Logger     *slog.Logger
}

type Service struct {
	catalog    Catalog
	ingestor   Ingestor
	translator Translator
	executor   Executor
	narrator   Narrator
	history    history.Store
	objects    storage.ObjectStore
	logger     *slog.Logger
	newID      func() string
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:    deps.Catalog,
		ingestor:   deps.Ingestor,
		translator: deps.Translator,
		executor:   deps.Executor,
		narrator:   deps.Narrator,
		history:    deps.History,
		objects:    deps.Objects,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Ingest stores a parsed file as a new dataset. Failures wrap ingest.ErrIngestion.
func (s *Service) Ingest(ctx context.Context, desc ingest.Descriptor, input []sheets.Sheet) (catalog.Dataset, error) {
	start := time.Now()
	var rows int64
	for _, sheet := range input {
		rows += int64(len(sheet.Rows))
	}
	dataset, err := s.ingestor.Ingest(ctx, desc, input)
	observability.ObserveIngest(err == nil, rows, time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "ingestion failed",
			slog.String("name", desc.Name),
			slog.Any("error", err),
		)
		return catalog.Dataset{}, err
	}
	return dataset, nil
}

func (s *Service) GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error) {
	return s.catalog.GetSchema(ctx, datasetID)
}

func (s *Service) GetDataset(ctx context.Context, datasetID string) (catalog.Dataset, error) {
	return s.catalog.GetDataset(ctx, datasetID)
}

func (s *Service) ListDatasets(ctx context.Context, limit int) ([]catalog.Dataset, error) {
	return s.catalog.ListDatasets(ctx, limit)
}

// DeleteDataset removes the dataset from the catalog and then its objects.
// Recorded queries are kept.
func (s *Service) DeleteDataset(ctx context.Context, datasetID string) error {
	paths, err := s.catalog.Delete(ctx, datasetID)
	if err != nil {
		return err
	}
	if s.objects == nil {
		return nil
	}
	if err := storage.DeleteAll(ctx, s.objects, paths); err != nil {
		return fmt.Errorf("delete objects of dataset %s: %w", datasetID, err)
	}
	return nil
}

// Ask translates question into SQL, runs it and records the outcome. Expected
// failures (translation, execution, timeout) come back as a failed Query with
// a nil error. Unknown datasets return catalog.ErrNotFound and history or
// storage faults are returned as errors.
func (s *Service) Ask(ctx context.Context, datasetID, question string) (history.Query, error) {
	if _, err := s.catalog.GetDataset(ctx, datasetID); err != nil {
		return history.Query{}, err
	}
	question = strings.TrimSpace(question)

	queryID := s.newID()
	if _, err := s.history.Create(ctx, queryID, datasetID, question); err != nil {
		return history.Query{}, fmt.Errorf("create query: %w", err)
	}
	logger := s.logger.With(slog.String("query_id", queryID), slog.String("dataset_id", datasetID))

	translation, err := s.translator.Translate(ctx, datasetID, question)
	if err != nil {
		return s.fail(ctx, logger, queryID, err)
	}
	if _, err := s.history.MarkTranslated(ctx, queryID, translation.SQL); err != nil {
		return s.fail(ctx, logger, queryID, fmt.Errorf("record translation: %w", err))
	}
	logger.InfoContext(ctx, "question translated",
		slog.String("provider", translation.Provider),
		slog.String("model", translation.Model),
		slog.Int("attempts", translation.Attempts),
	)

	result, err := s.executor.Execute(ctx, datasetID, translation.SQL)
	if err != nil {
		return s.fail(ctx, logger, queryID, err)
	}

	var descriptor *shape.Descriptor
	if visualization, ok := shape.Shape(result); ok {
		d := visualization.Descriptor()
		descriptor = &d
	}
	snapshot := history.Snapshot{
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Analysis:  s.analyze(ctx, logger, question, result),
	}
	q, err := s.history.MarkExecuted(ctx, queryID, snapshot, descriptor, result.Duration)
	if err != nil {
		return s.fail(ctx, logger, queryID, fmt.Errorf("record result: %w", err))
	}
	logger.InfoContext(ctx, "question answered",
		slog.Int64("row_count", result.RowCount),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("elapsed", result.Duration),
	)
	return q, nil
}

// analyze summarizes result and, when a narrator is configured, adds a prose
// explanation. A failed narrative leaves the statistics in place.
func (s *Service) analyze(ctx context.Context, logger *slog.Logger, question string, result query.Result) *explain.Summary {
	summary := explain.Summarize(result)
	if summary == nil || s.narrator == nil {
		return summary
	}
	narrative, err := s.narrator.Narrate(ctx, question, result, summary)
	if err != nil {
		logger.WarnContext(ctx, "result narrative unavailable", slog.Any("error", err))
		return summary
	}
	summary.Narrative = narrative
	return summary
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, queryID string, cause error) (history.Query, error) {
	kind := Classify(cause)
	logger.WarnContext(ctx, "question failed",
		slog.String("error_kind", string(kind)),
		slog.Any("error", cause),
	)

	// The record is finalized even when the caller has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	q, err := s.history.MarkFailed(writeCtx, queryID, string(kind), failureMessage(kind, cause))
	if err != nil {
		return history.Query{}, errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	if !kind.expected() {
		return q, cause
	}
	return q, nil
}

func (s *Service) GetQuery(ctx context.Context, queryID string) (history.Query, error) {
	return s.history.Get(ctx, queryID)
}

// ListQueries returns the newest queries of a dataset. History outlives the
// dataset, so deleted datasets still list their queries.
func (s *Service) ListQueries(ctx context.Context, datasetID string, limit int) ([]history.Query, error) {
	return s.history.ListByDataset(ctx, datasetID, limit)
}
