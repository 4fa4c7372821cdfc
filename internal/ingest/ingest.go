// Package ingest turns parsed sheets into typed Parquet tables in the object
// store and registers them in the catalog. An upload either fully succeeds or
// leaves nothing behind.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/sheets"
	"github.com/tabquery/tabquery/internal/storage"
)

var ErrIngestion = errors.New("ingestion failed")

// Registrar stores a dataset with its tables atomically.
type Registrar interface {
	Register(ctx context.Context, dataset catalog.Dataset, tables []catalog.Table) (catalog.Dataset, error)
}

// Descriptor identifies the uploaded file.
type Descriptor struct {
	Name      string
	SourceRef string
	FileType  catalog.FileType
}

type Options struct {
	TypeSampleSize   int
	TypeThreshold    float64
	MaxColumns       int
	MaxRowsPerSheet  int
	SampleValueLimit int
	TmpDir           string
}

type Ingestor struct {
	catalog Registrar
	store   storage.ObjectStore
	opts    Options
	logger  *slog.Logger
}

func New(registrar Registrar, store storage.ObjectStore, opts Options, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{catalog: registrar, store: store, opts: opts, logger: logger}
}

// Ingest materializes every sheet and registers the dataset. Any failure is
// reported as ErrIngestion after removing objects uploaded so far.
func (i *Ingestor) Ingest(ctx context.Context, desc Descriptor, input []sheets.Sheet) (catalog.Dataset, error) {
	if i.catalog == nil || i.store == nil {
		return catalog.Dataset{}, fmt.Errorf("ingestor is not configured")
	}
	if strings.TrimSpace(desc.Name) == "" {
		return catalog.Dataset{}, fmt.Errorf("%w: dataset name is required", ErrIngestion)
	}
	if !desc.FileType.Valid() {
		return catalog.Dataset{}, fmt.Errorf("%w: unsupported file type %q", ErrIngestion, desc.FileType)
	}
	if len(input) == 0 {
		return catalog.Dataset{}, fmt.Errorf("%w: file contains no sheets", ErrIngestion)
	}

	start := time.Now()
	namer := newTableNamer()
	prepared := make([]preparedTable, 0, len(input))
	for position, sheet := range input {
		table, err := prepareSheet(sheet, namer.next(sheet.Name, position), i.opts)
		if err != nil {
			return catalog.Dataset{}, fmt.Errorf("%w: %w", ErrIngestion, err)
		}
		for c, count := range table.nulled {
			if count == 0 {
				continue
			}
			i.logger.WarnContext(ctx, "cells do not match the inferred column type and are stored as NULL",
				slog.String("table", table.name),
				slog.String("column", table.columns[c].Name),
				slog.String("type", string(table.columns[c].Type)),
				slog.Int("cells", count),
			)
		}
		prepared = append(prepared, table)
	}

	dataset := catalog.Dataset{
		DatasetID: uuid.NewString(),
		Name:      strings.TrimSpace(desc.Name),
		SourceRef: desc.SourceRef,
		FileType:  desc.FileType,
	}

	var uploaded []string
	fail := func(err error) (catalog.Dataset, error) {
		if len(uploaded) > 0 {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if cleanupErr := storage.DeleteAll(cleanupCtx, i.store, uploaded); cleanupErr != nil {
				i.logger.WarnContext(ctx, "failed to remove objects of failed ingestion",
					slog.String("dataset_id", dataset.DatasetID),
					slog.Any("error", cleanupErr),
				)
			}
		}
		return catalog.Dataset{}, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	workDir, err := os.MkdirTemp(i.opts.TmpDir, "tabquery-ingest-")
	if err != nil {
		return fail(fmt.Errorf("create work dir: %w", err))
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	tables := make([]catalog.Table, 0, len(prepared))
	for position, table := range prepared {
		tableID := uuid.NewString()
		objectPath, err := storage.BuildTableFilePath(dataset.DatasetID, tableID, 0)
		if err != nil {
			return fail(err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("table_%d.parquet", position))
		if err := writeParquet(ctx, localPath, table); err != nil {
			return fail(fmt.Errorf("materialize table %q: %w", table.name, err))
		}
		size, err := verifyParquet(localPath, table)
		if err != nil {
			return fail(fmt.Errorf("verify table %q: %w", table.name, err))
		}

		info, err := i.store.PutFile(ctx, objectPath, localPath, storage.PutOptions{ContentType: storage.ParquetContentType})
		if err != nil {
			return fail(fmt.Errorf("upload table %q: %w", table.name, err))
		}
		uploaded = append(uploaded, objectPath)
		if info.Size > 0 && info.Size != size {
			return fail(fmt.Errorf("uploaded table %q has %d bytes, expected %d", table.name, info.Size, size))
		}

		columns := make([]catalog.Column, len(table.columns))
		for c, column := range table.columns {
			column.ColumnID = uuid.NewString()
			column.TableID = tableID
			columns[c] = column
		}
		tables = append(tables, catalog.Table{
			TableID:       tableID,
			DatasetID:     dataset.DatasetID,
			Name:          table.name,
			Position:      position,
			RowCount:      int64(len(table.rows)),
			ColumnCount:   len(columns),
			ObjectPath:    objectPath,
			FileSizeBytes: size,
			Columns:       columns,
		})
	}

	stored, err := i.catalog.Register(ctx, dataset, tables)
	if err != nil {
		return fail(fmt.Errorf("register dataset: %w", err))
	}

	i.logger.InfoContext(ctx, "dataset ingested",
		slog.String("dataset_id", stored.DatasetID),
		slog.String("name", stored.Name),
		slog.Int("tables", len(tables)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stored, nil
}
