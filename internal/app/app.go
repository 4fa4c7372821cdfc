// Package app wires the configured stores, engines and services shared by the
// tabquery binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tabquery/tabquery/internal/analytics"
	"github.com/tabquery/tabquery/internal/catalog"
	catalogpostgres "github.com/tabquery/tabquery/internal/catalog/postgres"
	"github.com/tabquery/tabquery/internal/config"
	"github.com/tabquery/tabquery/internal/explain"
	historypostgres "github.com/tabquery/tabquery/internal/history/postgres"
	"github.com/tabquery/tabquery/internal/ingest"
	"github.com/tabquery/tabquery/internal/maintenance"
	"github.com/tabquery/tabquery/internal/nl2sql"
	"github.com/tabquery/tabquery/internal/query"
	duckdbengine "github.com/tabquery/tabquery/internal/query/duckdb"
	s3store "github.com/tabquery/tabquery/internal/storage/s3"
)

// errTranslationDisabled is returned by the generator used when no AI API
// key is configured; questions then fail as translation errors.
var errTranslationDisabled = errors.New("translation provider is not configured")

type Runtime struct {
	DB          *sql.DB
	Objects     *s3store.Store
	CatalogRepo *catalogpostgres.Repository
	Catalog     *catalog.Catalog
	Analytics   *analytics.Service
	Maintenance *maintenance.Service
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	objects, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize object store: %w", err)
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if generator == nil {
		logger.Warn("TABQUERY_AI_API_KEY is not set; questions will fail to translate")
	}

	var narrator analytics.Narrator
	if generator != nil && cfg.AI.Narrative {
		narrator = explain.NewNarrator(generator, cfg.Translate.Timeout, logger)
	}

	repo := catalogpostgres.NewRepository(db)
	cat := catalog.New(repo, cfg.Cache.SchemaTTL, logger)
	rt := &Runtime{
		DB:          db,
		Objects:     objects,
		CatalogRepo: repo,
		Catalog:     cat,
	}
	rt.Analytics = analytics.NewService(analytics.Dependencies{
		Catalog: cat,
		Ingestor: ingest.New(cat, objects, ingest.Options{
			TypeSampleSize:   cfg.Ingest.TypeSampleSize,
			TypeThreshold:    cfg.Ingest.TypeThreshold,
			MaxColumns:       cfg.Ingest.MaxColumns,
			MaxRowsPerSheet:  cfg.Ingest.MaxRowsPerSheet,
			SampleValueLimit: cfg.Ingest.SampleValueLimit,
			TmpDir:           cfg.Ingest.MaterializeTmpDir,
		}, logger),
		Translator: nl2sql.NewTranslator(cat, generatorOrDisabled(generator), nl2sql.Options{
			MaxContextBytes: cfg.Translate.MaxContextBytes,
			Timeout:         cfg.Translate.Timeout,
		}, logger),
		Executor: query.NewExecutor(cat, duckdbengine.NewEngine(objects, cfg.Executor.WorkDir), query.ExecutorOptions{
			RowCap:        cfg.Executor.RowCap,
			Timeout:       cfg.Executor.Timeout,
			MaxConcurrent: cfg.Executor.MaxConcurrent,
		}, logger),
		Narrator: narrator,
		History:  historypostgres.NewStore(db),
		Objects:  objects,
		Logger:   logger,
	})
	rt.Maintenance = &maintenance.Service{
		Catalog:     cat,
		ObjectStore: objects,
		Config: maintenance.Config{
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
			IntegrityLimit:    cfg.Maintenance.IntegrityLimit,
			VerifyRowCounts:   cfg.Maintenance.VerifyRowCounts,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			RetentionAge:      cfg.Maintenance.RetentionAge,
			WorkDir:           cfg.Executor.WorkDir,
		},
		Logger: logger,
	}
	return rt, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

func newGenerator(cfg config.Config) (*nl2sql.OpenAIGenerator, error) {
	if cfg.AI.APIKey == "" {
		return nil, nil
	}
	generator, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize query generator: %w", err)
	}
	return generator, nil
}

func generatorOrDisabled(generator *nl2sql.OpenAIGenerator) nl2sql.Generator {
	if generator == nil {
		return disabledGenerator{}
	}
	return generator
}

type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, nl2sql.Prompt) (nl2sql.Completion, error) {
	return nl2sql.Completion{}, errTranslationDisabled
}
