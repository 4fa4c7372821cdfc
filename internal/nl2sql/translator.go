// Package nl2sql turns a question about a dataset into a validated DuckDB
// statement using a text generator.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/observability"
	"github.com/tabquery/tabquery/internal/sqlguard"
)

var ErrTranslation = errors.New("translation failed")

// maxAttempts is the first generation plus one corrective retry.
const maxAttempts = 2

type SchemaSource interface {
	GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error)
}

type Options struct {
	MaxContextBytes int
	Timeout         time.Duration
}

type Translation struct {
	SQL      string   `json:"sql"`
	Tables   []string `json:"tables"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Attempts int      `json:"attempts"`
}

type Translator struct {
	schemas   SchemaSource
	generator Generator
	opts      Options
	logger    *slog.Logger
}

func NewTranslator(schemas SchemaSource, generator Generator, opts Options, logger *slog.Logger) *Translator {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{schemas: schemas, generator: generator, opts: opts, logger: logger}
}

// Translate produces one validated read-only statement for question. A
// rejected or failed first attempt is retried once with the rejection reason;
// if that also fails the error wraps ErrTranslation. Unknown datasets return
// catalog.ErrNotFound.
func (t *Translator) Translate(ctx context.Context, datasetID, question string) (Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Translation{}, fmt.Errorf("%w: question is required", ErrTranslation)
	}
	schema, err := t.schemas.GetSchema(ctx, datasetID)
	if err != nil {
		return Translation{}, err
	}
	schemaContext, err := renderSchemaContext(schema, question, t.opts.MaxContextBytes)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	hints := findValueHints(schema, question)

	var previous *rejection
	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		prompt := buildPrompt(schemaContext, question, hints, previous)

		genCtx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
		completion, err := t.generator.Generate(genCtx, prompt)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("generate sql: %w", err)
			t.logger.WarnContext(ctx, "sql generation failed",
				slog.String("dataset_id", datasetID),
				slog.Int("attempt", attempts),
				slog.Any("error", err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		sql := StripMarkdownSQL(completion.Text)
		stmt, err := sqlguard.Validate(sql, schema)
		if err != nil {
			lastErr = err
			previous = &rejection{SQL: sql, Reason: err.Error()}
			t.logger.InfoContext(ctx, "generated sql rejected",
				slog.String("dataset_id", datasetID),
				slog.Int("attempt", attempts),
				slog.String("reason", err.Error()),
			)
			continue
		}

		observability.ObserveTranslation(true, attempts)
		return Translation{
			SQL:      stmt.SQL,
			Tables:   stmt.Tables,
			Provider: completion.Provider,
			Model:    completion.Model,
			Attempts: attempts,
		}, nil
	}

	observability.ObserveTranslation(false, attempts)
	return Translation{}, fmt.Errorf("%w after %d attempts: %w", ErrTranslation, attempts, lastErr)
}
