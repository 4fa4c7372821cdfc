package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabquery/tabquery/internal/app"
	"github.com/tabquery/tabquery/internal/config"
	"github.com/tabquery/tabquery/internal/ingest"
	"github.com/tabquery/tabquery/internal/observability"
	"github.com/tabquery/tabquery/internal/sheets"
)

func main() {
	name := flag.String("name", "", "dataset name; defaults to the file name")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall ingestion timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: tabquery-ingest [flags] <file.csv|file.xlsx>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.LoadFromEnv("tabquery-ingest")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	fileType, parsed, err := sheets.ParseFile(path)
	if err != nil {
		logger.Error("failed to read file", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	datasetName := strings.TrimSpace(*name)
	if datasetName == "" {
		datasetName = filepath.Base(path)
	}
	dataset, err := rt.Analytics.Ingest(ctx, ingest.Descriptor{
		Name:      datasetName,
		SourceRef: path,
		FileType:  fileType,
	}, parsed)
	if err != nil {
		logger.Error("ingestion failed", slog.Any("error", err))
		os.Exit(1)
	}

	schema, err := rt.Analytics.GetSchema(ctx, dataset.DatasetID)
	if err != nil {
		logger.Error("failed to load schema", slog.Any("error", err))
		os.Exit(1)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		logger.Error("failed to write schema", slog.Any("error", err))
		os.Exit(1)
	}
}
