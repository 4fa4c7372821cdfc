package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabquery/tabquery/internal/app"
	"github.com/tabquery/tabquery/internal/config"
	"github.com/tabquery/tabquery/internal/observability"
)

func main() {
	once := flag.String("once", "", "run a single cycle and exit: integrity|retention")
	datasetID := flag.String("dataset", "", "dataset to check with -once integrity")
	flag.Parse()

	cfg, err := config.LoadFromEnv("tabquery-maintenance")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	rt, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *once {
	case "":
	case "integrity":
		summary, err := rt.Maintenance.RunIntegrityCheckOnce(ctx, *datasetID)
		if err != nil {
			logger.Error("integrity check failed", slog.Any("error", err), slog.Any("summary", summary))
			os.Exit(1)
		}
		logger.Info("integrity check completed", slog.Any("summary", summary))
		return
	case "retention":
		summary, err := rt.Maintenance.RunRetentionOnce(ctx)
		if err != nil {
			logger.Error("retention failed", slog.Any("error", err), slog.Any("summary", summary))
			os.Exit(1)
		}
		logger.Info("retention completed", slog.Any("summary", summary))
		return
	default:
		logger.Error("invalid -once value", slog.String("value", *once))
		os.Exit(2)
	}

	logger.Info("maintenance worker started")
	if err := rt.Maintenance.Run(ctx); err != nil {
		logger.Error("maintenance worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("maintenance worker stopped")
}
