package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/tabquery/tabquery/internal/demo"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With(slog.String("service", "tabquery-demo"))

	cfg, err := demo.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	workbook := demo.NewGenerator(cfg.Seed).Workbook(cfg.Customers, cfg.Orders)
	file, err := os.Create(cfg.Output)
	if err != nil {
		logger.Error("failed to create output file", slog.Any("error", err))
		os.Exit(1)
	}
	if err := demo.Write(file, cfg.Format, workbook); err != nil {
		_ = file.Close()
		logger.Error("failed to write demo workbook", slog.Any("error", err))
		os.Exit(1)
	}
	if err := file.Close(); err != nil {
		logger.Error("failed to close output file", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("demo workbook written",
		slog.String("output", cfg.Output),
		slog.String("format", string(cfg.Format)),
		slog.Int("orders", cfg.Orders),
		slog.Int("customers", cfg.Customers),
		slog.Int64("seed", cfg.Seed),
	)
	fmt.Printf("next: tabquery-ingest %s\n", cfg.Output)
}
