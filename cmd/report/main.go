// Package main provides the report entry point. Regenerates the markdown
// report and CSV exports from stored runs and forecast points.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/config"
	"patch-forecast-lab/internal/reporting"
	"patch-forecast-lab/internal/storage"
	chstore "patch-forecast-lab/internal/storage/clickhouse"
	"patch-forecast-lab/internal/storage/memory"
	"patch-forecast-lab/internal/storage/migrations"
	pgstore "patch-forecast-lab/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config file")
	symbol := flag.String("symbol", "", "Trading pair (overrides config)")
	outputDir := flag.String("output-dir", "", "Report directory (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *outputDir != "" {
		cfg.ReportDir = *outputDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	runStore, pointStore, cleanup, err := openStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	report, err := reporting.NewGenerator(runStore, pointStore).Generate(ctx, cfg.Symbol)
	if err != nil {
		logger.Fatalf("generate report: %v", err)
	}
	if err := reporting.WriteFiles(cfg.ReportDir, report); err != nil {
		logger.Fatalf("write report: %v", err)
	}

	fmt.Printf("Report written to %s\n", cfg.ReportDir)
	fmt.Printf("  Runs:           %d\n", report.RunCount)
	fmt.Printf("  Forecast rows:  %d\n", len(report.Forecast))
	if report.Acceptance != nil {
		fmt.Printf("  Verdict:        %s\n", report.Acceptance.Verdict)
	}
}

// openStores wires the run and point stores the report reads from, or
// falls back to memory for local runs.
func openStores(ctx context.Context, cfg *config.Config, useMemory bool) (storage.ForecastRunStore, storage.ForecastPointStore, func(), error) {
	if useMemory || cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		return memory.NewForecastRunStore(), memory.NewForecastPointStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return pgstore.NewForecastRunStore(pool), chstore.NewForecastPointStore(conn), cleanup, nil
}
