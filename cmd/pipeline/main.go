// Package main provides the E2E pipeline entry point.
// Executes: backfill → dataset → training → evaluation → forecast → report
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
	"patch-forecast-lab/internal/idhash"
	"patch-forecast-lab/internal/marketdata"
	"patch-forecast-lab/internal/marketdata/stub"
	"patch-forecast-lab/internal/pipeline"
	"patch-forecast-lab/internal/publish"
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
	skipFetch := flag.Bool("skip-fetch", false, "Train on stored candles without backfilling")
	useStub := flag.Bool("stub", false, "Use the deterministic synthetic data provider instead of the exchange")
	stubSeed := flag.Int64("stub-seed", 1, "Seed for the synthetic provider")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("received signal %v, canceling pipeline", sig)
		cancel()
	}()

	st, err := openStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer st.cleanup()

	var provider marketdata.Provider
	switch {
	case *useStub:
		provider = stub.NewProvider(*stubSeed)
	case !*skipFetch:
		provider = marketdata.NewBybitProvider(
			marketdata.WithBaseURL(cfg.Bybit.BaseURL),
			marketdata.WithCategory(cfg.Bybit.Category),
			marketdata.WithRateLimit(cfg.Bybit.RateLimit),
			marketdata.WithLogger(logger),
		)
	}

	var publisher pipeline.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub := publish.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer pub.Close()
		publisher = pub
	}

	p, err := pipeline.New(pipeline.Options{
		CandleStore:   st.candles,
		RunStore:      st.runs,
		SnapshotStore: st.snapshots,
		PointStore:    st.points,
		Provider:      provider,
		Publisher:     publisher,
		Config:        cfg,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("build pipeline: %v", err)
	}

	fmt.Println("=== Forecast Pipeline ===")
	result, err := p.Run(ctx)
	if err != nil {
		logger.Fatalf("pipeline: %v", err)
	}

	if result.Skipped {
		fmt.Printf("Run %s already stored, nothing to do\n", idhash.ShortID(result.RunID))
		return
	}
	fmt.Printf("Pipeline completed: run %s\n", idhash.ShortID(result.RunID))
	fmt.Printf("  Candles fetched: %d\n", result.CandlesFetched)
	fmt.Printf("  Candles used:    %d\n", result.CandlesUsed)
	fmt.Printf("  Epochs:          %d\n", result.EpochsRun)
	fmt.Printf("  Best val loss:   %.6f\n", result.BestValLoss)
	fmt.Printf("  Snapshots:       %d\n", result.SnapshotsSaved)
	fmt.Printf("  Dir. accuracy:   %.3f\n", result.DirectionalAccuracy)
	fmt.Printf("  MAE / RMSE:      %.4f / %.4f\n", result.MAE, result.RMSE)
	fmt.Printf("  Forecast points: %d\n", result.ForecastPoints)
	if result.ReportDir != "" {
		fmt.Printf("  Report:          %s\n", result.ReportDir)
	}
	for _, msg := range result.Errors {
		fmt.Printf("  Warning: %s\n", msg)
	}
}

type stores struct {
	candles   storage.CandleStore
	runs      storage.ForecastRunStore
	snapshots storage.SnapshotMetaStore
	points    storage.ForecastPointStore
	cleanup   func()
}

// openStores wires the PostgreSQL and ClickHouse stores, running migrations
// first, or falls back to memory for local runs.
func openStores(ctx context.Context, cfg *config.Config, useMemory bool) (*stores, error) {
	if useMemory || cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		return &stores{
			candles:   memory.NewCandleStore(),
			runs:      memory.NewForecastRunStore(),
			snapshots: memory.NewSnapshotMetaStore(),
			points:    memory.NewForecastPointStore(),
			cleanup:   func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return &stores{
		candles:   chstore.NewCandleStore(conn),
		runs:      pgstore.NewForecastRunStore(pool),
		snapshots: pgstore.NewSnapshotMetaStore(pool),
		points:    chstore.NewForecastPointStore(conn),
		cleanup: func() {
			conn.Close()
			pool.Close()
		},
	}, nil
}
