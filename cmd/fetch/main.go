// Package main provides the candle ingestion entry point.
// Backfills kline history over REST and optionally follows the live stream.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/config"
	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/marketdata"
	"patch-forecast-lab/internal/storage"
	chstore "patch-forecast-lab/internal/storage/clickhouse"
	"patch-forecast-lab/internal/storage/memory"
	"patch-forecast-lab/internal/storage/migrations"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config file")
	symbol := flag.String("symbol", "", "Trading pair (overrides config)")
	interval := flag.String("interval", "", "Candle interval (overrides config)")
	from := flag.String("from", "", "Backfill start time (RFC3339)")
	to := flag.String("to", "", "Backfill end time (RFC3339, default now)")
	bars := flag.Int("bars", 2000, "Bars to backfill when -from is not set")
	exportPath := flag.String("export", "", "Write fetched candles to a CSV file after backfill")
	follow := flag.Bool("follow", false, "Follow the live kline stream after backfill")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of ClickHouse")
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
	if *interval != "" {
		cfg.Interval = *interval
	}
	iv := domain.Interval(cfg.Interval)
	if !iv.IsValid() {
		logger.Fatalf("invalid interval %q", cfg.Interval)
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

	store, cleanup, err := openCandleStore(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("open candle store: %v", err)
	}
	defer cleanup()

	endMs := time.Now().UnixMilli()
	if *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			logger.Fatalf("parse -to: %v", err)
		}
		endMs = t.UnixMilli()
	}
	startMs := endMs - int64(*bars)*iv.StepMs()
	if *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			logger.Fatalf("parse -from: %v", err)
		}
		startMs = t.UnixMilli()
	}
	if startMs < 0 {
		startMs = 0
	}

	provider := marketdata.NewBybitProvider(
		marketdata.WithBaseURL(cfg.Bybit.BaseURL),
		marketdata.WithCategory(cfg.Bybit.Category),
		marketdata.WithRateLimit(cfg.Bybit.RateLimit),
		marketdata.WithLogger(logger),
	)
	ing := marketdata.NewIngestor(provider, store, logger)

	logger.WithFields(logrus.Fields{
		"symbol":   cfg.Symbol,
		"interval": cfg.Interval,
		"from":     time.UnixMilli(startMs).Format(time.RFC3339),
		"to":       time.UnixMilli(endMs).Format(time.RFC3339),
	}).Info("starting backfill")

	inserted, err := ing.Backfill(ctx, cfg.Symbol, iv, startMs, endMs)
	if err != nil {
		logger.Fatalf("backfill: %v", err)
	}
	fmt.Printf("Backfill complete: %d candles inserted\n", inserted)

	if *exportPath != "" {
		candles, err := store.GetByTimeRange(ctx, cfg.Symbol, iv, startMs, endMs)
		if err != nil {
			logger.Fatalf("load candles for export: %v", err)
		}
		if err := exportCSV(*exportPath, candles); err != nil {
			logger.Fatalf("export csv: %v", err)
		}
		fmt.Printf("Exported %d candles to %s\n", len(candles), *exportPath)
	}

	if !*follow {
		return
	}

	streamURL := cfg.Bybit.StreamURL
	if streamURL == "" {
		streamURL = marketdata.DefaultStreamURL
	}
	logger.WithField("endpoint", streamURL).Info("following live stream")
	stream, err := marketdata.NewKlineStream(ctx, streamURL, cfg.Symbol, iv, nil, logger)
	if err != nil {
		logger.Fatalf("open stream: %v", err)
	}
	defer stream.Close()

	stored, err := ing.Follow(ctx, stream.Candles())
	if err != nil && ctx.Err() == nil {
		logger.Fatalf("follow: %v", err)
	}
	fmt.Printf("Stream closed: %d candles stored\n", stored)
}

// exportCSV writes candles as one row per bar with a header line.
func exportCSV(path string, candles []*domain.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"open_time_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.OpenTimeMs, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// openCandleStore connects the ClickHouse candle store, running migrations
// first, or falls back to memory for local runs.
func openCandleStore(ctx context.Context, cfg *config.Config, useMemory bool) (storage.CandleStore, func(), error) {
	if useMemory || cfg.ClickhouseDSN == "" {
		return memory.NewCandleStore(), func() {}, nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return nil, nil, err
	}
	return chstore.NewCandleStore(conn), func() { conn.Close() }, nil
}
