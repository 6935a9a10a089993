// Package main provides the unified daemon that runs all components together:
// - Fetch (scheduled): REST backfill of the newest candles
// - Pipeline (scheduled): dataset → training → forecast → report
// - Report (scheduled): report regeneration between pipeline runs
// - HTTP: health, status, metrics, and forecast read endpoints
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/config"
	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/idhash"
	"patch-forecast-lab/internal/marketdata"
	"patch-forecast-lab/internal/observability"
	"patch-forecast-lab/internal/pipeline"
	"patch-forecast-lab/internal/publish"
	"patch-forecast-lab/internal/reporting"
	"patch-forecast-lab/internal/storage"
	chstore "patch-forecast-lab/internal/storage/clickhouse"
	"patch-forecast-lab/internal/storage/memory"
	"patch-forecast-lab/internal/storage/migrations"
	pgstore "patch-forecast-lab/internal/storage/postgres"
)

// Server holds all components of the unified service.
type Server struct {
	stores    *stores
	provider  marketdata.Provider
	publisher pipeline.Publisher
	logger    *logrus.Logger

	// State
	mu              sync.Mutex
	cfg             *config.Config
	startedAt       time.Time
	lastFetch       time.Time
	lastPipeline    time.Time
	fetchRunning    bool
	pipelineRunning bool
	lastRunID       string
	lastError       string

	// Stats
	fetchRuns    int
	pipelineRuns int
	reportRuns   int
}

type stores struct {
	candles   storage.CandleStore
	runs      storage.ForecastRunStore
	snapshots storage.SnapshotMetaStore
	points    storage.ForecastPointStore
	cleanup   func()
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to YAML config file (watched for changes)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, *useMemory)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer st.cleanup()

	srv := &Server{
		stores: st,
		provider: marketdata.NewBybitProvider(
			marketdata.WithBaseURL(cfg.Bybit.BaseURL),
			marketdata.WithCategory(cfg.Bybit.Category),
			marketdata.WithRateLimit(cfg.Bybit.RateLimit),
			marketdata.WithLogger(logger),
		),
		logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := publish.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer pub.Close()
		srv.publisher = pub
	}

	// Hot reload: the config file is watched and swapped in atomically;
	// the next scheduled run picks the new settings up.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
				srv.mu.Lock()
				srv.cfg = next
				srv.mu.Unlock()
				logger.Info("configuration reloaded")
			})
			if err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("config watcher stopped")
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go srv.fetchScheduler(ctx, &wg)
	go srv.pipelineScheduler(ctx, &wg)
	go srv.reportScheduler(ctx, &wg)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.routes(),
	}
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Infof("received signal %v, shutting down", sig)
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	wg.Wait()
	logger.Info("shutdown complete")
}

// currentConfig returns the live configuration snapshot.
func (s *Server) currentConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// fetchScheduler keeps the candle store topped up with the newest bars.
func (s *Server) fetchScheduler(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	s.runFetch(ctx)
	for {
		interval := time.Duration(s.currentConfig().Server.FetchIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			s.runFetch(ctx)
		}
	}
}

func (s *Server) runFetch(ctx context.Context) {
	s.mu.Lock()
	if s.fetchRunning {
		s.mu.Unlock()
		return
	}
	s.fetchRunning = true
	cfg := s.cfg
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetchRunning = false
		s.mu.Unlock()
	}()

	interval := domain.Interval(cfg.Interval)
	endMs := time.Now().UnixMilli()
	startMs := endMs - int64(cfg.Model.InputLen+cfg.Model.ForecastLen)*2*interval.StepMs()
	if startMs < 0 {
		startMs = 0
	}
	ing := marketdata.NewIngestor(s.provider, s.stores.candles, s.logger)
	inserted, err := ing.Backfill(ctx, cfg.Symbol, interval, startMs, endMs)
	if err != nil {
		s.setError(fmt.Sprintf("fetch: %v", err))
		s.logger.WithError(err).Error("scheduled fetch failed")
		return
	}

	s.mu.Lock()
	s.lastFetch = time.Now()
	s.fetchRuns++
	s.lastError = ""
	s.mu.Unlock()
	s.logger.WithField("inserted", inserted).Info("scheduled fetch finished")
}

// pipelineScheduler retrains and reforecasts on its own cadence. The run
// identity check inside the pipeline makes a tick over unchanged data cheap.
func (s *Server) pipelineScheduler(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		interval := time.Duration(s.currentConfig().Server.PipelineIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			s.runPipeline(ctx)
		}
	}
}

func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.pipelineRunning {
		s.mu.Unlock()
		return
	}
	s.pipelineRunning = true
	cfg := s.cfg
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pipelineRunning = false
		s.mu.Unlock()
	}()

	p, err := pipeline.New(pipeline.Options{
		CandleStore:   s.stores.candles,
		RunStore:      s.stores.runs,
		SnapshotStore: s.stores.snapshots,
		PointStore:    s.stores.points,
		Provider:      s.provider,
		Publisher:     s.publisher,
		Config:        cfg,
		Logger:        s.logger,
	})
	if err != nil {
		s.setError(fmt.Sprintf("pipeline: %v", err))
		s.logger.WithError(err).Error("pipeline construction failed")
		return
	}
	result, err := p.Run(ctx)
	if err != nil {
		s.setError(fmt.Sprintf("pipeline: %v", err))
		s.logger.WithError(err).Error("scheduled pipeline failed")
		return
	}

	s.mu.Lock()
	s.lastPipeline = time.Now()
	s.pipelineRuns++
	s.lastRunID = result.RunID
	s.lastError = ""
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"run_id":  idhash.ShortID(result.RunID),
		"skipped": result.Skipped,
	}).Info("scheduled pipeline finished")
}

// reportScheduler refreshes the report files between pipeline runs.
func (s *Server) reportScheduler(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		interval := time.Duration(s.currentConfig().Server.ReportIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			s.runReport(ctx)
		}
	}
}

func (s *Server) runReport(ctx context.Context) {
	cfg := s.currentConfig()
	if cfg.ReportDir == "" {
		return
	}
	report, err := reporting.NewGenerator(s.stores.runs, s.stores.points).Generate(ctx, cfg.Symbol)
	if err != nil {
		s.logger.WithError(err).Error("scheduled report generation failed")
		return
	}
	if err := reporting.WriteFiles(cfg.ReportDir, report); err != nil {
		s.logger.WithError(err).Error("scheduled report write failed")
		return
	}
	s.mu.Lock()
	s.reportRuns++
	s.mu.Unlock()
	observability.DefaultMetrics.ReportsGenerated.Inc()
}

func (s *Server) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/forecasts/latest", s.handleLatestForecast)
	mux.Handle("/metrics", observability.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := map[string]interface{}{
		"symbol":           s.cfg.Symbol,
		"interval":         s.cfg.Interval,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"last_fetch":       s.lastFetch,
		"last_pipeline":    s.lastPipeline,
		"fetch_runs":       s.fetchRuns,
		"pipeline_runs":    s.pipelineRuns,
		"report_runs":      s.reportRuns,
		"pipeline_running": s.pipelineRunning,
		"last_run_id":      s.lastRunID,
		"last_error":       s.lastError,
	}
	s.mu.Unlock()

	observability.DefaultMetrics.UptimeSeconds.Set(time.Since(s.startedAt).Seconds())
	writeJSON(w, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	runs, err := s.stores.runs.GetBySymbol(r.Context(), cfg.Symbol)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleLatestForecast(w http.ResponseWriter, r *http.Request) {
	cfg := s.currentConfig()
	run, err := s.stores.runs.GetLatest(r.Context(), cfg.Symbol, domain.Interval(cfg.Interval))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no forecast runs yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	points, err := s.stores.points.GetByRunID(r.Context(), run.RunID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"run":    run,
		"points": points,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
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
