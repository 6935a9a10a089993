// Package pipeline provides E2E forecast pipeline orchestration.
// It coordinates: ingestion → dataset → training → evaluation → forecast → report
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/checkpoint"
	"patch-forecast-lab/internal/config"
	"patch-forecast-lab/internal/dataset"
	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/forecast"
	"patch-forecast-lab/internal/idhash"
	"patch-forecast-lab/internal/marketdata"
	"patch-forecast-lab/internal/model"
	"patch-forecast-lab/internal/observability"
	"patch-forecast-lab/internal/reporting"
	"patch-forecast-lab/internal/storage"
	"patch-forecast-lab/internal/training"
)

var (
	ErrInsufficientCandles = errors.New("not enough candles for one training window")
	ErrNoTrainedRun        = errors.New("no trained run for symbol and interval")
)

// Publisher emits a completed forecast to an external sink. The kafka
// publisher satisfies this; tests substitute a fake.
type Publisher interface {
	PublishForecast(ctx context.Context, run *domain.ForecastRun, points []*domain.ForecastPoint) error
}

// Pipeline coordinates the E2E forecast pipeline execution.
// Flow: backfill → dataset → training → holdout evaluation → rolling forecast → report
type Pipeline struct {
	// Stores
	candleStore   storage.CandleStore
	runStore      storage.ForecastRunStore
	snapshotStore storage.SnapshotMetaStore
	pointStore    storage.ForecastPointStore

	// Optional collaborators
	provider  marketdata.Provider
	publisher Publisher

	cfg *config.Config
	log logrus.FieldLogger
	now func() time.Time
}

// Options for creating a Pipeline.
type Options struct {
	// Required stores
	CandleStore   storage.CandleStore
	RunStore      storage.ForecastRunStore
	SnapshotStore storage.SnapshotMetaStore
	PointStore    storage.ForecastPointStore

	// Provider backfills candles before training. Nil runs the pipeline
	// on whatever the candle store already holds.
	Provider marketdata.Provider

	// Publisher emits the finished forecast. Nil disables publishing.
	Publisher Publisher

	Config *config.Config
	Logger logrus.FieldLogger

	// Clock override for tests.
	Now func() time.Time
}

// New creates a new Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.CandleStore == nil:
		return nil, errors.New("candle store is required")
	case opts.RunStore == nil:
		return nil, errors.New("forecast run store is required")
	case opts.SnapshotStore == nil:
		return nil, errors.New("snapshot meta store is required")
	case opts.PointStore == nil:
		return nil, errors.New("forecast point store is required")
	case opts.Config == nil:
		return nil, errors.New("config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		candleStore:   opts.CandleStore,
		runStore:      opts.RunStore,
		snapshotStore: opts.SnapshotStore,
		pointStore:    opts.PointStore,
		provider:      opts.Provider,
		publisher:     opts.Publisher,
		cfg:           opts.Config,
		log:           log,
		now:           now,
	}, nil
}

// RunResult contains results from pipeline execution.
type RunResult struct {
	RunID               string
	Skipped             bool // identical work already stored
	CandlesFetched      int
	CandlesUsed         int
	EpochsRun           int
	BestValLoss         float64
	SnapshotsSaved      int
	DirectionalAccuracy float64
	MAE                 float64
	RMSE                float64
	ForecastPoints      int
	ReportDir           string
	Errors              []string
}

// datasetBundle is the output of the dataset phase: the windowed dataset,
// its contiguous splits, and the run identity derived from data and config.
type datasetBundle struct {
	ds               *dataset.WindowedDataset
	train, val, test dataset.Range
	runID            string
	configJSON       string
	dataStartMs      int64
	dataEndMs        int64
	rows             int
}

// runIdentity is the configuration slice that defines run identity.
// Infrastructure settings (DSNs, brokers, directories) are excluded so
// moving a deployment does not change run IDs.
type runIdentity struct {
	Model    model.Config       `json:"model"`
	Training training.Config    `json:"training"`
	Splits   config.SplitConfig `json:"splits"`
	Horizon  int                `json:"horizon"`
}

// Run executes the full E2E pipeline.
// Phases:
//  1. Backfill candles (when a provider is configured)
//  2. Load candles and build the windowed dataset
//  3. Train the model, persisting best snapshots
//  4. Evaluate on the held-out test range
//  5. Rolling forecast and point persistence
//  6. Persist run metadata, write report, publish
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := p.now()
	result := &RunResult{}
	symbol := p.cfg.Symbol
	interval := domain.Interval(p.cfg.Interval)

	// Phase 1: Backfill
	if p.provider != nil {
		p.log.Info("phase 1: backfilling candles")
		fetched, err := p.backfill(ctx, symbol, interval)
		if err != nil {
			observability.RecordPipelineRun("backfill", "error", p.since(started))
			return nil, fmt.Errorf("phase 1 (backfill) failed: %w", err)
		}
		result.CandlesFetched = fetched
		p.log.WithField("fetched", fetched).Info("backfill finished")
	} else {
		p.log.Info("phase 1: no provider configured, using stored candles")
	}

	// Phase 2: Dataset
	bundle, err := p.buildDataset(ctx, symbol, interval, result)
	if err != nil {
		return nil, err
	}
	result.RunID = bundle.runID
	if skipped, err := p.checkStoredRun(ctx, bundle.runID, result); err != nil {
		return nil, err
	} else if skipped {
		return result, nil
	}

	// Phase 3: Training
	m, fit, snapshotMetas, err := p.trainModel(ctx, bundle, result)
	if err != nil {
		return nil, err
	}

	// Phase 4: Holdout evaluation
	fc := forecast.New(m, bundle.ds.CloseScale())
	p.evaluateHoldout(fc, bundle, result)

	// Phase 5: Rolling forecast
	points, err := p.rollingForecast(ctx, fc, bundle.runID, bundle.ds)
	if err != nil {
		return nil, err
	}
	result.ForecastPoints = len(points)
	observability.RecordForecast(len(points), result.DirectionalAccuracy, result.RMSE)

	// Phase 6: Persist run, report, publish
	p.log.Info("phase 6: persisting run and writing report")
	run := p.buildRun(bundle, fit, snapshotMetas, result)
	if err := p.runStore.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("phase 6 (store run) failed: %w", err)
	}
	if err := p.storeSnapshotMetas(ctx, snapshotMetas); err != nil {
		return nil, fmt.Errorf("phase 6 (store snapshot metas) failed: %w", err)
	}
	p.writeReport(ctx, symbol, result)
	p.publish(ctx, run, points, result)

	observability.RecordPipelineRun("full", "ok", p.since(started))
	observability.DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()
	p.log.WithFields(logrus.Fields{
		"run_id": idhash.ShortID(bundle.runID),
		"points": len(points),
	}).Info("pipeline finished")
	return result, nil
}

// Train runs the dataset, training and evaluation phases over stored
// candles, persisting the run row and its snapshots but no forecast.
func (p *Pipeline) Train(ctx context.Context) (*RunResult, error) {
	started := p.now()
	result := &RunResult{}
	symbol := p.cfg.Symbol
	interval := domain.Interval(p.cfg.Interval)

	bundle, err := p.buildDataset(ctx, symbol, interval, result)
	if err != nil {
		return nil, err
	}
	result.RunID = bundle.runID
	if skipped, err := p.checkStoredRun(ctx, bundle.runID, result); err != nil {
		return nil, err
	} else if skipped {
		return result, nil
	}

	m, fit, snapshotMetas, err := p.trainModel(ctx, bundle, result)
	if err != nil {
		return nil, err
	}
	p.evaluateHoldout(forecast.New(m, bundle.ds.CloseScale()), bundle, result)

	run := p.buildRun(bundle, fit, snapshotMetas, result)
	if err := p.runStore.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("store run failed: %w", err)
	}
	if err := p.storeSnapshotMetas(ctx, snapshotMetas); err != nil {
		return nil, fmt.Errorf("store snapshot metas failed: %w", err)
	}
	observability.RecordPipelineRun("train", "ok", p.since(started))
	return result, nil
}

// Forecast restores the latest trained run's best snapshot and produces
// its rolling forecast, writing the report and publishing when configured.
// Returns a skipped result when the run's points already exist.
func (p *Pipeline) Forecast(ctx context.Context) (*RunResult, error) {
	started := p.now()
	result := &RunResult{}
	symbol := p.cfg.Symbol
	interval := domain.Interval(p.cfg.Interval)

	run, err := p.runStore.GetLatest(ctx, symbol, interval)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNoTrainedRun, symbol, interval)
	} else if err != nil {
		return nil, fmt.Errorf("load latest run failed: %w", err)
	}
	result.RunID = run.RunID
	result.EpochsRun = run.EpochsRun
	result.BestValLoss = run.BestValLoss
	result.DirectionalAccuracy = run.DirectionalAccuracy
	result.MAE = run.MAE
	result.RMSE = run.RMSE

	if existing, err := p.pointStore.GetByRunID(ctx, run.RunID); err != nil {
		return nil, fmt.Errorf("check stored points failed: %w", err)
	} else if len(existing) > 0 {
		p.log.WithField("run_id", idhash.ShortID(run.RunID)).Info("forecast already stored, skipping")
		result.Skipped = true
		result.ForecastPoints = len(existing)
		return result, nil
	}

	m, err := p.restoreModel(ctx, run)
	if err != nil {
		return nil, err
	}

	// The dataset is rebuilt over the run's exact data range so the scaler
	// and seed window match what the model was trained against.
	candles, err := p.candleStore.GetByTimeRange(ctx, symbol, interval, run.DataStartMs, run.DataEndMs)
	if err != nil {
		return nil, fmt.Errorf("load run candles failed: %w", err)
	}
	table, err := domain.TableFromCandles(candles)
	if err != nil {
		return nil, fmt.Errorf("build table failed: %w", err)
	}
	var identity runIdentity
	if err := json.Unmarshal([]byte(run.ConfigJSON), &identity); err != nil {
		return nil, fmt.Errorf("decode run config failed: %w", err)
	}
	ds, err := dataset.New(table, identity.Model.InputLen, identity.Model.ForecastLen)
	if err != nil {
		return nil, fmt.Errorf("window dataset failed: %w", err)
	}

	fc := forecast.New(m, ds.CloseScale())
	points, err := p.rollingForecast(ctx, fc, run.RunID, ds)
	if err != nil {
		return nil, err
	}
	result.ForecastPoints = len(points)
	observability.RecordForecast(len(points), run.DirectionalAccuracy, run.RMSE)

	p.writeReport(ctx, symbol, result)
	p.publish(ctx, run, points, result)
	observability.RecordPipelineRun("forecast", "ok", p.since(started))
	return result, nil
}

// backfill pulls candles from the configured start up to now. The ingestor
// resumes from the newest stored candle, so repeated runs fetch only the tail.
func (p *Pipeline) backfill(ctx context.Context, symbol string, interval domain.Interval) (int, error) {
	endMs := p.now().UnixMilli()
	// Enough history for one full training window plus forecast targets,
	// with slack for exchange-side gaps.
	windowBars := int64(p.cfg.Model.InputLen + p.cfg.Model.ForecastLen)
	startMs := endMs - (windowBars*2)*interval.StepMs()
	if startMs < 0 {
		startMs = 0
	}
	ing := marketdata.NewIngestor(p.provider, p.candleStore, p.log)
	return ing.Backfill(ctx, symbol, interval, startMs, endMs)
}

// buildDataset loads stored candles and windows them. Phase 2 of Run.
func (p *Pipeline) buildDataset(ctx context.Context, symbol string, interval domain.Interval, result *RunResult) (*datasetBundle, error) {
	p.log.Info("phase 2: building dataset")
	candles, err := p.candleStore.GetBySymbolInterval(ctx, symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (load candles) failed: %w", err)
	}
	minRows := p.cfg.Model.InputLen + p.cfg.Model.ForecastLen + 1
	if len(candles) < minRows {
		return nil, fmt.Errorf("phase 2 (load candles) failed: %w: have %d rows, need %d",
			ErrInsufficientCandles, len(candles), minRows)
	}
	result.CandlesUsed = len(candles)

	table, err := domain.TableFromCandles(candles)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (build table) failed: %w", err)
	}
	ds, err := dataset.New(table, p.cfg.Model.InputLen, p.cfg.Model.ForecastLen)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (window dataset) failed: %w", err)
	}
	train, val, test := ds.Split(p.cfg.Splits.Train, p.cfg.Splits.Val)
	p.log.WithFields(logrus.Fields{
		"rows":  len(candles),
		"train": train.Len(),
		"val":   val.Len(),
		"test":  test.Len(),
	}).Info("dataset ready")

	identity := runIdentity{p.cfg.Model, p.cfg.Training, p.cfg.Splits, p.cfg.Horizon}
	raw, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (encode config) failed: %w", err)
	}
	configJSON := string(raw)

	dataStartMs := table.Timestamps[0]
	dataEndMs := table.LastTimestamp()
	return &datasetBundle{
		ds:          ds,
		train:       train,
		val:         val,
		test:        test,
		runID:       idhash.ComputeRunID(symbol, interval, dataStartMs, dataEndMs, configJSON),
		configJSON:  configJSON,
		dataStartMs: dataStartMs,
		dataEndMs:   dataEndMs,
		rows:        len(candles),
	}, nil
}

// checkStoredRun resolves run identity against the store. A run over the
// same data range with the same configuration is never retrained.
func (p *Pipeline) checkStoredRun(ctx context.Context, runID string, result *RunResult) (bool, error) {
	existing, err := p.runStore.GetByID(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check stored run failed: %w", err)
	}
	p.log.WithField("run_id", idhash.ShortID(runID)).Info("run already stored, skipping")
	result.Skipped = true
	result.EpochsRun = existing.EpochsRun
	result.BestValLoss = existing.BestValLoss
	result.DirectionalAccuracy = existing.DirectionalAccuracy
	result.MAE = existing.MAE
	result.RMSE = existing.RMSE
	return true, nil
}

// trainModel fits a fresh model, writing a snapshot file on every
// validation improvement. Metadata rows are returned, not stored: the
// snapshot registry references the run row, which exists only after
// training succeeds. Phase 3 of Run.
func (p *Pipeline) trainModel(ctx context.Context, b *datasetBundle, result *RunResult) (*model.Model, *training.Result, []*domain.SnapshotMeta, error) {
	p.log.WithField("run_id", idhash.ShortID(b.runID)).Info("phase 3: training")
	started := p.now()

	m, err := model.New(p.cfg.Model, rand.New(rand.NewSource(p.cfg.Training.Seed)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("phase 3 (build model) failed: %w", err)
	}

	var metas []*domain.SnapshotMeta
	onImprovement := func(snap *checkpoint.Snapshot) error {
		meta, err := p.writeSnapshot(b.runID, snap)
		if err != nil {
			return err
		}
		metas = append(metas, meta)
		result.SnapshotsSaved++
		observability.DefaultMetrics.SnapshotsSaved.Inc()
		return nil
	}

	trainer, err := training.New(training.Options{
		Model:         m,
		Config:        p.cfg.Training,
		Logger:        p.log,
		OnImprovement: onImprovement,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("phase 3 (build trainer) failed: %w", err)
	}
	fit, err := trainer.Fit(ctx,
		dataset.NewLoader(b.train, p.cfg.Training.BatchSize),
		dataset.NewLoader(b.val, p.cfg.Training.BatchSize),
	)
	if err != nil {
		observability.RecordTrainingRun("error", 0, 0, p.since(started))
		return nil, nil, nil, fmt.Errorf("phase 3 (training) failed: %w", err)
	}
	result.EpochsRun = fit.EpochsRun
	result.BestValLoss = fit.BestValLoss
	observability.RecordTrainingRun("ok", fit.EpochsRun, fit.BestValLoss, p.since(started))
	p.log.WithFields(logrus.Fields{
		"epochs":        fit.EpochsRun,
		"best_val_loss": fit.BestValLoss,
		"snapshots":     result.SnapshotsSaved,
	}).Info("training finished")
	return m, fit, metas, nil
}

// evaluateHoldout fills the result with held-out accuracy. A test fraction
// too short for one window is reported, not fatal. Phase 4 of Run.
func (p *Pipeline) evaluateHoldout(fc *forecast.Forecaster, b *datasetBundle, result *RunResult) {
	p.log.Info("phase 4: evaluating held-out range")
	holdout, err := fc.PredictHoldout(b.test, b.ds.AnchorPrice())
	switch {
	case errors.Is(err, forecast.ErrEmptyRange):
		result.Errors = append(result.Errors, "holdout evaluation skipped: test range is empty")
		p.log.Warn("test range holds no full window, skipping holdout evaluation")
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("holdout evaluation: %v", err))
		p.log.WithError(err).Warn("holdout evaluation failed")
	default:
		result.DirectionalAccuracy = holdout.Accuracy.DirectionalAccuracy
		result.MAE = holdout.Accuracy.MAE
		result.RMSE = holdout.Accuracy.RMSE
		p.log.WithFields(logrus.Fields{
			"directional_accuracy": result.DirectionalAccuracy,
			"mae":                  result.MAE,
			"rmse":                 result.RMSE,
		}).Info("holdout evaluation finished")
	}
}

// rollingForecast runs the iterative forecast off the dataset's last window
// and stores the points. Phase 5 of Run.
func (p *Pipeline) rollingForecast(ctx context.Context, fc *forecast.Forecaster, runID string, ds *dataset.WindowedDataset) ([]*domain.ForecastPoint, error) {
	p.log.Info("phase 5: rolling forecast")
	interval := domain.Interval(p.cfg.Interval)
	points, err := fc.RollingForecast(runID, ds.LastWindow(), ds.AnchorPrice(),
		ds.AnchorTimestamp(), interval.StepMs(), p.cfg.Horizon)
	if err != nil {
		return nil, fmt.Errorf("phase 5 (rolling forecast) failed: %w", err)
	}
	if err := p.pointStore.InsertBulk(ctx, points); err != nil {
		return nil, fmt.Errorf("phase 5 (store points) failed: %w", err)
	}
	return points, nil
}

// buildRun assembles the persistent run row from trained state. The run
// references the last snapshot written, which is the best one: the trainer
// only snapshots on validation improvement.
func (p *Pipeline) buildRun(b *datasetBundle, fit *training.Result, metas []*domain.SnapshotMeta, result *RunResult) *domain.ForecastRun {
	var snapshotID string
	if len(metas) > 0 {
		snapshotID = metas[len(metas)-1].SnapshotID
	}
	return &domain.ForecastRun{
		RunID:               b.runID,
		Symbol:              p.cfg.Symbol,
		Interval:            domain.Interval(p.cfg.Interval),
		DataStartMs:         b.dataStartMs,
		DataEndMs:           b.dataEndMs,
		AnchorPrice:         b.ds.AnchorPrice(),
		AnchorTimestampMs:   b.ds.AnchorTimestamp(),
		Horizon:             p.cfg.Horizon,
		ConfigJSON:          b.configJSON,
		BestValLoss:         fit.BestValLoss,
		EpochsRun:           fit.EpochsRun,
		SnapshotID:          snapshotID,
		DirectionalAccuracy: result.DirectionalAccuracy,
		MAE:                 result.MAE,
		RMSE:                result.RMSE,
		CreatedAt:           p.now().UnixMilli(),
	}
}

// restoreModel rebuilds the run's model from its stored configuration and
// loads the best snapshot's parameters into it.
func (p *Pipeline) restoreModel(ctx context.Context, run *domain.ForecastRun) (*model.Model, error) {
	if run.SnapshotID == "" {
		return nil, fmt.Errorf("run %s has no snapshot reference", idhash.ShortID(run.RunID))
	}
	meta, err := p.snapshotStore.GetByID(ctx, run.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot meta failed: %w", err)
	}
	snap, err := checkpoint.Load(meta.Path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s failed: %w", meta.Path, err)
	}

	var identity runIdentity
	if err := json.Unmarshal([]byte(run.ConfigJSON), &identity); err != nil {
		return nil, fmt.Errorf("decode run config failed: %w", err)
	}
	m, err := model.New(identity.Model, rand.New(rand.NewSource(identity.Training.Seed)))
	if err != nil {
		return nil, fmt.Errorf("rebuild model failed: %w", err)
	}
	if err := snap.Restore(m.Parameters()); err != nil {
		return nil, fmt.Errorf("restore parameters failed: %w", err)
	}
	return m, nil
}

// writeSnapshot writes the parameter snapshot to disk and builds its
// metadata row. Snapshot identity is derived from run, epoch and loss, so a
// retried epoch overwrites rather than duplicates.
func (p *Pipeline) writeSnapshot(runID string, snap *checkpoint.Snapshot) (*domain.SnapshotMeta, error) {
	snapshotID := idhash.ComputeSnapshotID(runID, snap.Epoch, snap.ValLoss)
	path := filepath.Join(p.cfg.SnapshotDir,
		fmt.Sprintf("%s-epoch-%03d.json", idhash.ShortID(runID), snap.Epoch))

	if err := checkpoint.Save(path, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	checksum, err := checkpoint.FileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("checksum snapshot: %w", err)
	}

	meta := &domain.SnapshotMeta{
		SnapshotID: snapshotID,
		RunID:      runID,
		Epoch:      snap.Epoch,
		ValLoss:    snap.ValLoss,
		Path:       path,
		Checksum:   checksum,
		CreatedAt:  p.now().UnixMilli(),
	}
	return meta, nil
}

// storeSnapshotMetas records the buffered snapshot rows once the run row
// they reference exists.
func (p *Pipeline) storeSnapshotMetas(ctx context.Context, metas []*domain.SnapshotMeta) error {
	for _, meta := range metas {
		if err := p.snapshotStore.Insert(ctx, meta); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store snapshot meta %s: %w", idhash.ShortID(meta.SnapshotID), err)
		}
	}
	return nil
}

// writeReport regenerates the report files. Failures are collected, a
// finished run is worth keeping even when the report cannot be written.
func (p *Pipeline) writeReport(ctx context.Context, symbol string, result *RunResult) {
	if p.cfg.ReportDir == "" {
		return
	}
	report, err := reporting.NewGenerator(p.runStore, p.pointStore).
		WithClock(p.now).
		Generate(ctx, symbol)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("report generation: %v", err))
		return
	}
	if err := reporting.WriteFiles(p.cfg.ReportDir, report); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("report write: %v", err))
		return
	}
	result.ReportDir = p.cfg.ReportDir
	observability.DefaultMetrics.ReportsGenerated.Inc()
}

// publish hands the forecast to the configured sink. Non-fatal.
func (p *Pipeline) publish(ctx context.Context, run *domain.ForecastRun, points []*domain.ForecastPoint, result *RunResult) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishForecast(ctx, run, points); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("publish forecast: %v", err))
		p.log.WithError(err).Warn("forecast publish failed")
	}
}

func (p *Pipeline) since(t time.Time) float64 {
	return p.now().Sub(t).Seconds()
}
