// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	CandlesFetched  prometheus.Counter
	CandlesStored   prometheus.Counter
	FetchErrors     *prometheus.CounterVec
	FetchLatency    prometheus.Histogram
	StreamReconnect prometheus.Counter

	// Training metrics
	TrainingRunsTotal *prometheus.CounterVec
	TrainingDuration  prometheus.Histogram
	EpochsRun         prometheus.Histogram
	BestValLoss       prometheus.Gauge
	SnapshotsSaved    prometheus.Counter
	CurrentEpoch      prometheus.Gauge
	CurrentTrainLoss  prometheus.Gauge
	CurrentValLoss    prometheus.Gauge

	// Forecast metrics
	ForecastsGenerated   prometheus.Counter
	ForecastPointsStored prometheus.Counter
	DirectionalAccuracy  prometheus.Gauge
	HoldoutRMSE          prometheus.Gauge
	ForecastsPublished   prometheus.Counter

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFetch    prometheus.Gauge
	LastSuccessfulPipeline prometheus.Gauge
	UptimeSeconds          prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "patch_forecast_lab"
	}

	return &Metrics{
		// Market data metrics
		CandlesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candles_fetched_total",
			Help:      "Total number of candles fetched from the exchange",
		}),
		CandlesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candles_stored_total",
			Help:      "Total number of candles stored to the database",
		}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_errors_total",
			Help:      "Total number of fetch errors by type",
		}, []string{"error_type"}),
		FetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_latency_seconds",
			Help:      "Candle fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		StreamReconnect: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "stream_reconnects_total",
			Help:      "Total number of websocket stream reconnects",
		}),

		// Training metrics
		TrainingRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "runs_total",
			Help:      "Total number of training runs by status",
		}, []string{"status"}),
		TrainingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "Training run duration in seconds",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		EpochsRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "epochs_run",
			Help:      "Epochs completed per training run",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200},
		}),
		BestValLoss: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "best_val_loss",
			Help:      "Best validation loss of the most recent training run",
		}),
		SnapshotsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "snapshots_saved_total",
			Help:      "Total number of parameter snapshots saved",
		}),
		CurrentEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "current_epoch",
			Help:      "Epoch of the training run in progress",
		}),
		CurrentTrainLoss: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "current_train_loss",
			Help:      "Training loss of the most recent epoch",
		}),
		CurrentValLoss: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "current_val_loss",
			Help:      "Validation loss of the most recent epoch",
		}),

		// Forecast metrics
		ForecastsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "generated_total",
			Help:      "Total number of rolling forecasts generated",
		}),
		ForecastPointsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "points_stored_total",
			Help:      "Total number of forecast points stored",
		}),
		DirectionalAccuracy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "directional_accuracy",
			Help:      "Held-out directional accuracy of the most recent run",
		}),
		HoldoutRMSE: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "holdout_rmse",
			Help:      "Held-out RMSE in price units of the most recent run",
		}),
		ForecastsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "published_total",
			Help:      "Total number of forecasts published to Kafka",
		}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last successful candle fetch",
		}),
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
		UptimeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetch records a completed candle fetch.
func RecordFetch(fetched, stored int, seconds float64) {
	DefaultMetrics.CandlesFetched.Add(float64(fetched))
	DefaultMetrics.CandlesStored.Add(float64(stored))
	DefaultMetrics.FetchLatency.Observe(seconds)
}

// RecordFetchError records a fetch error by type.
func RecordFetchError(errorType string) {
	DefaultMetrics.FetchErrors.WithLabelValues(errorType).Inc()
}

// RecordEpoch updates the live training gauges.
func RecordEpoch(epoch int, trainLoss, valLoss float64) {
	DefaultMetrics.CurrentEpoch.Set(float64(epoch))
	DefaultMetrics.CurrentTrainLoss.Set(trainLoss)
	DefaultMetrics.CurrentValLoss.Set(valLoss)
}

// RecordTrainingRun records a finished training run.
func RecordTrainingRun(status string, epochsRun int, bestValLoss, durationSeconds float64) {
	DefaultMetrics.TrainingRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.TrainingDuration.Observe(durationSeconds)
	DefaultMetrics.EpochsRun.Observe(float64(epochsRun))
	DefaultMetrics.BestValLoss.Set(bestValLoss)
}

// RecordForecast records a generated rolling forecast.
func RecordForecast(points int, directionalAccuracy, rmse float64) {
	DefaultMetrics.ForecastsGenerated.Inc()
	DefaultMetrics.ForecastPointsStored.Add(float64(points))
	DefaultMetrics.DirectionalAccuracy.Set(directionalAccuracy)
	DefaultMetrics.HoldoutRMSE.Set(rmse)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}
