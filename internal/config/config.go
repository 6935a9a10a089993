// Package config loads lab configuration from a YAML file with environment
// overrides for connection strings.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/model"
	"patch-forecast-lab/internal/training"
)

// Config is the full lab configuration.
type Config struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Horizon  int    `yaml:"horizon"`

	SnapshotDir string `yaml:"snapshot_dir"`
	ReportDir   string `yaml:"report_dir"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	Splits   SplitConfig     `yaml:"splits"`
	Model    model.Config    `yaml:"model"`
	Training training.Config `yaml:"training"`
	Bybit    BybitConfig     `yaml:"bybit"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Server   ServerConfig    `yaml:"server"`
}

// SplitConfig sets the contiguous train/val/test fractions.
type SplitConfig struct {
	Train float64 `yaml:"train"`
	Val   float64 `yaml:"val"`
	Test  float64 `yaml:"test"`
}

// BybitConfig configures the REST market data provider.
type BybitConfig struct {
	BaseURL   string  `yaml:"base_url"`
	StreamURL string  `yaml:"stream_url"`
	Category  string  `yaml:"category"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second
}

// KafkaConfig configures the forecast publisher. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ServerConfig configures the serve daemon.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	FetchIntervalSec    int    `yaml:"fetch_interval_sec"`
	PipelineIntervalSec int    `yaml:"pipeline_interval_sec"`
	ReportIntervalSec   int    `yaml:"report_interval_sec"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Symbol:      "ETHUSDT",
		Interval:    domain.IntervalDaily.String(),
		Horizon:     30,
		SnapshotDir: "snapshots",
		ReportDir:   "output",
		Splits: SplitConfig{
			Train: 0.7,
			Val:   0.15,
			Test:  0.15,
		},
		Model: model.Config{
			InputDim:    5,
			InputLen:    994,
			PatchLen:    14,
			Stride:      2,
			HiddenDim:   64,
			NumHeads:    4,
			NumLayers:   2,
			MaxPatches:  512,
			ForecastLen: 24,
		},
		Training: training.Config{
			Epochs:       100,
			BatchSize:    32,
			LearningRate: 1e-3,
			WeightDecay:  0.01,
			GradClip:     1.0,
			HuberDelta:   1.0,
			Patience:     10,
			LRPatience:   5,
			LRFactor:     0.5,
			Seed:         42,
		},
		Bybit: BybitConfig{
			BaseURL:   "https://api.bybit.com",
			StreamURL: "wss://stream.bybit.com/v5/public/spot",
			Category:  "spot",
			RateLimit: 10,
		},
		Kafka: KafkaConfig{
			Topic: "forecasts",
		},
		Server: ServerConfig{
			Addr:                ":8080",
			FetchIntervalSec:    3600,
			PipelineIntervalSec: 21600,
			ReportIntervalSec:   21600,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path loads defaults + environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides connection settings from the environment. Secrets stay
// out of config files this way.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.ClickhouseDSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BYBIT_BASE_URL"); v != "" {
		c.Bybit.BaseURL = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !domain.Interval(c.Interval).IsValid() {
		return fmt.Errorf("invalid interval %q", c.Interval)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", c.Horizon)
	}

	s := c.Splits
	if s.Train <= 0 || s.Val < 0 || s.Test < 0 {
		return fmt.Errorf("split fractions must be non-negative with train > 0")
	}
	if sum := s.Train + s.Val + s.Test; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("split fractions sum to %.3f, want 1.0", sum)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	t := c.Training
	if t.Epochs <= 0 || t.BatchSize <= 0 {
		return fmt.Errorf("training epochs and batch size must be positive")
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", t.LearningRate)
	}

	return nil
}
