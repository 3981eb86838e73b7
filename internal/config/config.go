// Package config defines service configuration and loading.
//
// Conventions:
// - New() returns defaults; Load() layers file and env on top.
// - External errors are wrapped via this package's sentinels.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath locates the sqlite database file. ":memory:" is accepted.
	DBPath string `koanf:"db_path"`

	// ModelFile optionally points at a YAML scoring-model file. When
	// empty the built-in models are used.
	ModelFile string `koanf:"model_file"`

	// QueueSize bounds the in-memory recompute job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// BatchInterval is the period of the portfolio-wide sweep.
	BatchInterval time.Duration `koanf:"batch_interval"`

	// Staleness marks a feature stale when its last observation is
	// older than this.
	Staleness time.Duration `koanf:"staleness"`

	// MaxHistoryLimit caps GET history page sizes.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// LowConfidence flags records whose confidence falls below this.
	LowConfidence float64 `koanf:"low_confidence"`

	// BundleWindow groups related alerts opened within this window.
	BundleWindow time.Duration `koanf:"bundle_window"`

	// BundleCooldown suppresses repeat alerts with the same
	// fingerprint within this period.
	BundleCooldown time.Duration `koanf:"bundle_cooldown"`

	// ImmediateThreshold and DigestThreshold pick the delivery mode
	// for an alert bundle by its score.
	ImmediateThreshold float64 `koanf:"immediate_threshold"`
	DigestThreshold    float64 `koanf:"digest_threshold"`

	// NarrativeURL points at the optional summarizer service. Empty
	// disables remote summaries.
	NarrativeURL     string        `koanf:"narrative_url"`
	NarrativeTimeout time.Duration `koanf:"narrative_timeout"`

	// CalibrationMaxDelta bounds a per-factor weight change per cycle
	// as a fraction of the current weight.
	CalibrationMaxDelta float64 `koanf:"calibration_max_delta"`

	// CalibrationMinSamples is the minimum labelled outcomes per
	// factor before its weight may move.
	CalibrationMinSamples int `koanf:"calibration_min_samples"`

	// TrendWindows lists the day windows trends are computed over.
	TrendWindows []int `koanf:"trend_windows"`

	// TrendDeadBand is the no-change band as a fraction of the
	// observed value range.
	TrendDeadBand float64 `koanf:"trend_dead_band"`

	// EntityModels maps entity types to their scoring model names.
	EntityModels map[string]string `koanf:"entity_models"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DBPath:                "data/pulse.db",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 4,
		DedupeSize:            50_000,
		BatchInterval:         15 * time.Minute,
		Staleness:             14 * 24 * time.Hour,
		MaxHistoryLimit:       500,
		LowConfidence:         0.5,
		BundleWindow:          24 * time.Hour,
		BundleCooldown:        6 * time.Hour,
		ImmediateThreshold:    70,
		DigestThreshold:       40,
		NarrativeTimeout:      2 * time.Second,
		CalibrationMaxDelta:   0.10,
		CalibrationMinSamples: 5,
		TrendWindows:          []int{7, 30, 90},
		TrendDeadBand:         0.02,
		EntityModels: map[string]string{
			"account":     "churn",
			"stakeholder": "relationship",
			"deal":        "deal_risk",
			"task":        "task_priority",
			"raw_alert":   "alert_priority",
		},
	}
}
