package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PULSE_CONFIG is set
//  3. env (prefix PULSE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PULSE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Env keys like PULSE_QUEUE_SIZE map to the flat koanf key
	// queue_size; underscores are preserved to match struct tags.
	envProvider := env.Provider("PULSE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "pulse_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.DigestThreshold > c.ImmediateThreshold {
		return fmt.Errorf("%w: digest_threshold above immediate_threshold", ErrInvalidConfig)
	}
	if c.LowConfidence < 0 || c.LowConfidence > 1 {
		return fmt.Errorf("%w: low_confidence must be within [0,1]", ErrInvalidConfig)
	}
	if c.CalibrationMaxDelta < 0 || c.CalibrationMaxDelta > 1 {
		return fmt.Errorf("%w: calibration_max_delta must be within [0,1]", ErrInvalidConfig)
	}
	for _, w := range c.TrendWindows {
		if w <= 0 {
			return fmt.Errorf("%w: trend_windows must be positive day counts", ErrInvalidConfig)
		}
	}
	return nil
}
