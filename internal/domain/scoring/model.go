// Package scoring applies a named, versioned scoring model to a feature
// set and produces a bounded score with per-factor contributions.
//
// Models are data, not code: the same engine scores churn, relationship
// strength, deal risk, task priority and alert severity by swapping the
// model. A model is never edited in place; calibration publishes a new
// version through the registry.
package scoring

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the evaluation rule for a factor. The set is closed; an
// unknown kind fails model validation, not evaluation.
type Kind string

const (
	// KindLinear maps the feature linearly from its declared range onto
	// [0,1]. Min may exceed Max for features where lower means worse.
	KindLinear Kind = "linear"
	// KindThreshold fires fully once the feature crosses Threshold.
	KindThreshold Kind = "threshold"
	// KindBoolean fires when the feature is non-zero.
	KindBoolean Kind = "boolean"
	// KindTrend evaluates the robust velocity of the feature over
	// WindowDays instead of its current value.
	KindTrend Kind = "trend"
	// KindProximity rises as the feature approaches zero, scaled by
	// Pivot (e.g. days until renewal).
	KindProximity Kind = "proximity"
)

// Default model parameters.
const (
	DefaultMaxScore  = 100.0
	DefaultTolerance = 1e-6
	defaultPivot     = 90.0
)

// Factor is one weighted evaluator inside a model.
type Factor struct {
	Name    string  `yaml:"name"`
	Kind    Kind    `yaml:"kind"`
	Feature string  `yaml:"feature"`
	Weight  float64 `yaml:"weight"`

	// Min and Max declare the raw input range for linear and trend
	// factors. A descending range (Min > Max) inverts the mapping.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	Threshold  float64 `yaml:"threshold"`
	Invert     bool    `yaml:"invert"`
	WindowDays int     `yaml:"window_days"` // trend factors only
	Pivot      float64 `yaml:"pivot"`       // proximity factors only

	// Explanation is a template with {factor}, {feature} and {value}
	// placeholders, rendered into each contribution.
	Explanation string `yaml:"explanation"`
}

// Model is a named, versioned ordered list of factors.
type Model struct {
	Name      string    `yaml:"name"`
	Version   int       `yaml:"version"`
	MaxScore  float64   `yaml:"max_score"`
	Tolerance float64   `yaml:"tolerance"`
	Factors   []Factor  `yaml:"factors"`
	CreatedAt time.Time `yaml:"-"`
}

// TotalWeight sums the factor weights. Contributions are normalized by
// this total so the overall score cannot exceed MaxScore no matter how
// many factors fire.
func (m Model) TotalWeight() float64 {
	var sum float64
	for _, f := range m.Factors {
		sum += f.Weight
	}
	return sum
}

// Validate checks the model for structural problems.
func (m Model) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: empty model name", ErrInvalidModel)
	}
	if m.MaxScore <= 0 {
		return fmt.Errorf("%w: model %s: max_score must be positive", ErrInvalidModel, m.Name)
	}
	if len(m.Factors) == 0 {
		return fmt.Errorf("%w: model %s has no factors", ErrInvalidModel, m.Name)
	}
	seen := make(map[string]bool, len(m.Factors))
	for _, f := range m.Factors {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: model %s: unnamed factor", ErrInvalidModel, m.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: model %s: duplicate factor %s", ErrInvalidModel, m.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Weight <= 0 {
			return fmt.Errorf("%w: model %s: factor %s: weight must be positive", ErrInvalidModel, m.Name, f.Name)
		}
		if strings.TrimSpace(f.Feature) == "" {
			return fmt.Errorf("%w: model %s: factor %s: missing feature", ErrInvalidModel, m.Name, f.Name)
		}
		switch f.Kind {
		case KindLinear, KindTrend:
			if f.Min == f.Max {
				return fmt.Errorf("%w: model %s: factor %s: degenerate range", ErrInvalidModel, m.Name, f.Name)
			}
			if f.Kind == KindTrend && f.WindowDays <= 0 {
				return fmt.Errorf("%w: model %s: factor %s: trend factor needs window_days", ErrInvalidModel, m.Name, f.Name)
			}
		case KindThreshold, KindBoolean:
			// no range to check
		case KindProximity:
			if f.Pivot < 0 {
				return fmt.Errorf("%w: model %s: factor %s: negative pivot", ErrInvalidModel, m.Name, f.Name)
			}
		default:
			return fmt.Errorf("%w: model %s: factor %s: unknown kind %q", ErrInvalidModel, m.Name, f.Name, f.Kind)
		}
	}
	return nil
}

// normalized applies defaults so downstream code never re-checks them.
// The factor slice is copied first; the caller's model is never touched.
func (m Model) normalized() Model {
	if m.MaxScore == 0 {
		m.MaxScore = DefaultMaxScore
	}
	if m.Tolerance == 0 {
		m.Tolerance = DefaultTolerance
	}
	factors := make([]Factor, len(m.Factors))
	copy(factors, m.Factors)
	for i := range factors {
		if factors[i].Kind == KindProximity && factors[i].Pivot == 0 {
			factors[i].Pivot = defaultPivot
		}
	}
	m.Factors = factors
	return m
}

// TrendKey names the trend lookup slot for a feature and window. The
// engine input carries precomputed trends under these keys.
func TrendKey(feature string, windowDays int) string {
	return fmt.Sprintf("%s@%dd", feature, windowDays)
}
