// Package calibration adjusts scoring-model weights from observed
// outcomes and user feedback.
//
// Recalibration never mutates a published model: it reads outcome
// history, derives bounded weight adjustments and publishes a new
// version through the registry. Weight changes per cycle are capped so
// small samples cannot cause oscillation.
package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// Default calibrator configuration.
const (
	defaultMaxDelta   = 0.10 // +/-10% weight change per cycle
	defaultHighBand   = 70.0 // scores at or above count as high-risk predictions
	defaultMinSamples = 5
	defaultMinWeight  = 0.01
	defaultMaxWeight  = 5.0
	neutralHitRate    = 0.5
)

// Outcome pairs one historical prediction with what actually happened
// inside the prediction horizon.
type Outcome struct {
	RecordID   string
	EntityID   string
	Score      float64
	TopFactors []string // material factors of the record
	Label      string   // e.g. "churned", "retained"
	Adverse    bool     // the predicted risk materialized
	ObservedAt time.Time
}

// OutcomeSource yields outcome history for a model. The repository's
// feedback store satisfies this.
type OutcomeSource interface {
	Outcomes(ctx context.Context, modelName string) ([]Outcome, error)
}

// FeedbackSink persists feedback records append-only.
type FeedbackSink interface {
	AppendFeedback(ctx context.Context, fb model.FeedbackRecord) error
}

// Calibrator runs the outcome feedback loop for one registry.
type Calibrator struct {
	registry   *scoring.Registry
	outcomes   OutcomeSource
	feedback   FeedbackSink
	maxDelta   float64
	highBand   float64
	minSamples int
	minWeight  float64
	maxWeight  float64
}

// Option applies a configuration option to the Calibrator.
type Option func(*Calibrator)

// WithMaxDelta caps the per-cycle relative weight change.
func WithMaxDelta(d float64) Option {
	return func(c *Calibrator) {
		if d > 0 && d < 1 {
			c.maxDelta = d
		}
	}
}

// WithHighBand sets the score at which a prediction counts as
// high-risk for hit-rate purposes.
func WithHighBand(score float64) Option {
	return func(c *Calibrator) {
		if score > 0 {
			c.highBand = score
		}
	}
}

// WithMinSamples sets the outcome count a factor needs before its
// weight moves.
func WithMinSamples(n int) Option {
	return func(c *Calibrator) {
		if n > 0 {
			c.minSamples = n
		}
	}
}

// WithWeightBounds sets the sanity bounds outside which a calibration
// run is rejected.
func WithWeightBounds(minW, maxW float64) Option {
	return func(c *Calibrator) {
		if minW > 0 && maxW > minW {
			c.minWeight = minW
			c.maxWeight = maxW
		}
	}
}

// NewCalibrator creates a calibrator over a model registry.
func NewCalibrator(registry *scoring.Registry, outcomes OutcomeSource, feedback FeedbackSink, opts ...Option) *Calibrator {
	c := &Calibrator{
		registry:   registry,
		outcomes:   outcomes,
		feedback:   feedback,
		maxDelta:   defaultMaxDelta,
		highBand:   defaultHighBand,
		minSamples: defaultMinSamples,
		minWeight:  defaultMinWeight,
		maxWeight:  defaultMaxWeight,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordFeedback validates and persists one feedback record. Feedback
// never touches the score record it refers to.
func (c *Calibrator) RecordFeedback(ctx context.Context, fb model.FeedbackRecord) error {
	if fb.RecordID == "" {
		return fmt.Errorf("%w: missing record id", ErrInvalidFeedback)
	}
	switch fb.Verdict {
	case model.VerdictHelpful, model.VerdictNotHelpful, model.VerdictAlreadyKnew, "":
	default:
		return fmt.Errorf("%w: unknown verdict %q", ErrInvalidFeedback, fb.Verdict)
	}
	if fb.Verdict == "" && fb.Outcome == "" {
		return fmt.Errorf("%w: neither verdict nor outcome set", ErrInvalidFeedback)
	}
	if err := c.feedback.AppendFeedback(ctx, fb); err != nil {
		return fmt.Errorf("persist feedback: %w", err)
	}
	return nil
}

// Recalibrate compares the current model's high-risk predictions
// against observed outcomes and publishes a new version with adjusted
// weights. The prior version stays active when the run is rejected.
func (c *Calibrator) Recalibrate(ctx context.Context, modelName string) (scoring.Model, error) {
	current, err := c.registry.Current(modelName)
	if err != nil {
		return scoring.Model{}, err
	}
	outs, err := c.outcomes.Outcomes(ctx, modelName)
	if err != nil {
		return scoring.Model{}, fmt.Errorf("load outcomes: %w", err)
	}

	next := current
	next.Factors = make([]scoring.Factor, len(current.Factors))
	copy(next.Factors, current.Factors)

	adjusted := false
	for i, f := range next.Factors {
		hitRate, n := c.factorHitRate(f.Name, outs)
		if n < c.minSamples {
			continue
		}
		// Push the weight toward the observed hit rate: a factor that
		// keeps showing up in correct high-risk predictions gains
		// weight, one that fires on false alarms loses it.
		delta := (hitRate - neutralHitRate) * 2 * c.maxDelta
		if delta > c.maxDelta {
			delta = c.maxDelta
		}
		if delta < -c.maxDelta {
			delta = -c.maxDelta
		}
		if delta == 0 {
			continue
		}
		newWeight := f.Weight * (1 + delta)
		if newWeight < c.minWeight || newWeight > c.maxWeight {
			return scoring.Model{}, fmt.Errorf("%w: factor %s weight %.4f outside [%.2f, %.2f]",
				ErrCalibrationDivergence, f.Name, newWeight, c.minWeight, c.maxWeight)
		}
		next.Factors[i].Weight = newWeight
		adjusted = true
	}

	if !adjusted {
		return scoring.Model{}, fmt.Errorf("%w: model %s", ErrInsufficientOutcomes, modelName)
	}

	published, err := c.registry.Publish(next)
	if err != nil {
		return scoring.Model{}, fmt.Errorf("publish recalibrated model: %w", err)
	}
	return published, nil
}

// factorHitRate returns the adverse-outcome rate among high-risk
// predictions where the factor was a top contributor.
func (c *Calibrator) factorHitRate(factor string, outs []Outcome) (rate float64, samples int) {
	hits := 0
	for _, o := range outs {
		if o.Score < c.highBand || !contains(o.TopFactors, factor) {
			continue
		}
		samples++
		if o.Adverse {
			hits++
		}
	}
	if samples == 0 {
		return 0, 0
	}
	return float64(hits) / float64(samples), samples
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
