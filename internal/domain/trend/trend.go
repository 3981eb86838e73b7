// Package trend derives rate-of-change descriptors from feature history.
//
// Velocity is the Theil-Sen estimate (median of pairwise slopes), which
// resists single-sample noise far better than a two-point delta.
// Direction uses a dead-band around zero so it does not flap when the
// slope hovers near the threshold.
package trend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cscx/pulse/internal/domain/feature"
	"github.com/cscx/pulse/internal/domain/model"
)

// Default calculator configuration.
const (
	defaultDeadBandPct = 0.02 // fraction of observed range per window
	minSamples         = 3
	fullConfidenceAt   = 12 // samples at which trend confidence saturates
)

// DefaultWindows are the computation windows in days.
var DefaultWindows = []int{7, 30, 90}

// Calculator computes trends from feature store history.
type Calculator struct {
	history     HistorySource
	deadBandPct float64
	windows     []int
}

// HistorySource yields historical samples for a feature. The feature
// store satisfies this.
type HistorySource interface {
	History(ctx context.Context, entityID, featureName string, window time.Duration) ([]feature.Sample, error)
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithDeadBand sets the stable dead-band as a fraction of the observed
// feature range over the window.
func WithDeadBand(pct float64) Option {
	return func(c *Calculator) {
		if pct > 0 {
			c.deadBandPct = pct
		}
	}
}

// WithWindows overrides the default 7/30/90 day windows.
func WithWindows(days []int) Option {
	return func(c *Calculator) {
		if len(days) > 0 {
			c.windows = days
		}
	}
}

// NewCalculator creates a trend calculator reading from src.
func NewCalculator(src HistorySource, opts ...Option) *Calculator {
	c := &Calculator{
		history:     src,
		deadBandPct: defaultDeadBandPct,
		windows:     DefaultWindows,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Windows returns the configured window lengths in days.
func (c *Calculator) Windows() []int {
	out := make([]int, len(c.windows))
	copy(out, c.windows)
	return out
}

// Compute derives the trend of one feature over a window. Fewer than
// three samples yields a stable, zero-confidence result rather than an
// extrapolated guess.
func (c *Calculator) Compute(ctx context.Context, entityID, featureName string, windowDays int) (model.Trend, error) {
	samples, err := c.history.History(ctx, entityID, featureName, time.Duration(windowDays)*24*time.Hour)
	if err != nil {
		return model.Trend{}, fmt.Errorf("trend history: %w", err)
	}
	return c.FromSamples(samples, windowDays), nil
}

// FromSamples computes a trend from already-fetched samples.
func (c *Calculator) FromSamples(samples []feature.Sample, windowDays int) model.Trend {
	if len(samples) < minSamples {
		return model.Trend{Direction: model.Stable, WindowDays: windowDays}
	}

	velocity := theilSen(samples)

	// Dead-band: a slope that moves the feature less than the
	// configured fraction of its observed range over the whole window
	// counts as stable.
	lo, hi := samples[0].Value, samples[0].Value
	for _, smp := range samples[1:] {
		lo = math.Min(lo, smp.Value)
		hi = math.Max(hi, smp.Value)
	}
	band := c.deadBandPct * (hi - lo)
	projected := velocity * float64(windowDays)

	direction := model.Stable
	switch {
	case projected > band:
		direction = model.Improving
	case projected < -band:
		direction = model.Declining
	}

	confidence := float64(len(samples)) / fullConfidenceAt
	if confidence > 1 {
		confidence = 1
	}

	return model.Trend{
		Direction:  direction,
		Velocity:   velocity,
		Confidence: confidence,
		WindowDays: windowDays,
	}
}

// theilSen returns the median of all pairwise slopes in units per day.
func theilSen(samples []feature.Sample) float64 {
	slopes := make([]float64, 0, len(samples)*(len(samples)-1)/2)
	for i := 0; i < len(samples); i++ {
		for j := i + 1; j < len(samples); j++ {
			dt := samples[j].At.Sub(samples[i].At).Hours() / 24
			if dt == 0 {
				continue
			}
			slopes = append(slopes, (samples[j].Value-samples[i].Value)/dt)
		}
	}
	return median(slopes)
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 1 {
		return cp[mid]
	}
	return 0.5 * (cp[mid-1] + cp[mid])
}
