// Package confidence estimates how reliable a score is, independent of
// its magnitude. Confidence is never folded into the score itself, so
// consumers can tell "low score, certain" from "low score, uncertain".
package confidence

import (
	"math"
	"time"

	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/internal/domain/scoring"
)

// Default estimator configuration.
const (
	defaultCoverageWeight = 0.5
	defaultSampleWeight   = 0.3
	defaultRecencyWeight  = 0.2
	defaultSampleHalf     = 5.0 // samples at which sufficiency reaches 0.5
	defaultMaxAge         = 30 * 24 * time.Hour
)

// Estimator derives a [0,1] confidence from data coverage, sample-size
// sufficiency and signal recency.
type Estimator struct {
	coverageWeight float64
	sampleWeight   float64
	recencyWeight  float64
	sampleHalf     float64
	maxAge         time.Duration
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithWeights sets the blend of coverage, sample and recency terms. The
// weights are renormalized internally.
func WithWeights(coverage, sample, recency float64) Option {
	return func(e *Estimator) {
		if coverage >= 0 && sample >= 0 && recency >= 0 && coverage+sample+recency > 0 {
			e.coverageWeight = coverage
			e.sampleWeight = sample
			e.recencyWeight = recency
		}
	}
}

// WithSampleHalf sets the sample count at which per-factor sufficiency
// reaches one half.
func WithSampleHalf(n float64) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.sampleHalf = n
		}
	}
}

// WithMaxAge sets the age at which recency decays to zero.
func WithMaxAge(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.maxAge = d
		}
	}
}

// NewEstimator creates a confidence estimator.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		coverageWeight: defaultCoverageWeight,
		sampleWeight:   defaultSampleWeight,
		recencyWeight:  defaultRecencyWeight,
		sampleHalf:     defaultSampleHalf,
		maxAge:         defaultMaxAge,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate computes confidence for scoring m against fs at time now.
// A set with no fresh data at all is worth zero confidence outright.
func (e *Estimator) Estimate(fs model.FeatureSet, m scoring.Model, now time.Time) float64 {
	if len(m.Factors) == 0 || fs.AllStale() {
		return 0
	}

	var fresh, sufficiency float64
	var newest time.Time
	declared := 0
	seen := make(map[string]bool, len(m.Factors))
	for _, f := range m.Factors {
		if seen[f.Feature] {
			continue
		}
		seen[f.Feature] = true
		declared++

		fv, ok := fs.Features[f.Feature]
		if !ok {
			continue
		}
		if !fv.Stale {
			fresh++
		}
		// n/(n+k): monotonically non-decreasing in sample count.
		sufficiency += float64(fv.Samples) / (float64(fv.Samples) + e.sampleHalf)
		if fv.ObservedAt.After(newest) {
			newest = fv.ObservedAt
		}
	}

	coverage := fresh / float64(declared)
	sample := sufficiency / float64(declared)

	recency := 0.0
	if !newest.IsZero() {
		age := now.Sub(newest)
		if age < 0 {
			age = 0
		}
		recency = math.Max(0, 1-age.Seconds()/e.maxAge.Seconds())
	}

	total := e.coverageWeight + e.sampleWeight + e.recencyWeight
	conf := (e.coverageWeight*coverage + e.sampleWeight*sample + e.recencyWeight*recency) / total
	return math.Max(0, math.Min(1, conf))
}
