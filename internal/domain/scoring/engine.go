package scoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cscx/pulse/internal/domain/model"
)

// Input carries everything one scoring pass reads. Trends are
// precomputed by the caller and keyed by TrendKey so factor evaluation
// stays pure and never reaches back into storage.
type Input struct {
	EntityID   string
	EntityType model.EntityType
	Features   model.FeatureSet
	Trends     map[string]model.Trend
	Model      Model
	Now        time.Time
}

// Engine evaluates models against feature sets. It is stateless and safe
// for concurrent use across entities.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score applies in.Model to in.Features and returns an immutable score
// record. Factors are evaluated concurrently and fanned back in by
// index, so output ordering matches the model and identical inputs yield
// identical records. A factor that cannot evaluate is recorded as
// skipped, never aborts the pass.
func (e *Engine) Score(ctx context.Context, in Input) (model.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("scoring cancelled: %w", err)
	}
	m := in.Model.normalized()
	if err := m.Validate(); err != nil {
		return model.ScoreRecord{}, err
	}

	total := m.TotalWeight()
	contribs := make([]model.Contribution, len(m.Factors))

	var wg sync.WaitGroup
	for i, f := range m.Factors {
		wg.Add(1)
		go func(i int, f Factor) {
			defer wg.Done()
			contribs[i] = e.evaluate(f, in, total, m.MaxScore)
		}(i, f)
	}
	wg.Wait()

	var sum float64
	partial := false
	for _, c := range contribs {
		if c.Skipped {
			partial = true
			continue
		}
		sum += c.Contribution
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return model.ScoreRecord{
		RecordID:     uuid.NewString(),
		EntityID:     in.EntityID,
		EntityType:   in.EntityType,
		ModelName:    m.Name,
		ModelVersion: m.Version,
		Score:        sum,
		Available:    true,
		Partial:      partial,
		Factors:      contribs,
		CalculatedAt: now,
	}, nil
}

// evaluate computes one factor's contribution. Normalized output is
// clamped to [0,1] before weighting, so the accumulated score stays
// within [0, MaxScore] regardless of input.
func (e *Engine) evaluate(f Factor, in Input, totalWeight, maxScore float64) model.Contribution {
	raw, norm, err := factorValue(f, in)
	if err != nil {
		return model.Contribution{
			Factor:     f.Name,
			Weight:     f.Weight,
			Skipped:    true,
			SkipReason: err.Error(),
		}
	}
	if f.Invert {
		norm = 1 - norm
	}
	contribution := norm * f.Weight / totalWeight * maxScore
	return model.Contribution{
		Factor:       f.Name,
		RawValue:     raw,
		Weight:       f.Weight,
		Contribution: contribution,
		Explanation:  renderExplanation(f, raw),
	}
}

// factorValue returns the raw input value and its [0,1] normalization.
func factorValue(f Factor, in Input) (raw, norm float64, err error) {
	if f.Kind == KindTrend {
		t, ok := in.Trends[TrendKey(f.Feature, f.WindowDays)]
		if !ok {
			return 0, 0, fmt.Errorf("%w: no trend for %s", ErrDataGap, TrendKey(f.Feature, f.WindowDays))
		}
		return t.Velocity, clamp01((t.Velocity - f.Min) / (f.Max - f.Min)), nil
	}

	fv, ok := in.Features.Features[f.Feature]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrDataGap, f.Feature)
	}
	v := fv.Value

	switch f.Kind {
	case KindLinear:
		return v, clamp01((v - f.Min) / (f.Max - f.Min)), nil
	case KindThreshold:
		if v >= f.Threshold {
			return v, 1, nil
		}
		return v, 0, nil
	case KindBoolean:
		if v != 0 {
			return v, 1, nil
		}
		return v, 0, nil
	case KindProximity:
		if v < 0 {
			return v, 1, nil
		}
		return v, clamp01(1 - v/f.Pivot), nil
	default:
		return 0, 0, fmt.Errorf("%w: kind %q", ErrEvaluatorFailure, f.Kind)
	}
}

func renderExplanation(f Factor, raw float64) string {
	tpl := f.Explanation
	if tpl == "" {
		tpl = "{factor}: {feature} is {value}"
	}
	r := strings.NewReplacer(
		"{factor}", f.Name,
		"{feature}", f.Feature,
		"{value}", fmt.Sprintf("%.2f", raw),
	)
	return r.Replace(tpl)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
