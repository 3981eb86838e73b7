package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cscx/pulse/internal/domain/model"
)

// Default generator configuration.
const (
	defaultMaxFactors = 5
	defaultCoverage   = 0.8 // fraction of total contribution to cover
	defaultMinSamples = 10  // outcomes needed before calibrated impact wins
)

// ImpactSource reports the historically observed score impact of acting
// on a factor. The repository's feedback history satisfies this; a nil
// source falls back to catalog defaults.
type ImpactSource interface {
	ObservedImpact(ctx context.Context, factor string) (impact float64, samples int, err error)
}

// Generator turns a score record's material factors into recommendations.
type Generator struct {
	catalog    *Catalog
	history    ImpactSource
	maxFactors int
	coverage   float64
	minSamples int
	clock      func() time.Time
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithImpactSource wires historical outcome data for calibrated impact
// estimates.
func WithImpactSource(src ImpactSource) Option {
	return func(g *Generator) { g.history = src }
}

// WithMaxFactors caps how many factors produce recommendations.
func WithMaxFactors(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxFactors = n
		}
	}
}

// WithCoverage sets the fraction of total contribution the selected
// factors must cover.
func WithCoverage(c float64) Option {
	return func(g *Generator) {
		if c > 0 && c <= 1 {
			g.coverage = c
		}
	}
}

// WithMinSamples sets the outcome count required before calibrated
// impact replaces the catalog default.
func WithMinSamples(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.minSamples = n
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGenerator creates a recommendation generator over a catalog.
func NewGenerator(catalog *Catalog, opts ...Option) *Generator {
	g := &Generator{
		catalog:    catalog,
		maxFactors: defaultMaxFactors,
		coverage:   defaultCoverage,
		minSamples: defaultMinSamples,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Recommend maps the record's material factors to catalog actions.
// Material means: top factors by absolute contribution until the
// configured coverage of total contribution is reached, capped.
func (g *Generator) Recommend(ctx context.Context, rec model.ScoreRecord) []model.Recommendation {
	material := materialFactors(rec, g.coverage, g.maxFactors)
	now := g.clock()

	var out []model.Recommendation
	for _, c := range material {
		for _, action := range g.catalog.ActionsFor(c.Factor) {
			impact := action.Impact
			if g.history != nil {
				if observed, n, err := g.history.ObservedImpact(ctx, c.Factor); err == nil && n >= g.minSamples {
					impact = observed
				}
			}
			out = append(out, model.Recommendation{
				ID:             uuid.NewString(),
				RecordID:       rec.RecordID,
				EntityID:       rec.EntityID,
				Factor:         c.Factor,
				Action:         action.Description,
				ExpectedImpact: impact,
				Effort:         action.Effort,
				Status:         model.RecProposed,
				CreatedAt:      now,
			})
		}
	}
	return out
}

// materialFactors selects the factors worth acting on, ordered by
// absolute contribution with name as a deterministic tie-break.
func materialFactors(rec model.ScoreRecord, coverage float64, maxFactors int) []model.Contribution {
	live := make([]model.Contribution, 0, len(rec.Factors))
	var total float64
	for _, c := range rec.Factors {
		if c.Skipped || c.Contribution == 0 {
			continue
		}
		live = append(live, c)
		total += abs(c.Contribution)
	}
	if total == 0 {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		ai, aj := abs(live[i].Contribution), abs(live[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return live[i].Factor < live[j].Factor
	})

	var covered float64
	out := make([]model.Contribution, 0, maxFactors)
	for _, c := range live {
		if len(out) >= maxFactors || covered >= coverage*total {
			break
		}
		out = append(out, c)
		covered += abs(c.Contribution)
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
