package model

import "time"

// Direction describes which way a feature or score is moving.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Declining Direction = "declining"
)

// Trend is the rate-of-change descriptor attached to score records and
// returned by the trend calculator.
type Trend struct {
	Direction  Direction
	Velocity   float64 // units per day from a robust fit
	Confidence float64 // 0 when fewer than minimum samples
	WindowDays int
}

// Contribution is one factor's share of an overall score.
type Contribution struct {
	Factor       string
	RawValue     float64
	Weight       float64
	Contribution float64
	Explanation  string
	Skipped      bool
	SkipReason   string
}

// Band buckets a score for portfolio roll-ups.
type Band string

const (
	BandHealthy  Band = "healthy"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Band thresholds on the standard 0-100 scale.
const (
	healthyFloor = 70
	warningFloor = 40
)

// ScoreRecord is the immutable output of applying a scoring model to a
// feature set. Records form an append-only history per entity; "current"
// is always a read-time latest query.
type ScoreRecord struct {
	RecordID      string
	EntityID      string
	EntityType    EntityType
	ModelName     string
	ModelVersion  int
	Score         float64
	Available     bool   // false means no computable score; see Reason
	Reason        string // e.g. "insufficient_data" when unavailable
	Confidence    float64
	LowConfidence bool
	Partial       bool // at least one factor was skipped
	Factors       []Contribution
	Trend         Trend
	Summary       string // narrative text or template fallback
	CalculatedAt  time.Time
}

// Band returns the health band for the record's score.
func (r ScoreRecord) Band() Band {
	switch {
	case r.Score >= healthyFloor:
		return BandHealthy
	case r.Score >= warningFloor:
		return BandWarning
	default:
		return BandCritical
	}
}

// ContributionSum adds up non-skipped factor contributions. It must
// reconstruct Score within the model's rounding tolerance.
func (r ScoreRecord) ContributionSum() float64 {
	var sum float64
	for _, c := range r.Factors {
		if !c.Skipped {
			sum += c.Contribution
		}
	}
	return sum
}
