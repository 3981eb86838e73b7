package model

import "time"

// EffortTier is a rough cost estimate for acting on a recommendation.
type EffortTier string

const (
	EffortLow    EffortTier = "low"
	EffortMedium EffortTier = "medium"
	EffortHigh   EffortTier = "high"
)

// RecommendationStatus tracks a recommendation through its lifecycle.
type RecommendationStatus string

const (
	RecProposed   RecommendationStatus = "proposed"
	RecAccepted   RecommendationStatus = "accepted"
	RecInProgress RecommendationStatus = "in_progress"
	RecDone       RecommendationStatus = "done"
	RecDismissed  RecommendationStatus = "dismissed"
)

// Recommendation ties a catalog action to a contributing factor of one
// score record.
type Recommendation struct {
	ID             string
	RecordID       string
	EntityID       string
	Factor         string
	Action         string
	ExpectedImpact float64 // estimated score movement if acted on
	Effort         EffortTier
	Status         RecommendationStatus
	CreatedAt      time.Time
}
