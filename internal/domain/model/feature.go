package model

import "time"

// FeatureValue is a single observed signal inside a FeatureSet.
type FeatureValue struct {
	Value       float64
	Categorical string // set for non-numeric signals; Value carries an encoding
	Stale       bool   // no fresh data inside the staleness window
	ObservedAt  time.Time
	Samples     int // historical observation count behind this value
}

// FeatureSet is a versioned, timestamped snapshot of an entity's signals.
// Sets are immutable once written; new data supersedes with a higher
// version rather than mutating in place.
type FeatureSet struct {
	EntityID   string
	EntityType EntityType
	Version    int64
	CapturedAt time.Time
	Features   map[string]FeatureValue
	Gaps       []string // feature sources that produced no data at all
}

// Observation is one incoming signal destined for the feature store.
type Observation struct {
	Feature     string
	Value       float64
	Categorical string
	ObservedAt  time.Time
}

// Coverage returns the fraction of features carrying non-stale data.
func (fs FeatureSet) Coverage() float64 {
	if len(fs.Features) == 0 {
		return 0
	}
	fresh := 0
	for _, fv := range fs.Features {
		if !fv.Stale {
			fresh++
		}
	}
	return float64(fresh) / float64(len(fs.Features))
}

// AllStale reports whether every feature in the set is stale (or the set
// is empty). Consumers treat such sets as zero-confidence input.
func (fs FeatureSet) AllStale() bool {
	for _, fv := range fs.Features {
		if !fv.Stale {
			return false
		}
	}
	return true
}

// Newest returns the most recent observation time across all features.
func (fs FeatureSet) Newest() time.Time {
	var newest time.Time
	for _, fv := range fs.Features {
		if fv.ObservedAt.After(newest) {
			newest = fv.ObservedAt
		}
	}
	return newest
}
