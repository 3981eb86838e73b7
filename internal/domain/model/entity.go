// Package model contains domain models passed between layers.
package model

import "time"

// EntityType tags the kind of subject being scored.
type EntityType string

// Known entity types. The engine is generic over these; the type only
// selects which scoring model applies and how records are partitioned.
const (
	EntityAccount     EntityType = "account"
	EntityStakeholder EntityType = "stakeholder"
	EntityDeal        EntityType = "deal"
	EntityTask        EntityType = "task"
	EntityRawAlert    EntityType = "raw_alert"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityAccount, EntityStakeholder, EntityDeal, EntityTask, EntityRawAlert:
		return true
	}
	return false
}

// Entity is a scored subject. Entities are registered once and never
// deleted; archival removes them from batch sweeps only.
type Entity struct {
	ID        string
	Type      EntityType
	Portfolio string // owning user or team
	CreatedAt time.Time
	Archived  bool
}

// Event is the inbound contract from ingestion systems. Numeric signals
// arrive in Payload; categorical ones in Labels. An event triggers an
// incremental recompute scoped to EntityID.
type Event struct {
	EventID    string
	EntityID   string
	EntityType EntityType
	EventType  string
	Payload    map[string]float64
	Labels     map[string]string
	OccurredAt time.Time
}
