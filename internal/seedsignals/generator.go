package seedsignals

import (
	"fmt"
	"math/rand"
	"time"
)

// Event is the wire shape posted to /events.
type Event struct {
	EventID    string             `json:"event_id"`
	EntityID   string             `json:"entity_id"`
	EntityType string             `json:"entity_type"`
	EventType  string             `json:"event_type"`
	Payload    map[string]float64 `json:"payload"`
	Labels     map[string]string  `json:"labels"`
	OccurredAt string             `json:"occurred_at"`
}

// profile shapes one entity's trajectory so seeded portfolios contain
// a visible mix of healthy, drifting and collapsing entities.
type profile struct {
	entityID   string
	entityType string
	portfolio  string
	declining  bool
	churnRisk  bool
}

// Generate produces a deterministic event stream for cfg: entities
// across all types, each with cfg.Days days of daily signals.
func Generate(cfg *Config) []Event {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	types := []string{"account", "stakeholder", "deal", "task", "raw_alert"}
	portfolios := []string{"team-east", "team-west", "team-emea"}

	profiles := make([]profile, 0, cfg.Entities)
	for i := 0; i < cfg.Entities; i++ {
		profiles = append(profiles, profile{
			entityID:   fmt.Sprintf("%s-%04d", types[i%len(types)], i),
			entityType: types[i%len(types)],
			portfolio:  portfolios[rng.Intn(len(portfolios))],
			declining:  rng.Float64() < 0.3,
			churnRisk:  rng.Float64() < 0.15,
		})
	}

	start := time.Now().UTC().AddDate(0, 0, -cfg.Days)
	var out []Event
	for _, p := range profiles {
		for day := 0; day < cfg.Days; day++ {
			at := start.AddDate(0, 0, day).Add(time.Duration(rng.Intn(86400)) * time.Second)
			out = append(out, dailyEvent(rng, p, day, cfg.Days, at))
		}
	}
	return out
}

func dailyEvent(rng *rand.Rand, p profile, day, totalDays int, at time.Time) Event {
	progress := float64(day) / float64(totalDays)
	drift := 0.0
	if p.declining {
		drift = -progress // signals worsen over the run
	}

	ev := Event{
		EventID:    fmt.Sprintf("%s-day-%03d", p.entityID, day),
		EntityID:   p.entityID,
		EntityType: p.entityType,
		OccurredAt: at.Format(time.RFC3339),
		Labels:     map[string]string{"portfolio": p.portfolio},
		Payload:    map[string]float64{},
	}

	switch p.entityType {
	case "account":
		ev.EventType = "usage_snapshot"
		ev.Payload["usage_trend"] = clamp(drift+rng.NormFloat64()*0.1, -1, 1)
		ev.Payload["support_escalations"] = float64(rng.Intn(3))
		ev.Payload["renewal_days"] = float64(365 - day*3)
		if p.churnRisk && progress > 0.7 {
			ev.Payload["champion_departed"] = 1
			ev.Labels["champion_departed"] = "true"
		}
	case "stakeholder":
		ev.EventType = "engagement_snapshot"
		ev.Payload["days_since_contact"] = float64(rng.Intn(30)) * (1 - drift)
		ev.Payload["sentiment"] = clamp(0.5+drift+rng.NormFloat64()*0.2, -1, 1)
		ev.Payload["meeting_rate"] = clamp(0.6+drift, 0, 1)
	case "deal":
		ev.EventType = "deal_snapshot"
		ev.Payload["stage_age_days"] = float64(day) * 1.5
		ev.Payload["stakeholder_coverage"] = clamp(0.7+drift+rng.NormFloat64()*0.1, 0, 1)
		ev.Payload["close_days"] = float64(90 - day)
		ev.Payload["engagement_trend"] = clamp(drift+rng.NormFloat64()*0.15, -1, 1)
	case "task":
		ev.EventType = "task_snapshot"
		ev.Payload["due_days"] = float64(14 - rng.Intn(20))
		ev.Payload["blocking"] = float64(rng.Intn(2))
		ev.Payload["account_risk"] = clamp(40-drift*40+rng.NormFloat64()*10, 0, 100)
	case "raw_alert":
		ev.EventType = "alert_fired"
		ev.Payload["severity"] = float64(1 + rng.Intn(5))
		ev.Payload["recurrence"] = float64(rng.Intn(6))
		ev.Labels["alert_type"] = []string{"usage_drop", "sentiment_drop", "sla_breach"}[rng.Intn(3)]
	}
	return ev
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
