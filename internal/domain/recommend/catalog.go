// Package recommend maps material score factors to catalog actions with
// estimated impact and effort.
package recommend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cscx/pulse/internal/domain/model"
)

// Action is a catalog entry describing one mitigation or amplification
// move for a factor.
type Action struct {
	ID          string           `yaml:"id"`
	Factor      string           `yaml:"factor"` // factor name the action addresses
	Description string           `yaml:"description"`
	Impact      float64          `yaml:"impact"` // default expected score movement
	Effort      model.EffortTier `yaml:"effort"`
}

// Catalog indexes actions by the factor they address.
type Catalog struct {
	byFactor map[string][]Action
}

// NewCatalog builds a catalog from a flat action list.
func NewCatalog(actions []Action) *Catalog {
	c := &Catalog{byFactor: make(map[string][]Action)}
	for _, a := range actions {
		c.byFactor[a.Factor] = append(c.byFactor[a.Factor], a)
	}
	return c
}

// ActionsFor returns the catalog actions tagged for a factor.
func (c *Catalog) ActionsFor(factor string) []Action {
	return c.byFactor[factor]
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	n := 0
	for _, as := range c.byFactor {
		n += len(as)
	}
	return n
}

type catalogFile struct {
	Actions []Action `yaml:"actions"`
}

// LoadCatalog reads an action catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(f.Actions), nil
}

// DefaultCatalog covers the factors of the seed models.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Action{
		{ID: "act-champion-backfill", Factor: "champion_departed", Description: "Identify and develop a replacement champion", Impact: 18, Effort: model.EffortHigh},
		{ID: "act-exec-sponsor", Factor: "champion_departed", Description: "Request an executive sponsor introduction", Impact: 10, Effort: model.EffortMedium},
		{ID: "act-usage-review", Factor: "usage_decline", Description: "Run an adoption review and enablement session", Impact: 12, Effort: model.EffortMedium},
		{ID: "act-renewal-plan", Factor: "renewal_proximity", Description: "Open a renewal plan with success criteria", Impact: 8, Effort: model.EffortMedium},
		{ID: "act-escalation-triage", Factor: "support_escalations", Description: "Triage open escalations with support leadership", Impact: 9, Effort: model.EffortLow},
		{ID: "act-cadence-reset", Factor: "engagement_drop", Description: "Re-establish a recurring meeting cadence", Impact: 10, Effort: model.EffortLow},
		{ID: "act-sentiment-checkin", Factor: "sentiment_slide", Description: "Schedule a direct check-in on recent friction", Impact: 7, Effort: model.EffortLow},
		{ID: "act-reach-out", Factor: "contact_gap", Description: "Send a personalized re-engagement note", Impact: 6, Effort: model.EffortLow},
		{ID: "act-stage-unblock", Factor: "stage_stalled", Description: "Identify the blocker holding the current stage", Impact: 11, Effort: model.EffortMedium},
		{ID: "act-close-plan", Factor: "close_proximity", Description: "Confirm the mutual close plan with the buyer", Impact: 8, Effort: model.EffortMedium},
		{ID: "act-multithread", Factor: "thin_coverage", Description: "Multithread into two additional stakeholders", Impact: 10, Effort: model.EffortHigh},
		{ID: "act-competitive-brief", Factor: "competitor_present", Description: "Deliver a competitive differentiation brief", Impact: 7, Effort: model.EffortLow},
		{ID: "act-reprioritize", Factor: "due_proximity", Description: "Pull the task into the current work block", Impact: 5, Effort: model.EffortLow},
		{ID: "act-unblock-chain", Factor: "blocking", Description: "Resolve the task to release downstream items", Impact: 6, Effort: model.EffortMedium},
		{ID: "act-account-sync", Factor: "account_risk", Description: "Sync with the account owner on open risks", Impact: 5, Effort: model.EffortLow},
		{ID: "act-investigate-signal", Factor: "magnitude", Description: "Investigate the underlying signal source", Impact: 6, Effort: model.EffortLow},
		{ID: "act-recurrence-root-cause", Factor: "recurrence", Description: "Root-cause the recurring alert", Impact: 7, Effort: model.EffortMedium},
	})
}
