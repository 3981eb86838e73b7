// Package bundle groups scored alerts for the same entity into a single
// delivery unit and suppresses noise.
//
// Lifecycle: new -> bundled -> delivered -> {acknowledged, suppressed,
// expired}. The bundle score is the maximum of member scores, never an
// average, so one severe signal is not diluted by minor ones.
package bundle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cscx/pulse/internal/domain/dedupe"
	"github.com/cscx/pulse/internal/domain/model"
)

// Default bundler configuration.
const (
	defaultWindow       = 24 * time.Hour
	defaultCooldown     = 6 * time.Hour
	defaultImmediateMin = 70.0
	defaultDigestMin    = 40.0
	fingerprintStep     = 5.0 // score rounding for near-repeat detection
)

// Thresholds drive the delivery recommendation as a pure function of
// bundle score. At or above Immediate delivers now; at or above Digest
// batches; below suppresses.
type Thresholds struct {
	Immediate float64
	Digest    float64
}

// Decide maps a score to a delivery mode.
func (t Thresholds) Decide(score float64) model.DeliveryMode {
	switch {
	case score >= t.Immediate:
		return model.DeliverImmediate
	case score >= t.Digest:
		return model.DeliverDigest
	default:
		return model.DeliverSuppress
	}
}

// Bundler merges scored alerts into bundles and deduplicates repeats.
type Bundler struct {
	mu         sync.Mutex
	open       map[string]*model.AlertBundle // by entity id
	recent     dedupe.Tracker                // fingerprints within cool-down
	window     time.Duration
	thresholds Thresholds
	clock      func() time.Time
}

// Option applies a configuration option to the Bundler.
type Option func(*Bundler)

// WithWindow sets the bundling window.
func WithWindow(d time.Duration) Option {
	return func(b *Bundler) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithCooldown sets the fingerprint cool-down for exact-repeat
// suppression.
func WithCooldown(d time.Duration) Option {
	return func(b *Bundler) {
		if d > 0 {
			b.recent = dedupe.NewTracker(dedupe.WithTTL(d))
		}
	}
}

// WithThresholds sets the delivery thresholds.
func WithThresholds(t Thresholds) Option {
	return func(b *Bundler) {
		if t.Immediate >= t.Digest {
			b.thresholds = t
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Bundler) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBundler creates a bundler with configuration options.
func NewBundler(opts ...Option) *Bundler {
	b := &Bundler{
		open:       make(map[string]*model.AlertBundle),
		recent:     dedupe.NewTracker(dedupe.WithTTL(defaultCooldown)),
		window:     defaultWindow,
		thresholds: Thresholds{Immediate: defaultImmediateMin, Digest: defaultDigestMin},
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fingerprint identifies near-identical alerts: same entity, same alert
// type, magnitude rounded to the nearest step.
func Fingerprint(entityID, alertType string, score float64) string {
	rounded := math.Round(score/fingerprintStep) * fingerprintStep
	return fmt.Sprintf("%s|%s|%.0f", entityID, alertType, rounded)
}

// Add folds a scored alert into the entity's open bundle, opening one
// if needed. It returns the bundle snapshot and whether the alert was
// suppressed as a repeat. The delivery recommendation is re-evaluated
// on every member addition.
func (b *Bundler) Add(ctx context.Context, rec model.ScoreRecord, alertType string) (model.AlertBundle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	fp := Fingerprint(rec.EntityID, alertType, rec.Score)

	cur, ok := b.open[rec.EntityID]
	if ok && now.Sub(cur.OpenedAt) >= b.window {
		// Window elapsed: the old bundle ages out of merging.
		cur.State = model.BundleExpired
		cur.UpdatedAt = now
		delete(b.open, rec.EntityID)
		cur = nil
		ok = false
	}

	if b.recent.SeenAndRecord(ctx, fp) {
		// Exact or near repeat inside the cool-down. If a bundle is
		// open the repeat merges silently; either way nothing new is
		// delivered.
		if ok {
			return *cur, true
		}
		return model.AlertBundle{State: model.BundleSuppressed, EntityID: rec.EntityID}, true
	}

	if !ok {
		cur = &model.AlertBundle{
			ID:       uuid.NewString(),
			EntityID: rec.EntityID,
			State:    model.BundleNew,
			OpenedAt: now,
		}
		b.open[rec.EntityID] = cur
	}

	cur.Members = append(cur.Members, model.BundleMember{
		RecordID:  rec.RecordID,
		AlertType: alertType,
		Score:     rec.Score,
		AddedAt:   now,
	})
	if rec.Score > cur.Score {
		cur.Score = rec.Score
		cur.Title = fmt.Sprintf("%s (score %.0f)", alertType, rec.Score)
	}
	if len(cur.Members) > 1 {
		cur.Title = fmt.Sprintf("%s and %d more", topMemberType(cur), len(cur.Members)-1)
		cur.State = model.BundleBundled
	}
	cur.Delivery = b.thresholds.Decide(cur.Score)
	cur.UpdatedAt = now

	return *cur, false
}

// Transition moves a bundle through its lifecycle, rejecting moves the
// state machine does not allow.
func (b *Bundler) Transition(entityID string, to model.BundleState) (model.AlertBundle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.open[entityID]
	if !ok {
		return model.AlertBundle{}, fmt.Errorf("%w: %s", ErrNoOpenBundle, entityID)
	}
	if !validTransition(cur.State, to) {
		return model.AlertBundle{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur.State, to)
	}
	cur.State = to
	cur.UpdatedAt = b.clock()
	if to == model.BundleAcknowledged || to == model.BundleSuppressed || to == model.BundleExpired {
		delete(b.open, entityID)
	}
	return *cur, nil
}

// Open returns the entity's open bundle, if any.
func (b *Bundler) Open(entityID string) (model.AlertBundle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.open[entityID]
	if !ok {
		return model.AlertBundle{}, false
	}
	return *cur, true
}

func validTransition(from, to model.BundleState) bool {
	switch from {
	case model.BundleNew, model.BundleBundled:
		return to == model.BundleDelivered || to == model.BundleSuppressed ||
			to == model.BundleExpired || (from == model.BundleNew && to == model.BundleBundled)
	case model.BundleDelivered:
		return to == model.BundleAcknowledged || to == model.BundleSuppressed || to == model.BundleExpired
	default:
		return false
	}
}

// topMemberType returns the alert type of the highest-scoring member.
func topMemberType(bdl *model.AlertBundle) string {
	best := ""
	bestScore := math.Inf(-1)
	for _, m := range bdl.Members {
		if m.Score > bestScore {
			bestScore = m.Score
			best = m.AlertType
		}
	}
	return best
}
