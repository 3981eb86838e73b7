// Package feature implements the versioned, time-windowed feature store.
//
// Ingestion appends a new FeatureSet version per entity instead of
// mutating the previous one. Features with no recent data are flagged
// stale rather than omitted, so downstream consumers reduce confidence
// instead of guessing. Missing sources are never fatal.
package feature

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cscx/pulse/internal/domain/model"
)

// Default store configuration.
const (
	defaultStaleness  = 14 * 24 * time.Hour
	defaultMaxHistory = 512 // samples kept per feature
)

// Sample is one historical observation of a feature, consumed by the
// trend calculator.
type Sample struct {
	At    time.Time
	Value float64
}

// Store keeps per-entity feature versions and per-feature history in
// memory. Entities never share state, so a single RWMutex over the map
// plus immutable snapshots is enough.
type Store struct {
	mu         sync.RWMutex
	entities   map[string]*entityFeatures
	staleness  time.Duration
	maxHistory int
	clock      func() time.Time
}

type entityFeatures struct {
	entityType model.EntityType
	versions   []model.FeatureSet
	history    map[string][]Sample
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithStaleness sets the window after which a feature with no new data
// is flagged stale.
func WithStaleness(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithMaxHistory caps the number of samples kept per feature.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a feature store with configuration options.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entities:   make(map[string]*entityFeatures),
		staleness:  defaultStaleness,
		maxHistory: defaultMaxHistory,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append folds observations into a new FeatureSet version for the
// entity and returns the snapshot. Prior features are carried forward;
// the new version supersedes, never rewrites, the old one.
func (s *Store) Append(ctx context.Context, entityID string, entityType model.EntityType, obs []model.Observation) (model.FeatureSet, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureSet{}, fmt.Errorf("append cancelled: %w", err)
	}
	if entityID == "" {
		return model.FeatureSet{}, fmt.Errorf("%w: empty entity id", ErrInvalidObservation)
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	ef, ok := s.entities[entityID]
	if !ok {
		ef = &entityFeatures{
			entityType: entityType,
			history:    make(map[string][]Sample),
		}
		s.entities[entityID] = ef
	}

	features := make(map[string]model.FeatureValue)
	if n := len(ef.versions); n > 0 {
		for name, fv := range ef.versions[n-1].Features {
			features[name] = fv
		}
	}

	for _, o := range obs {
		if o.Feature == "" {
			continue
		}
		at := o.ObservedAt
		if at.IsZero() {
			at = now
		}
		prev := features[o.Feature]
		features[o.Feature] = model.FeatureValue{
			Value:       o.Value,
			Categorical: o.Categorical,
			ObservedAt:  at,
			Samples:     prev.Samples + 1,
		}
		ef.history[o.Feature] = appendSample(ef.history[o.Feature], Sample{At: at, Value: o.Value}, s.maxHistory)
	}

	fs := model.FeatureSet{
		EntityID:   entityID,
		EntityType: ef.entityType,
		Version:    int64(len(ef.versions) + 1),
		CapturedAt: now,
		Features:   features,
	}
	fs = s.flagStaleness(fs, now)
	ef.versions = append(ef.versions, fs)
	return snapshot(fs), nil
}

// Restore rebuilds an entity's versions and per-feature history from
// persisted snapshots, oldest first, replacing any state already held
// for that entity. Carried-forward features are recognized by their
// unchanged observation time and do not produce duplicate samples.
func (s *Store) Restore(sets []model.FeatureSet) {
	if len(sets) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ef := &entityFeatures{
		entityType: sets[0].EntityType,
		history:    make(map[string][]Sample),
	}
	var prev map[string]model.FeatureValue
	for _, fs := range sets {
		fs = snapshot(fs)
		for name, fv := range fs.Features {
			old, seen := prev[name]
			if seen && old.ObservedAt.Equal(fv.ObservedAt) && old.Value == fv.Value {
				continue
			}
			ef.history[name] = appendSample(ef.history[name], Sample{At: fv.ObservedAt, Value: fv.Value}, s.maxHistory)
		}
		prev = fs.Features
		ef.versions = append(ef.versions, fs)
	}
	s.entities[sets[0].EntityID] = ef
}

// Get returns the newest FeatureSet captured at or before asOf.
// Staleness is re-evaluated against asOf, so a set read long after it
// was written reports its features stale.
func (s *Store) Get(ctx context.Context, entityID string, asOf time.Time) (model.FeatureSet, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureSet{}, fmt.Errorf("get cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ef, ok := s.entities[entityID]
	if !ok || len(ef.versions) == 0 {
		return model.FeatureSet{}, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	for i := len(ef.versions) - 1; i >= 0; i-- {
		if !ef.versions[i].CapturedAt.After(asOf) {
			return s.flagStaleness(snapshot(ef.versions[i]), asOf), nil
		}
	}
	return model.FeatureSet{}, fmt.Errorf("%w: %s has no feature set at %s", ErrNotFound, entityID, asOf.Format(time.RFC3339))
}

// Latest returns the newest FeatureSet for the entity.
func (s *Store) Latest(ctx context.Context, entityID string) (model.FeatureSet, error) {
	return s.Get(ctx, entityID, s.clock())
}

// History returns the samples for one feature inside the window ending
// now, oldest first.
func (s *Store) History(ctx context.Context, entityID, featureName string, window time.Duration) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("history cancelled: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ef, ok := s.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}
	all := ef.history[featureName]
	cutoff := s.clock().Add(-window)
	out := make([]Sample, 0, len(all))
	for _, smp := range all {
		if !smp.At.Before(cutoff) {
			out = append(out, smp)
		}
	}
	return out, nil
}

// EntityIDs lists entities with at least one feature set.
func (s *Store) EntityIDs(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	return ids
}

// flagStaleness recomputes stale flags and gaps relative to asOf.
func (s *Store) flagStaleness(fs model.FeatureSet, asOf time.Time) model.FeatureSet {
	cutoff := asOf.Add(-s.staleness)
	gaps := fs.Gaps[:0:0]
	for name, fv := range fs.Features {
		fv.Stale = fv.ObservedAt.Before(cutoff)
		fs.Features[name] = fv
		if fv.Stale {
			gaps = append(gaps, name)
		}
	}
	fs.Gaps = gaps
	return fs
}

// snapshot deep-copies a feature set so callers can never mutate stored
// versions.
func snapshot(fs model.FeatureSet) model.FeatureSet {
	features := make(map[string]model.FeatureValue, len(fs.Features))
	for name, fv := range fs.Features {
		features[name] = fv
	}
	fs.Features = features
	if fs.Gaps != nil {
		gaps := make([]string, len(fs.Gaps))
		copy(gaps, fs.Gaps)
		fs.Gaps = gaps
	}
	return fs
}

func appendSample(history []Sample, smp Sample, maxLen int) []Sample {
	history = append(history, smp)
	if len(history) > maxLen {
		history = history[len(history)-maxLen:]
	}
	return history
}
