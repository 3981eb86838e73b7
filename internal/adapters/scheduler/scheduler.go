// Package scheduler drives periodic portfolio-wide recomputes by
// enqueuing one job per tracked entity on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cscx/pulse/internal/adapters/mq/queue"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/pkg/logger"
	"github.com/cscx/pulse/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// TriggerBatch marks jobs originating from the periodic sweep.
const TriggerBatch = "batch"

// EntitySource enumerates the entities a sweep must cover.
type EntitySource interface {
	Entities(ctx context.Context, includeArchived bool) ([]model.Entity, error)
}

// Enqueuer accepts recompute jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Scheduler runs the periodic batch sweep.
type Scheduler struct {
	source   EntitySource
	sink     Enqueuer
	interval time.Duration
	clock    func() time.Time

	done chan struct{}

	logger logger.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.clock = fn
		}
	}
}

// New creates a scheduler over the given entity source and job sink.
func New(source EntitySource, sink Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:   source,
		sink:     sink,
		interval: defaultInterval,
		clock:    time.Now,
		done:     make(chan struct{}),
		logger:   logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until ctx is canceled. The first sweep
// fires after one full interval so startup ingestion settles first.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (s *Scheduler) Wait() { <-s.done }

// Sweep enqueues one job per active entity. Archived entities are
// skipped; cancellation is honored between entities so shutdown never
// waits on a long portfolio.
func (s *Scheduler) Sweep(ctx context.Context) {
	entities, err := s.source.Entities(ctx, false)
	if err != nil {
		s.logger.Error(ctx, "entity enumeration failed", logger.Error(err))
		return
	}
	metrics.UpdateTrackedEntities(len(entities))

	var queued, shed int
	for _, e := range entities {
		select {
		case <-ctx.Done():
			s.logger.Warn(ctx, "sweep canceled",
				logger.Int("queued", queued),
				logger.Int("remaining", len(entities)-queued-shed),
			)
			return
		default:
		}

		j := queue.Job{
			ID:         uuid.NewString(),
			EntityID:   e.ID,
			EntityType: e.Type,
			Trigger:    TriggerBatch,
			EnqueuedAt: s.clock(),
		}
		if s.sink.Enqueue(ctx, j) {
			queued++
		} else {
			shed++
		}
	}

	s.logger.Info(ctx, "sweep complete",
		logger.Int("entities", len(entities)),
		logger.Int("queued", queued),
		logger.Int("shed", shed),
	)
}
