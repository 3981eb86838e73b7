package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cscx/pulse/internal/adapters/mq/queue"
	"github.com/cscx/pulse/internal/adapters/scheduler"
	"github.com/cscx/pulse/internal/domain/model"
	"github.com/cscx/pulse/pkg/logger"
)

type stubSource struct {
	entities []model.Entity
	err      error
}

func (s *stubSource) Entities(ctx context.Context, includeArchived bool) ([]model.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if includeArchived {
		return s.entities, nil
	}
	active := make([]model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if !e.Archived {
			active = append(active, e)
		}
	}
	return active, nil
}

type captureSink struct {
	mu   sync.Mutex
	jobs []queue.Job
	full bool
}

func (c *captureSink) Enqueue(ctx context.Context, j queue.Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.jobs = append(c.jobs, j)
	return true
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func TestScheduler_Sweep(t *testing.T) {
	_ = logger.Init()

	source := &stubSource{entities: []model.Entity{
		{ID: "acct-1", Type: model.EntityAccount},
		{ID: "deal-1", Type: model.EntityDeal},
		{ID: "acct-old", Type: model.EntityAccount, Archived: true},
	}}
	sink := &captureSink{}
	s := scheduler.New(source, sink)

	s.Sweep(context.Background())

	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 jobs for active entities, got %d", got)
	}
	for _, j := range sink.jobs {
		if j.Trigger != scheduler.TriggerBatch {
			t.Errorf("expected batch trigger, got %q", j.Trigger)
		}
		if j.ID == "" {
			t.Error("expected a generated job id")
		}
		if j.EntityID == "acct-old" {
			t.Error("archived entity must not be swept")
		}
	}
}

func TestScheduler_SweepSourceError(t *testing.T) {
	_ = logger.Init()

	sink := &captureSink{}
	s := scheduler.New(&stubSource{err: errors.New("storage down")}, sink)

	s.Sweep(context.Background())

	if got := sink.count(); got != 0 {
		t.Fatalf("expected no jobs on enumeration failure, got %d", got)
	}
}

func TestScheduler_SweepFullQueue(t *testing.T) {
	_ = logger.Init()

	source := &stubSource{entities: []model.Entity{
		{ID: "acct-1", Type: model.EntityAccount},
		{ID: "acct-2", Type: model.EntityAccount},
	}}
	sink := &captureSink{full: true}
	s := scheduler.New(source, sink)

	// A full queue sheds the sweep without blocking or panicking.
	s.Sweep(context.Background())

	if got := sink.count(); got != 0 {
		t.Fatalf("expected all jobs shed, got %d queued", got)
	}
}

func TestScheduler_SweepCancellation(t *testing.T) {
	_ = logger.Init()

	entities := make([]model.Entity, 100)
	for i := range entities {
		entities[i] = model.Entity{ID: "acct", Type: model.EntityAccount}
	}
	sink := &captureSink{}
	s := scheduler.New(&stubSource{entities: entities}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Sweep(ctx)

	if got := sink.count(); got != 0 {
		t.Fatalf("expected cancelled sweep to stop immediately, got %d jobs", got)
	}
}

func TestScheduler_StartInterval(t *testing.T) {
	_ = logger.Init()

	source := &stubSource{entities: []model.Entity{{ID: "acct-1", Type: model.EntityAccount}}}
	sink := &captureSink{}
	s := scheduler.New(source, sink, scheduler.WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(70 * time.Millisecond)
	cancel()
	s.Wait()

	if got := sink.count(); got < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d jobs", got)
	}
}
