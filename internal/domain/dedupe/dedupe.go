// Package dedupe provides bounded seen-key tracking for idempotent
// ingest and alert fingerprint suppression.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Tracker records seen keys to ensure at-most-once processing. A key
// can optionally expire after a TTL, which the alert bundler uses as a
// cool-down so near-repeats merge instead of re-delivering.
type Tracker interface {
	// SeenAndRecord atomically checks whether key was seen and records
	// it if not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key, allowing it to be retried. Used when a
	// recorded key failed downstream (e.g. queue backpressure).
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key  string
	seen time.Time
}

// memoryTracker implements Tracker with a map plus a FIFO ring for
// bounded eviction. Oldest keys fall out first once maxSize is reached.
type memoryTracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	order   []entry // FIFO eviction order
	head    int
	maxSize int
	ttl     time.Duration // 0 means no expiry
	clock   func() time.Time
}

// Option applies a configuration option to the tracker.
type Option func(*memoryTracker)

// WithMaxSize bounds the number of keys kept in memory.
func WithMaxSize(n int) Option {
	return func(t *memoryTracker) {
		if n > 0 {
			t.maxSize = n
		}
	}
}

// WithTTL expires keys after d, turning the tracker into a cool-down
// window rather than a permanent seen-set.
func WithTTL(d time.Duration) Option {
	return func(t *memoryTracker) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(t *memoryTracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// Default tracker capacity.
const defaultMaxSize = 50000

// NewTracker creates an in-memory tracker with configuration options.
func NewTracker(opts ...Option) Tracker {
	t := &memoryTracker{
		seen:    make(map[string]time.Time),
		maxSize: defaultMaxSize,
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *memoryTracker) SeenAndRecord(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if at, ok := t.seen[key]; ok {
		if t.ttl == 0 || now.Sub(at) < t.ttl {
			return true
		}
		// Expired: treat as unseen and refresh below.
		delete(t.seen, key)
	}

	if len(t.seen) >= t.maxSize {
		t.evictOldest()
	}
	t.seen[key] = now
	t.order = append(t.order, entry{key: key, seen: now})
	return false
}

func (t *memoryTracker) Unrecord(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
}

func (t *memoryTracker) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.seen))
}

// evictOldest drops FIFO entries until a live key is removed. Entries
// whose key was unrecorded or refreshed are skipped. Must be called
// with t.mu held.
func (t *memoryTracker) evictOldest() {
	for t.head < len(t.order) {
		e := t.order[t.head]
		t.head++
		if at, ok := t.seen[e.key]; ok && at.Equal(e.seen) {
			delete(t.seen, e.key)
			break
		}
	}
	// Compact the ring once the dead prefix dominates.
	if t.head > len(t.order)/2 {
		t.order = append([]entry(nil), t.order[t.head:]...)
		t.head = 0
	}
}
