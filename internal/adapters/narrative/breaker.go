package narrative

import (
	"sync"
	"time"
)

// breakerState tracks the remote summarizer's health.
type breakerState int32

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker is a minimal circuit breaker guarding the remote call. It
// opens after consecutive failures, probes again after a cooldown, and
// closes on consecutive successes in half-open.
type breaker struct {
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	clock            func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    int
	successes   int
	nextAttempt time.Time
}

func newBreaker(failureThreshold, successThreshold int, recovery time.Duration, clock func() time.Time) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recovery,
		clock:            clock,
		state:            stateClosed,
	}
}

// allow reports whether a call may proceed, moving open to half-open
// once the cooldown has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if b.clock().Before(b.nextAttempt) {
			return false
		}
		b.state = stateHalfOpen
		b.successes = 0
	}
	return true
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = stateOpen
		b.nextAttempt = b.clock().Add(b.recoveryTimeout)
	}
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == stateHalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = stateClosed
		}
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
