// Package breaker implements the two-state circuit breaker that
// guards every per-PLC operation executor: CLOSED while the PLC is
// reachable, OPEN once consecutive failures cross a threshold. There
// is deliberately no HALF_OPEN state — a single probe attempt is made
// once the reset timeout elapses, and a failed probe reopens the
// breaker immediately with no second grace window.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's current posture.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Breaker tracks consecutive failures for one PLC connection and
// decides whether a new operation may be attempted.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	resetTimeout  time.Duration
	state         State
	failureCount  int
	lastFailureAt time.Time
}

// New returns a breaker that opens after threshold consecutive
// failures and allows one probe attempt after resetTimeout has
// elapsed since the last failure.
func New(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, resetTimeout: resetTimeout}
}

// CanAttempt reports whether a new operation may proceed. It is true
// whenever the breaker is closed, or when open but the reset timeout
// has elapsed since the last recorded failure — in which case the
// caller's next attempt is the single probe; its outcome is reported
// back via RecordSuccess/RecordFailure.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Closed {
		return true
	}
	if b.lastFailureAt.IsZero() {
		return true
	}
	return time.Since(b.lastFailureAt) > b.resetTimeout
}

// RecordSuccess closes the breaker and clears its failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = Closed
}

// RecordFailure registers a failed operation. Once failureCount
// reaches the configured threshold the breaker opens; every failure,
// including the post-timeout probe's, restarts the reset clock, so a
// failed probe reopens the breaker for another full resetTimeout with
// no intermediate state.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = time.Now()
	if b.failureCount >= b.threshold {
		b.state = Open
	}
}

// CurrentState returns the breaker's current state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
