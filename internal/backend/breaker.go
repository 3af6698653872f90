package backend

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by Allow while the breaker is rejecting calls.
var ErrBreakerOpen = errors.New("backend: circuit open")

// BreakerState is the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets all requests through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets probe requests through after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards one collaborator service. It trips open after a run of
// consecutive failures, rejects calls for a cooldown period, then probes
// half-open until enough successes close it again. Safe for concurrent use.
type Breaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
}

// NewBreaker creates a breaker. Non-positive arguments fall back to
// 5 failures, 2 successes and a 30s cooldown.
func NewBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a request may proceed. It returns ErrBreakerOpen
// while the breaker is open and inside the cooldown.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) <= b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return nil
}

// RecordSuccess notes a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure notes a failed call. A failure while half-open reopens the
// breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
			b.openedAt = time.Now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.successes = 0
	}
}

// State returns the current state, promoting open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) > b.cooldown {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state
}
