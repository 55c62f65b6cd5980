package ocrworker

import (
	"sync"
	"time"
)

// breakerState is the operating mode of a restartBreaker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// restartBreaker gates worker-restart attempts so a worker that keeps
// crashing on launch doesn't get respawned in a tight loop. It trips open
// after maxFailures (cfg.RestartAfterFailures) consecutive failed restart
// attempts and allows a
// single half-open probe once resetTimeout has elapsed.
type restartBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenUsed    bool
}

func newRestartBreaker(maxFailures int, resetTimeout time.Duration) *restartBreaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &restartBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// allow reports whether a restart attempt may proceed right now.
func (b *restartBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) < b.resetTimeout {
			return false
		}
		b.state = breakerHalfOpen
		b.halfOpenUsed = false
		fallthrough
	case breakerHalfOpen:
		if b.halfOpenUsed {
			return false
		}
		b.halfOpenUsed = true
		return true
	default:
		return true
	}
}

// recordFailure registers a failed restart attempt.
func (b *restartBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.maxFailures {
		b.state = breakerOpen
	}
}

// recordSuccess clears failure accounting and closes the breaker.
func (b *restartBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = breakerClosed
	b.consecutiveFail = 0
	b.halfOpenUsed = false
}

// State exposes the current breaker mode for diagnostics.
func (b *restartBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
