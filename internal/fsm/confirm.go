package fsm

import (
	"sync"
	"time"
)

// ConfirmerConfig tunes the two-stage wake confirmer's thresholds.
type ConfirmerConfig struct {
	ThLow            float64       // stage 1 score threshold, default 0.02
	ThHigh           float64       // stage 2 per-frame score threshold, default 0.04
	ConfirmWindow    time.Duration // stage 2 deadline, default 150ms
	HighScoresNeeded int           // frames scoring >= ThHigh required within the window, default 2
}

// DefaultConfirmerConfig returns the confirmer's baseline thresholds.
func DefaultConfirmerConfig() ConfirmerConfig {
	return ConfirmerConfig{
		ThLow:            0.02,
		ThHigh:           0.04,
		ConfirmWindow:    150 * time.Millisecond,
		HighScoresNeeded: 2,
	}
}

// WakeConfirmer implements the two-stage wake confirmer: stage 1
// promotes a single ThLow-scoring frame straight to
// WakeConfirm; stage 2 requires HighScoresNeeded frames scoring >=
// ThHigh within ConfirmWindow, else the cycle is rejected back to
// Sleep. FeedScore is driven by the audio pipeline's 50Hz loop (C4) —
// every tick's wake score is reported here regardless of whether it
// cleared any threshold, since stage 2 needs to see every frame in the
// window to count how many cleared ThHigh.
type WakeConfirmer struct {
	machine *Machine
	cfg     ConfirmerConfig

	onWakeDetected  func()
	onWakeConfirmed func()
	onWakeRejected  func()

	mu             sync.Mutex
	confirming     bool
	deadline       time.Time
	highScoreCount int
}

// NewWakeConfirmer constructs a confirmer bound to machine. Any of the
// three callbacks may be nil.
func NewWakeConfirmer(machine *Machine, cfg ConfirmerConfig, onWakeDetected, onWakeConfirmed, onWakeRejected func()) *WakeConfirmer {
	if cfg.ThLow <= 0 {
		cfg.ThLow = 0.02
	}
	if cfg.ThHigh <= 0 {
		cfg.ThHigh = 0.04
	}
	if cfg.ConfirmWindow <= 0 {
		cfg.ConfirmWindow = 150 * time.Millisecond
	}
	if cfg.HighScoresNeeded <= 0 {
		cfg.HighScoresNeeded = 2
	}
	return &WakeConfirmer{
		machine:         machine,
		cfg:             cfg,
		onWakeDetected:  onWakeDetected,
		onWakeConfirmed: onWakeConfirmed,
		onWakeRejected:  onWakeRejected,
	}
}

// FeedScore reports one tick's wake-detector output. It never blocks:
// the 150ms deadline is evaluated against wall-clock time on each call
// rather than via a timer goroutine, so a quiet period with no further
// ticks simply leaves the confirm window open until the next tick
// notices the deadline has passed (or ExpireIfOverdue is called).
func (c *WakeConfirmer) FeedScore(score float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.confirming {
		if ok && score >= c.cfg.ThLow && c.machine.State() == StateSleep {
			c.startConfirming()
		}
		return
	}

	if c.expireLocked() {
		return
	}

	if ok && score >= c.cfg.ThHigh {
		c.highScoreCount++
		if c.highScoreCount >= c.cfg.HighScoresNeeded {
			c.confirming = false
			c.machine.Apply(EventWakeConfirmed)
			if c.onWakeConfirmed != nil {
				c.onWakeConfirmed()
			}
		}
	}
}

// ExpireIfOverdue rejects an in-progress confirm window whose deadline
// has already passed, even if no further FeedScore call ever arrives
// (e.g. the mic falls silent right after stage 1). Intended to be
// polled by the same 50Hz loop that calls FeedScore.
func (c *WakeConfirmer) ExpireIfOverdue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.confirming {
		c.expireLocked()
	}
}

func (c *WakeConfirmer) startConfirming() {
	if _, err := c.machine.Apply(EventWakeHit); err != nil {
		return
	}
	c.confirming = true
	c.highScoreCount = 0
	c.deadline = time.Now().Add(c.cfg.ConfirmWindow)
	if c.onWakeDetected != nil {
		c.onWakeDetected()
	}
}

// expireLocked rejects the cycle if the deadline has passed, returning
// true if it did so. Caller must hold c.mu.
func (c *WakeConfirmer) expireLocked() bool {
	if time.Now().Before(c.deadline) {
		return false
	}
	c.confirming = false
	c.machine.Apply(EventWakeRejected)
	if c.onWakeRejected != nil {
		c.onWakeRejected()
	}
	return true
}
