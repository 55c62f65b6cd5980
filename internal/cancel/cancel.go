// Package cancel implements a generation-based end-to-end cancellation
// framework: per-lane generation counters, cloneable cancel tokens, and
// guards that gate every externally visible job effect. No cooperative
// cancellation primitive interrupts a running job — only its visible
// effects are gated, so a cancelled job's side effects never reach the
// UI even if the goroutine keeps running past the cancel point.
package cancel

import "sync/atomic"

// Token is a shared cancellation flag. Children created via Child are
// linked to their parent so that cancelling the root cancels every
// descendant without a parent ever needing to enumerate its children.
type Token struct {
	cancelled *atomic.Bool
	parent    *Token
}

// newToken returns a fresh, uncancelled root token.
func newToken() *Token {
	return &Token{cancelled: &atomic.Bool{}}
}

// Cancel marks this token cancelled. It does not affect the parent.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether this token or any ancestor has been
// cancelled.
func (t *Token) Cancelled() bool {
	for tok := t; tok != nil; tok = tok.parent {
		if tok.cancelled.Load() {
			return true
		}
	}
	return false
}

// Child returns a new token linked to t: cancelling t (or any of t's
// ancestors) cancels the child, but cancelling the child never affects t.
func (t *Token) Child() *Token {
	return &Token{cancelled: &atomic.Bool{}, parent: t}
}

// Generation is a monotonically increasing counter plus the current
// cancel token for one lane. Advancing the generation invalidates every
// guard issued against a prior generation.
type Generation struct {
	counter atomic.Uint64
	current atomic.Pointer[Token]
}

// NewGeneration returns a Generation seeded at generation 1 with a fresh,
// uncancelled token. Generation 0 is reserved to mean "no guard issued".
func NewGeneration() *Generation {
	g := &Generation{}
	g.counter.Store(1)
	g.current.Store(newToken())
	return g
}

// Current returns the current generation number and its live token.
func (g *Generation) Current() (uint64, *Token) {
	return g.counter.Load(), g.current.Load()
}

// Issue returns a Guard bound to the current generation and token,
// without advancing the generation. Call this once per job submission.
func (g *Generation) Issue() Guard {
	gen, tok := g.Current()
	return Guard{lane: g, generationAtIssue: gen, token: tok}
}

// CancelAndAdvance marks the current token cancelled, increments the
// counter, and installs a fresh token, returning a guard for the new
// generation. O(1): it never waits for outstanding jobs, which self-drop
// on their next guard check.
func (g *Generation) CancelAndAdvance() Guard {
	g.current.Load().Cancel()
	g.counter.Add(1)
	fresh := newToken()
	g.current.Store(fresh)
	gen, _ := g.Current()
	return Guard{lane: g, generationAtIssue: gen, token: fresh}
}

// Guard is a (generation_at_issue, token) pair handed to a job on
// submission. Every side-effectful job step must call ShouldContinue
// before committing.
type Guard struct {
	lane              *Generation
	generationAtIssue uint64
	token             *Token
}

// IsCurrent reports whether the guard's generation still matches the
// lane's live generation.
func (guard Guard) IsCurrent() bool {
	if guard.lane == nil {
		return false
	}
	current, _ := guard.lane.Current()
	return current == guard.generationAtIssue
}

// ShouldContinue is !Cancelled() && IsCurrent(). Callable from any thread;
// any side-effectful job step (emit UI event, write cache, write history)
// must call this immediately before committing that effect.
func (guard Guard) ShouldContinue() bool {
	if guard.token == nil {
		return false
	}
	return !guard.token.Cancelled() && guard.IsCurrent()
}

// Child derives a guard for a sub-job whose cancellation should follow the
// parent's token but which may be tracked against the same lane
// generation. Used when a job spawns nested work (e.g. OCR handing text
// to translation) that should die with the parent without owning a
// separate generation slot.
func (guard Guard) Child() Guard {
	child := guard
	if guard.token != nil {
		child.token = guard.token.Child()
	}
	return child
}

// LaneID names one of the three cancellation lanes tracked by
// Coordinator.
type LaneID int

const (
	// LaneRoot is the shared root lane: cancelling it cancels everything.
	LaneRoot LaneID = iota
	// LaneP1 is the translation/render lane (selection + realtime).
	LaneP1
	// LaneP2 is the OCR-heavy lane.
	LaneP2
)

// Coordinator owns the three Generation instances (root, P1, P2) and
// provides the atomic all-lane cancel used on every fresh wake burst.
type Coordinator struct {
	root *Generation
	p1   *Generation
	p2   *Generation
}

// NewCoordinator constructs a Coordinator with all three lanes at
// generation 1.
func NewCoordinator() *Coordinator {
	return &Coordinator{root: NewGeneration(), p1: NewGeneration(), p2: NewGeneration()}
}

// Lane returns the Generation for the given lane ID.
func (c *Coordinator) Lane(id LaneID) *Generation {
	switch id {
	case LaneP1:
		return c.p1
	case LaneP2:
		return c.p2
	default:
		return c.root
	}
}

// CancelAllAndAdvance advances every lane's generation atomically from the
// caller's point of view: root, then P1, then P2. A fresh WakeHit calls
// this before any new P1/P2 work is enqueued, killing every in-flight job
// from the prior wake cycle.
func (c *Coordinator) CancelAllAndAdvance() {
	c.root.CancelAndAdvance()
	c.p1.CancelAndAdvance()
	c.p2.CancelAndAdvance()
}

// IssueRoot issues a guard against the root lane.
func (c *Coordinator) IssueRoot() Guard { return c.root.Issue() }

// IssueP1 issues a guard against the P1 lane.
func (c *Coordinator) IssueP1() Guard { return c.p1.Issue() }

// IssueP2 issues a guard against the P2 lane.
func (c *Coordinator) IssueP2() Guard { return c.p2.Issue() }
