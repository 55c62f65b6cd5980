package cancel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardShouldContinueFreshGeneration(t *testing.T) {
	g := NewGeneration()
	guard := g.Issue()
	assert.True(t, guard.ShouldContinue())
}

func TestCancelAndAdvanceInvalidatesPriorGuard(t *testing.T) {
	g := NewGeneration()
	stale := g.Issue()
	require.True(t, stale.ShouldContinue())

	fresh := g.CancelAndAdvance()
	assert.False(t, stale.ShouldContinue(), "stale guard must observe cancellation")
	assert.True(t, fresh.ShouldContinue())
}

func TestGuardIsCurrentTracksGenerationOnly(t *testing.T) {
	g := NewGeneration()
	guard := g.Issue()

	g.CancelAndAdvance()
	assert.False(t, guard.IsCurrent())
}

func TestChildTokenCancelledByParent(t *testing.T) {
	g := NewGeneration()
	parent := g.Issue()
	child := parent.Child()

	require.True(t, child.ShouldContinue())
	g.CancelAndAdvance()
	assert.False(t, child.ShouldContinue())
}

func TestCoordinatorCancelAllAndAdvanceKillsAllLanes(t *testing.T) {
	c := NewCoordinator()
	root := c.IssueRoot()
	p1 := c.IssueP1()
	p2 := c.IssueP2()

	c.CancelAllAndAdvance()

	assert.False(t, root.ShouldContinue())
	assert.False(t, p1.ShouldContinue())
	assert.False(t, p2.ShouldContinue())
}

func TestCoordinatorNewGuardsAfterAdvanceAreCurrent(t *testing.T) {
	c := NewCoordinator()
	c.CancelAllAndAdvance()

	freshP1 := c.IssueP1()
	assert.True(t, freshP1.ShouldContinue())
}

// TestOnlyLatestGenerationVisible models property P2: for two wake cycles
// Ci < Cj, no guard issued under Ci observes ShouldContinue()==true once
// Cj's CancelAllAndAdvance has run.
func TestOnlyLatestGenerationVisible(t *testing.T) {
	c := NewCoordinator()
	ci := c.IssueP1()
	c.CancelAllAndAdvance() // simulates the preemption on a fresh WakeHit
	cj := c.IssueP1()

	assert.False(t, ci.ShouldContinue())
	assert.True(t, cj.ShouldContinue())
}

func TestConcurrentGuardChecksDuringAdvance(t *testing.T) {
	g := NewGeneration()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		guard := g.Issue()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = guard.ShouldContinue()
		}()
	}
	g.CancelAndAdvance()
	wg.Wait()
}
