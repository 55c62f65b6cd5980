package fsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeConfirmerStageOnePromotesToWakeConfirm(t *testing.T) {
	m := NewMachine()
	var detected bool
	c := NewWakeConfirmer(m, DefaultConfirmerConfig(), func() { detected = true }, nil, nil)

	c.FeedScore(0.03, true)

	assert.Equal(t, StateWakeConfirm, m.State())
	assert.True(t, detected)
}

func TestWakeConfirmerBelowThLowDoesNothing(t *testing.T) {
	m := NewMachine()
	c := NewWakeConfirmer(m, DefaultConfirmerConfig(), nil, nil, nil)

	c.FeedScore(0.005, true)
	assert.Equal(t, StateSleep, m.State())
}

func TestWakeConfirmerStageTwoConfirmsAfterTwoHighScores(t *testing.T) {
	m := NewMachine()
	var confirmed bool
	c := NewWakeConfirmer(m, DefaultConfirmerConfig(), nil, func() { confirmed = true }, nil)

	c.FeedScore(0.03, true) // stage 1
	require.Equal(t, StateWakeConfirm, m.State())

	c.FeedScore(0.05, true) // first high score
	assert.Equal(t, StateWakeConfirm, m.State())
	assert.False(t, confirmed)

	c.FeedScore(0.05, true) // second high score confirms
	assert.Equal(t, StateModeSelect, m.State())
	assert.True(t, confirmed)
}

func TestWakeConfirmerRejectsAfterDeadlineWithoutEnoughHighScores(t *testing.T) {
	m := NewMachine()
	var rejected bool
	cfg := DefaultConfirmerConfig()
	cfg.ConfirmWindow = 10 * time.Millisecond
	c := NewWakeConfirmer(m, cfg, nil, nil, func() { rejected = true })

	c.FeedScore(0.03, true)
	require.Equal(t, StateWakeConfirm, m.State())

	time.Sleep(20 * time.Millisecond)
	c.FeedScore(0.05, true) // arrives after deadline, must reject not confirm

	assert.Equal(t, StateSleep, m.State())
	assert.True(t, rejected)
}

func TestWakeConfirmerExpireIfOverdueRejectsWithoutFurtherScores(t *testing.T) {
	m := NewMachine()
	var rejected bool
	cfg := DefaultConfirmerConfig()
	cfg.ConfirmWindow = 5 * time.Millisecond
	c := NewWakeConfirmer(m, cfg, nil, nil, func() { rejected = true })

	c.FeedScore(0.03, true)
	require.Equal(t, StateWakeConfirm, m.State())

	time.Sleep(15 * time.Millisecond)
	c.ExpireIfOverdue()

	assert.Equal(t, StateSleep, m.State())
	assert.True(t, rejected)
}

func TestWakeConfirmerIgnoresStageOneWhileAlreadyConfirming(t *testing.T) {
	m := NewMachine()
	detectedCount := 0
	c := NewWakeConfirmer(m, DefaultConfirmerConfig(), func() { detectedCount++ }, nil, nil)

	c.FeedScore(0.03, true)
	c.FeedScore(0.03, true) // still below th_high, and already confirming

	assert.Equal(t, StateWakeConfirm, m.State())
	assert.Equal(t, 1, detectedCount)
}
