package wake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergySpikeNoSpike(t *testing.T) {
	e := NewEnergySpike()
	pcm := make([]int16, 16000)
	for i := range pcm {
		pcm[i] = 50
	}
	_, ok := e.Detect(pcm)
	assert.False(t, ok)
}

func TestEnergySpikeDetectsRecentBurst(t *testing.T) {
	e := NewEnergySpike()
	pcm := make([]int16, 16000)
	for i := range pcm {
		pcm[i] = 50
	}
	for i := len(pcm) - e.RecentWindow; i < len(pcm); i++ {
		pcm[i] = 5000
	}
	score, ok := e.Detect(pcm)
	require.True(t, ok)
	assert.Greater(t, score, 0.0)
}

func TestEnergySpikeShortPCMDeclines(t *testing.T) {
	e := NewEnergySpike()
	_, ok := e.Detect(make([]int16, 10))
	assert.False(t, ok)
}

func TestStubReplaysThenHoldsLast(t *testing.T) {
	s := NewStub(0.05, 0.06, 0.07)
	scores := []float64{}
	for i := 0; i < 5; i++ {
		score, ok := s.Detect(nil)
		require.True(t, ok)
		scores = append(scores, score)
	}
	assert.Equal(t, []float64{0.05, 0.06, 0.07, 0.07, 0.07}, scores)
}

func TestStubEmptyDeclines(t *testing.T) {
	s := NewStub()
	_, ok := s.Detect(nil)
	assert.False(t, ok)
}
