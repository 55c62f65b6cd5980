// Package wake defines the pluggable wake-detection capability and its
// default energy-spike heuristic implementation. Grounded on the
// detector-interface shape used by clawdbot-clawgo's wakeword package
// (Detect over a PCM window, returning a typed hit), simplified to a
// synchronous single-window contract.
package wake

import "math"

// Detector is a polymorphic capability: given the last ~1 s of PCM, it
// either declines (ok == false) or returns a confidence score. Default
// implementation is EnergySpike; a seeded Stub exists for deterministic
// tests. Implementations must be stateless across calls or own private
// state — the audio pipeline never shares state with them.
type Detector interface {
	Detect(last1sPCM []int16) (score float64, ok bool)
}

// EnergySpike is the default wake detector: recent-window RMS divided by
// a trailing baseline RMS, scored when the ratio clears Sensitivity.
type EnergySpike struct {
	// Sensitivity is the minimum recent/baseline RMS ratio that yields a
	// score. Default 3.0.
	Sensitivity float64
	// RecentWindow is the number of trailing samples treated as the
	// "recent" window, compared against the remainder as baseline.
	RecentWindow int
}

// NewEnergySpike returns an EnergySpike with spec defaults.
func NewEnergySpike() *EnergySpike {
	return &EnergySpike{Sensitivity: 3.0, RecentWindow: 4096}
}

// Detect implements Detector.
func (e *EnergySpike) Detect(pcm []int16) (float64, bool) {
	sensitivity := e.Sensitivity
	if sensitivity <= 0 {
		sensitivity = 3.0
	}
	recentWindow := e.RecentWindow
	if recentWindow <= 0 {
		recentWindow = 4096
	}
	if len(pcm) < recentWindow*2 {
		return 0, false
	}

	recent := pcm[len(pcm)-recentWindow:]
	baseline := pcm[:len(pcm)-recentWindow]

	recentRMS := rms(recent)
	baselineRMS := rms(baseline)
	if baselineRMS <= 1e-9 {
		if recentRMS > 0 {
			return 1.0, true
		}
		return 0, false
	}

	ratio := recentRMS / baselineRMS
	if ratio < sensitivity {
		return 0, false
	}

	// Normalize the ratio into a bounded [th_low, 1.0]-ish score space so
	// that downstream thresholds (th_low=0.02, th_high=0.04) are
	// meaningful: map [sensitivity, sensitivity*4] onto [0.02, 0.08].
	score := 0.02 + (ratio-sensitivity)/(sensitivity*3)*0.06
	if score > 1.0 {
		score = 1.0
	}
	return score, true
}

// Stub is a deterministic, seeded wake detector for tests: it replays a
// fixed score sequence regardless of PCM content.
type Stub struct {
	Scores []float64
	idx    int
}

// NewStub returns a Stub that replays scores in order, then repeats the
// last value indefinitely.
func NewStub(scores ...float64) *Stub {
	return &Stub{Scores: scores}
}

// Detect implements Detector.
func (s *Stub) Detect(_ []int16) (float64, bool) {
	if len(s.Scores) == 0 {
		return 0, false
	}
	i := s.idx
	if i >= len(s.Scores) {
		i = len(s.Scores) - 1
	} else {
		s.idx++
	}
	return s.Scores[i], true
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range pcm {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(pcm)))
}
