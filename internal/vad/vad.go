// Package vad implements the energy-gated voice activity detector that
// feeds down-rate hints to the audio pipeline. Grounded on the RMS-hysteresis
// design used by other local voice pipelines in the retrieval corpus
// (NeboLoop-nebo's RMSVAD), adapted to a sticky silence counter that
// only reports "quiet" after a run of consecutive silent frames.
package vad

import "math"

// Config controls VAD thresholds.
type Config struct {
	// SilenceRMS is the RMS level below which a frame is considered silent.
	SilenceRMS float64
	// SilenceFramesNeeded is the number of consecutive silent frames before
	// the VAD reports "silent" and raises the quiet hint.
	SilenceFramesNeeded int
}

// DefaultConfig returns the detector's baseline thresholds.
func DefaultConfig() Config {
	return Config{SilenceRMS: 300, SilenceFramesNeeded: 8}
}

// Detector tracks consecutive silent frames and exposes a quiet hint used
// by the audio pipeline to down-rate wake detector invocations.
type Detector struct {
	cfg          Config
	silentFrames int
}

// New constructs a Detector from cfg, filling zero-valued fields with
// DefaultConfig.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = def.SilenceRMS
	}
	if cfg.SilenceFramesNeeded <= 0 {
		cfg.SilenceFramesNeeded = def.SilenceFramesNeeded
	}
	return &Detector{cfg: cfg}
}

// IsVoice computes the RMS of frame and updates the sticky silence
// counter. It returns true while voice activity is presumed present.
func (d *Detector) IsVoice(frame []int16) bool {
	level := rms(frame)
	if level < d.cfg.SilenceRMS {
		d.silentFrames++
	} else {
		d.silentFrames = 0
	}
	return !d.Quiet()
}

// Quiet reports whether enough consecutive silent frames have accumulated
// to instruct the audio pipeline to down-rate wake detection.
func (d *Detector) Quiet() bool {
	return d.silentFrames >= d.cfg.SilenceFramesNeeded
}

// Reset clears the sticky silence counter.
func (d *Detector) Reset() {
	d.silentFrames = 0
}

// rms computes the root-mean-square energy of a PCM frame.
func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range frame {
		v := float64(s)
		sumSquares += v * v
	}
	meanSquare := sumSquares / float64(len(frame))
	return math.Sqrt(meanSquare)
}
