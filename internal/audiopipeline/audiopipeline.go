// Package audiopipeline runs the 50 Hz audio processing loop: it
// drains fixed-size PCM frames into the ring buffer, updates VAD on every
// tick, invokes the wake detector at full rate or down-rated depending on
// the VAD's quiet hint, and drives the FSM's two-stage wake confirmer with
// every tick's score. It never performs network I/O, disk writes, or
// translation-path work — its only externally visible effect is pushing a
// WakeHit onto the scheduler's P0 lane through the confirmer's callbacks.
package audiopipeline

import (
	"context"
	"time"

	"github.com/akumauu/ciallo/internal/fsm"
	"github.com/akumauu/ciallo/internal/ring"
	"github.com/akumauu/ciallo/internal/vad"
	"github.com/akumauu/ciallo/internal/wake"
)

// tickInterval is the fixed 50 Hz cadence.
const tickInterval = 20 * time.Millisecond

// analysisWindow is the "last 320 ms" window read on every tick: 320ms at
// 16kHz mono is 5120 samples.
const analysisWindow = ring.SampleRate * 320 / 1000

// wakeDownRateFactor invokes the wake detector on 1 in N ticks while the
// VAD reports quiet, down-rating detector work during silence.
const wakeDownRateFactor = 4

// Config bundles the pipeline's collaborators. Buffer, VAD, and Wake may
// be supplied by the caller (e.g. with wake.NewStub in tests); nil values
// fall back to their package defaults. Confirmer's onWakeDetected callback
// is where a caller wires the actual scheduler.SubmitP0 call — the
// pipeline itself never touches the scheduler, network I/O, disk writes,
// or translation paths; submitting P0 work is the caller's job.
type Config struct {
	Buffer    *ring.Buffer
	VAD       *vad.Detector
	Wake      wake.Detector
	Confirmer *fsm.WakeConfirmer
}

// Pipeline owns the 50 Hz processing loop. Frames is fed from the audio
// capture goroutine; Run blocks until ctx is cancelled.
type Pipeline struct {
	buffer    *ring.Buffer
	vad       *vad.Detector
	wake      wake.Detector
	confirmer *fsm.WakeConfirmer

	tickCount uint64
}

// New constructs a Pipeline from cfg, applying package defaults for any
// nil collaborator except Confirmer, which the caller must always supply.
func New(cfg Config) *Pipeline {
	buf := cfg.Buffer
	if buf == nil {
		buf = ring.New()
	}
	detector := cfg.VAD
	if detector == nil {
		detector = vad.New(vad.DefaultConfig())
	}
	wakeDetector := cfg.Wake
	if wakeDetector == nil {
		wakeDetector = wake.NewEnergySpike()
	}
	return &Pipeline{
		buffer:    buf,
		vad:       detector,
		wake:      wakeDetector,
		confirmer: cfg.Confirmer,
	}
}

// Ingest appends a captured PCM frame into the ring buffer. Called from
// the audio capture goroutine, independently of the 50 Hz analysis loop.
func (p *Pipeline) Ingest(frame ring.Frame) {
	p.buffer.Write(frame[:])
}

// Run drives the 50 Hz tick loop until ctx is cancelled. Each tick reads
// the last 320ms window, updates VAD, conditionally invokes the wake
// detector, and reports the outcome to the wake confirmer.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pipeline) tick() {
	window := p.buffer.ReadLast(analysisWindow)
	if len(window) == 0 {
		return
	}

	latest := window[len(window)-ring.FrameSamples:]
	if len(window) < ring.FrameSamples {
		latest = window
	}
	voiceActive := p.vad.IsVoice(latest)
	quiet := p.vad.Quiet()

	p.tickCount++
	shouldSample := voiceActive || !quiet || p.tickCount%wakeDownRateFactor == 0
	if !shouldSample {
		p.confirmer.ExpireIfOverdue()
		return
	}

	score, ok := p.wake.Detect(window)
	p.confirmer.FeedScore(score, ok)
}
