// Package realtime implements the 500 ms screen-translation loop:
// screenshot capture, the OCR worker's combined diff+recognize call, a
// line-hash diff against the previous tick, translate-only-what-changed,
// and a session-local line cache that lets persistent on-screen text
// settle into a single API call. Grounded on the tick-driven capture
// loop in `internal/audiopipeline` (a fixed-interval ticker gated on a
// cancel.Guard each iteration) generalized from an audio frame source to
// a screenshot source.
package realtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/akumauu/ciallo/internal/cancel"
	"github.com/akumauu/ciallo/internal/config"
	"github.com/akumauu/ciallo/internal/glossary"
	"github.com/akumauu/ciallo/internal/ocrwire"
	"github.com/akumauu/ciallo/internal/translate"
)

// Capturer captures a still screenshot of the active region. It is an
// external collaborator: this package only depends on the
// interface, never a concrete capture backend.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// OCRWorker is the subset of internal/ocrworker.Worker the loop depends
// on, narrowed to an interface so tests can supply a stub.
type OCRWorker interface {
	SendRealtimeOCR(ctx context.Context, req ocrwire.RealtimeOCRRequest) (ocrwire.RealtimeOCRResult, error)
	ResetRealtime(ctx context.Context) error
}

// Translator is the subset of internal/translate.Service the loop needs.
type Translator interface {
	Translate(ctx context.Context, guard cancel.Guard, req translate.Request, onChunk translate.ChunkFunc) (translate.Result, error)
}

// Line is one recognized, translated line ready for display.
type Line struct {
	Text       string
	Translated string
	X, Y, W, H int
}

// Update is the payload of a realtime-update event.
type Update struct {
	Lines          []Line
	Added          int
	Cached         int
	TokenSavingPct float64
}

// Summary reports a finished session's cumulative totals: how many lines
// were served from the session-local translation cache versus sent to
// the translation API, and the resulting token-saving ratio.
type Summary struct {
	TokenSavingPct        float64
	LinesTranslatedViaAPI uint64
	LinesFromCache        uint64
}

// EventSink receives the loop's lifecycle and per-tick events, mirroring
// the UI event list (realtime-started/-update/-error/-stopped).
type EventSink interface {
	RealtimeStarted()
	RealtimeUpdate(Update)
	RealtimeError(error)
	RealtimeStopped(Summary)
}

// Session runs one realtime translation loop until its context is
// cancelled, the guard goes stale, or Stop is called.
type Session struct {
	capturer   Capturer
	worker     OCRWorker
	translator Translator
	sink       EventSink
	cfg        config.RealtimeConfig
	sourceLang string
	targetLang string
	glossary   string
	log        *slog.Logger

	lineCache map[uint32]string // line hash -> translated text

	linesTranslatedViaAPI uint64
	linesFromCache        uint64

	stop chan struct{}
}

// New constructs a Session. sourceLang/targetLang/glossaryVer parameterize
// every Translate call issued by the loop.
func New(capturer Capturer, worker OCRWorker, translator Translator, sink EventSink, cfg config.RealtimeConfig, sourceLang, targetLang, glossaryVer string, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		capturer:   capturer,
		worker:     worker,
		translator: translator,
		sink:       sink,
		cfg:        cfg,
		sourceLang: sourceLang,
		targetLang: targetLang,
		glossary:   glossaryVer,
		log:        log,
		lineCache:  make(map[uint32]string),
		stop:       make(chan struct{}),
	}
}

// Stop ends the loop on its next tick boundary. Safe to call once.
func (s *Session) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Run drives the tick loop until ctx is cancelled, guard.ShouldContinue()
// turns false, or Stop is called — any of which is `stop_realtime` or
// `cancel_all_and_advance()` from the loop's point of view.
func (s *Session) Run(ctx context.Context, guard cancel.Guard) {
	if err := s.worker.ResetRealtime(ctx); err != nil {
		s.log.Warn("realtime: reset baseline failed", "error", err)
	}

	s.sink.RealtimeStarted()
	defer func() { s.sink.RealtimeStopped(s.summary()) }()

	tickMS := s.cfg.TickMS
	if tickMS <= 0 {
		tickMS = 500
	}
	ticker := time.NewTicker(time.Duration(tickMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if !guard.ShouldContinue() {
				return
			}
			s.tick(ctx, guard)
		}
	}
}

// tick runs one capture→diff→translate→merge cycle.
func (s *Session) tick(ctx context.Context, guard cancel.Guard) {
	image, err := s.capturer.Capture(ctx)
	if err != nil {
		s.sink.RealtimeError(err)
		return
	}

	result, err := s.worker.SendRealtimeOCR(ctx, ocrwire.RealtimeOCRRequest{Image: image})
	if err != nil {
		s.sink.RealtimeError(err)
		return
	}

	if result.NoChange {
		return
	}

	added, unchanged := s.diff(result.Lines)
	s.linesFromCache += uint64(len(unchanged))

	for i := range added {
		if !guard.ShouldContinue() {
			return
		}
		translated, err := s.translator.Translate(ctx, guard, translate.Request{
			Source:      added[i].Text,
			SourceLang:  s.sourceLang,
			TargetLang:  s.targetLang,
			GlossaryVer: glossary.Version(s.glossary),
		}, nil)
		if err != nil {
			s.sink.RealtimeError(err)
			continue
		}
		added[i].Translated = translated.Translated
		s.lineCache[lineHash(added[i].Text, added[i].Y, s.cfg.YBucketPx)] = translated.Translated
		s.linesTranslatedViaAPI++
	}

	if !guard.ShouldContinue() {
		return
	}

	merged := make([]Line, 0, len(added)+len(unchanged))
	merged = append(merged, added...)
	merged = append(merged, unchanged...)

	total := len(added) + len(unchanged)
	tokenSaving := 0.0
	if total > 0 {
		tokenSaving = float64(len(unchanged)) / float64(total)
	}

	s.sink.RealtimeUpdate(Update{
		Lines:          merged,
		Added:          len(added),
		Cached:         len(unchanged),
		TokenSavingPct: tokenSaving,
	})

	s.rememberHashes(result.Lines)
}

// diff classifies each recognized line as added (not seen last tick) or
// unchanged (already translated and cached from a prior tick).
func (s *Session) diff(lines []ocrwire.Line) (added, unchanged []Line) {
	for _, l := range lines {
		h := lineHash(l.Text, l.Y, s.cfg.YBucketPx)
		if translated, ok := s.lineCache[h]; ok {
			unchanged = append(unchanged, Line{Text: l.Text, Translated: translated, X: l.X, Y: l.Y, W: l.W, H: l.H})
			continue
		}
		added = append(added, Line{Text: l.Text, X: l.X, Y: l.Y, W: l.W, H: l.H})
	}
	return added, unchanged
}

// rememberHashes drops cached translations for lines no longer on screen,
// so a stale line reappearing later is treated as freshly added rather
// than silently resurrecting an outdated translation.
func (s *Session) rememberHashes(lines []ocrwire.Line) {
	live := make(map[uint32]struct{}, len(lines))
	for _, l := range lines {
		live[lineHash(l.Text, l.Y, s.cfg.YBucketPx)] = struct{}{}
	}
	for h := range s.lineCache {
		if _, ok := live[h]; !ok {
			delete(s.lineCache, h)
		}
	}
}

// summary reports the session's cumulative cache-hit ratio across every
// tick, for the realtime-stopped event's payload.
func (s *Session) summary() Summary {
	total := s.linesTranslatedViaAPI + s.linesFromCache
	pct := 0.0
	if total > 0 {
		pct = float64(s.linesFromCache) / float64(total) * 100
	}
	return Summary{
		TokenSavingPct:        pct,
		LinesTranslatedViaAPI: s.linesTranslatedViaAPI,
		LinesFromCache:        s.linesFromCache,
	}
}

// lineHash computes a hash of the line text joined with its vertical
// position bucketed to bucketPx, so a line that moves a few pixels
// between ticks still hits the cache.
func lineHash(text string, y, bucketPx int) uint32 {
	if bucketPx <= 0 {
		bucketPx = 8
	}
	bucket := (y / bucketPx) * bucketPx

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	_, _ = h.Write([]byte{byte(bucket), byte(bucket >> 8), byte(bucket >> 16), byte(bucket >> 24)})
	return h.Sum32()
}
