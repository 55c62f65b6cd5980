// Package translate implements the translation service:
// normalize → glossary match → two-tier cache lookup → streaming
// DeepSeek call → placeholder restore → cache insert. Grounded on the
// any-llm-go provider wrapper in
// MrWong99-glyphoxa/pkg/provider/llm/anyllm/anyllm.go (backend selection
// by provider name, StreamCompletion returning a channel of chunks),
// generalized from a general-purpose chat completion wrapper to a
// single-purpose translation call. Retry/backoff and rate limiting are
// promoted from indirect to direct dependencies per the pack's own
// go.mod entries (github.com/cenkalti/backoff/v5 in
// Zoex2304-notefiber-be-beta/go.mod, golang.org/x/time in
// satriahrh-arunika/server/go.mod), since no example repo exercised
// them directly but both are the idiomatic choice for exactly this
// retry/rate-limit shape.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/time/rate"

	"github.com/akumauu/ciallo/internal/cache"
	"github.com/akumauu/ciallo/internal/cancel"
	"github.com/akumauu/ciallo/internal/glossary"
	"github.com/akumauu/ciallo/internal/metrics"
	"github.com/akumauu/ciallo/internal/normalize"
)

// ChunkFunc is invoked once per batched output chunk. The caller decides
// whether to forward it to the UI, typically gated on a cancel.Guard.
type ChunkFunc func(text string)

// Request is one translation request.
type Request struct {
	Source      string
	SourceLang  string
	TargetLang  string
	GlossaryVer glossary.Version
}

// Result is the final, placeholder-restored translation.
type Result struct {
	Translated string
	FromCache  bool
}

// Backend is the minimal any-llm-go surface the service depends on,
// narrowed from anyllmlib.Provider so tests can supply a stub without
// standing up a real HTTP client.
type Backend interface {
	CompletionStream(ctx context.Context, params anyllmlib.CompletionParams) (<-chan anyllmlib.ChatCompletionChunk, <-chan error)
}

// permanentError wraps a non-retryable failure (bad key, malformed
// response, any 4xx other than 429) so backoff.Retry stops immediately
// instead of burning through the retry budget on a request that can
// never succeed.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// errorClass distinguishes the retry policy a failure falls under.
type errorClass int

const (
	classPermanent errorClass = iota
	class429
	class5xx
	classTimeout
)

// Service runs one translation request end to end: normalize, match
// glossary entries, check the two-tier cache, stream the completion, and
// restore placeholders in the result.
type Service struct {
	backend  Backend
	model    string
	cache    *cache.Cache
	glossary *glossary.Matcher
	limiter  *rate.Limiter
	metrics  *metrics.Registry
	log      *slog.Logger
	retry429 []time.Duration
	retry5xx []time.Duration
}

// Config bundles the service's runtime tunables.
type Config struct {
	Model            string
	RateLimitPerSec  float64 // default 10 req/s
	ChunkFlushWindow time.Duration
	Retry429MS       []int // delay before each of up to 3 retries on 429; default 1/2/4s
	Retry5xxMS       []int // delay before each of up to 2 retries on 5xx; default 500ms/1s
}

// New constructs a Service. glossaryMatcher may be nil if no glossary is
// loaded.
func New(backend Backend, c *cache.Cache, glossaryMatcher *glossary.Matcher, m *metrics.Registry, log *slog.Logger, cfg Config) *Service {
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	if cfg.ChunkFlushWindow <= 0 {
		cfg.ChunkFlushWindow = 40 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	retry429 := durationsFromMS(cfg.Retry429MS)
	if len(retry429) == 0 {
		retry429 = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	retry5xx := durationsFromMS(cfg.Retry5xxMS)
	if len(retry5xx) == 0 {
		retry5xx = []time.Duration{500 * time.Millisecond, time.Second}
	}
	return &Service{
		backend:  backend,
		model:    cfg.Model,
		cache:    c,
		glossary: glossaryMatcher,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		metrics:  m,
		log:      log,
		retry429: retry429,
		retry5xx: retry5xx,
	}
}

func durationsFromMS(ms []int) []time.Duration {
	if len(ms) == 0 {
		return nil
	}
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

// Translate runs the full normalize/glossary/cache/stream pipeline. onChunk is called for each
// batched streamed fragment; the caller (the P1 job wrapping this call)
// is responsible for checking guard.ShouldContinue() before forwarding
// a chunk to the UI — Translate itself does not know about generations,
// only about the cancellation of the underlying API call via ctx.
func (s *Service) Translate(ctx context.Context, guard cancel.Guard, req Request, onChunk ChunkFunc) (Result, error) {
	span := s.metrics.TimingSpan("t_translate_done")
	defer span.Stop()

	normalized := normalize.Protect(req.Source)

	var glossaryHits []glossary.Entry
	if s.glossary != nil {
		glossaryHits = s.glossary.Match(normalized.Text)
	}

	key := cache.Key(req.SourceLang, req.TargetLang, string(req.GlossaryVer), normalized.Text)
	if cached, ok := s.cache.Get(key); ok {
		return Result{Translated: cached, FromCache: true}, nil
	}

	translated, err := s.streamCompletion(ctx, guard, normalized.Text, req, glossaryHits, onChunk)
	if err != nil {
		return Result{}, err
	}

	restored := normalized.Restore(translated)

	if guard.ShouldContinue() {
		if err := s.cache.Set(key, restored); err != nil {
			s.log.Warn("translate: cache insert failed", "error", err)
		}
	}

	return Result{Translated: restored}, nil
}

// streamCompletion issues the API call, then, on failure, retries with the
// schedule matching the failure's class: 429 backs off 1/2/4s across up to
// 3 retries, 5xx backs off exponentially across up to 2 retries, and a
// timeout gets one immediate retry with no delay. Any other error is
// permanent and returned without retrying. The class is fixed after the
// first failure; a request that starts failing with, say, 429s and later
// starts timing out keeps the 429 schedule rather than switching mid-run.
func (s *Service) streamCompletion(ctx context.Context, guard cancel.Guard, normalizedText string, req Request, hits []glossary.Entry, onChunk ChunkFunc) (string, error) {
	call := func() (string, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return s.callOnce(ctx, guard, normalizedText, req, hits, onChunk)
	}

	result, err := call()
	if err == nil {
		return result, nil
	}

	class, wrapped := classifyError(err)
	if class == classPermanent {
		var perm *permanentError
		if errors.As(wrapped, &perm) {
			return "", perm.err
		}
		return "", wrapped
	}

	retryable := func() (string, error) {
		result, err := call()
		if err != nil {
			_, wrapped := classifyError(err)
			var perm *permanentError
			if errors.As(wrapped, &perm) {
				return "", backoff.Permanent(wrapped)
			}
		}
		return result, err
	}

	delays := s.retryDelays(class)
	result, err = backoff.Retry(ctx, retryable,
		backoff.WithBackOff(&sliceBackOff{delays: delays}),
		backoff.WithMaxTries(uint(len(delays))),
	)
	if err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			return "", perm.err
		}
		return "", err
	}
	return result, nil
}

func (s *Service) retryDelays(class errorClass) []time.Duration {
	switch class {
	case class429:
		return s.retry429
	case class5xx:
		return s.retry5xx
	default:
		return []time.Duration{0}
	}
}

// sliceBackOff replays a fixed sequence of delays, one per retry, then
// signals backoff.Retry to stop once the schedule is exhausted.
type sliceBackOff struct {
	delays []time.Duration
	next   int
}

func (b *sliceBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *sliceBackOff) Reset() { b.next = 0 }

func (s *Service) callOnce(ctx context.Context, guard cancel.Guard, normalizedText string, req Request, hits []glossary.Entry, onChunk ChunkFunc) (string, error) {
	if !guard.ShouldContinue() {
		return "", context.Canceled
	}

	params := anyllmlib.CompletionParams{
		Model:    s.model,
		Messages: buildMessages(normalizedText, req, hits),
	}

	chunks, errs := s.backend.CompletionStream(ctx, params)

	var full string
	var pending string
	flush := time.NewTicker(40 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			full += text
			pending += text
		case <-flush.C:
			if pending != "" && guard.ShouldContinue() {
				onChunk(pending)
				pending = ""
			}
		case err := <-errs:
			if err != nil {
				return "", err
			}
			if chunks != nil {
				for chunk := range chunks {
					if len(chunk.Choices) > 0 {
						full += chunk.Choices[0].Delta.Content
						pending += chunk.Choices[0].Delta.Content
					}
				}
			}
			if pending != "" && guard.ShouldContinue() {
				onChunk(pending)
			}
			return full, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if chunks == nil {
			if err := <-errs; err != nil {
				return "", err
			}
			if pending != "" && guard.ShouldContinue() {
				onChunk(pending)
			}
			return full, nil
		}
	}
}

// classifyError sorts an API failure into a retry class and, for
// permanent failures, wraps it in permanentError so streamCompletion
// short-circuits instead of retrying: 429 and 5xx retry on their own
// schedules, a context deadline is a timeout, and everything else (bad
// key, malformed response, other 4xx) is permanent.
func classifyError(err error) (errorClass, error) {
	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		switch {
		case code == http.StatusTooManyRequests:
			return class429, err
		case code >= 500:
			return class5xx, err
		}
		return classPermanent, &permanentError{err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout, err
	}
	return classPermanent, &permanentError{err: fmt.Errorf("translate: %w", err)}
}

func buildMessages(normalizedText string, req Request, hits []glossary.Entry) []anyllmlib.Message {
	system := fmt.Sprintf("Translate from %s to %s. Preserve any token matching PH<number> exactly, unmodified.", req.SourceLang, req.TargetLang)
	if len(hits) > 0 {
		system += " Use these preferred terms:"
		for _, h := range hits {
			system += fmt.Sprintf(" %q->%q,", h.Source, h.Target)
		}
	}
	return []anyllmlib.Message{
		{Role: anyllmlib.RoleSystem, Content: system},
		{Role: anyllmlib.RoleUser, Content: normalizedText},
	}
}
