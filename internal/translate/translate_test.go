package translate

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akumauu/ciallo/internal/cache"
	"github.com/akumauu/ciallo/internal/cancel"
	"github.com/akumauu/ciallo/internal/glossary"
	"github.com/akumauu/ciallo/internal/metrics"
)

// statusError stubs the StatusCode() surface classifyError type-asserts on.
type statusError struct{ code int }

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

// failNBackend fails its first N calls with err, then serves reply.
type failNBackend struct {
	failures int
	err      error
	reply    string
	calls    int
}

func (f *failNBackend) CompletionStream(ctx context.Context, params anyllmlib.CompletionParams) (<-chan anyllmlib.ChatCompletionChunk, <-chan error) {
	f.calls++
	chunks := make(chan anyllmlib.ChatCompletionChunk, 1)
	errs := make(chan error, 1)
	if f.calls <= f.failures {
		close(chunks)
		errs <- f.err
		return chunks, errs
	}
	chunks <- anyllmlib.ChatCompletionChunk{Choices: []anyllmlib.ChunkChoice{{Delta: anyllmlib.ChunkDelta{Content: f.reply}}}}
	close(chunks)
	errs <- nil
	return chunks, errs
}

func newRetryTestService(t *testing.T, backend Backend, cfg Config) *Service {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "translations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	cfg.Model = "deepseek-chat"
	return New(backend, c, nil, metrics.NewRegistry(), nil, cfg)
}

type fakeBackend struct {
	reply string
	calls int
}

func (f *fakeBackend) CompletionStream(ctx context.Context, params anyllmlib.CompletionParams) (<-chan anyllmlib.ChatCompletionChunk, <-chan error) {
	f.calls++
	chunks := make(chan anyllmlib.ChatCompletionChunk, 1)
	errs := make(chan error, 1)
	chunks <- anyllmlib.ChatCompletionChunk{
		Choices: []anyllmlib.ChunkChoice{{Delta: anyllmlib.ChunkDelta{Content: f.reply}}},
	}
	close(chunks)
	errs <- nil
	return chunks, errs
}

func newTestService(t *testing.T, backend Backend) *Service {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "translations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New(backend, c, nil, metrics.NewRegistry(), nil, Config{Model: "deepseek-chat"})
}

func TestTranslateCallsBackendOnMiss(t *testing.T) {
	backend := &fakeBackend{reply: "你好"}
	s := newTestService(t, backend)
	guard := cancel.NewCoordinator().IssueP1()

	result, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "你好", result.Translated)
	assert.False(t, result.FromCache)
	assert.Equal(t, 1, backend.calls)
}

func TestTranslateSecondCallHitsCache(t *testing.T) {
	backend := &fakeBackend{reply: "你好"}
	s := newTestService(t, backend)
	guard := cancel.NewCoordinator().IssueP1()

	req := Request{Source: "hello", SourceLang: "en", TargetLang: "zh"}
	first, err := s.Translate(context.Background(), guard, req, func(string) {})
	require.NoError(t, err)

	second, err := s.Translate(context.Background(), guard, req, func(string) {})
	require.NoError(t, err)

	assert.Equal(t, first.Translated, second.Translated)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, backend.calls, "second call must hit cache, not the backend")
}

func TestTranslateRestoresPlaceholders(t *testing.T) {
	backend := &fakeBackend{reply: "访问 PH0 了解详情"}
	s := newTestService(t, backend)
	guard := cancel.NewCoordinator().IssueP1()

	result, err := s.Translate(context.Background(), guard, Request{
		Source: "Visit https://example.com for details", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	require.NoError(t, err)
	assert.Contains(t, result.Translated, "https://example.com")
}

func TestTranslateUsesGlossaryHintsInPrompt(t *testing.T) {
	backend := &fakeBackend{reply: "缓存"}
	matcher := glossary.NewMatcher([]glossary.Entry{{Source: "cache", Target: "缓存"}}, false)
	c, err := cache.Open(filepath.Join(t.TempDir(), "translations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	s := New(backend, c, matcher, metrics.NewRegistry(), nil, Config{Model: "deepseek-chat"})

	guard := cancel.NewCoordinator().IssueP1()
	_, err = s.Translate(context.Background(), guard, Request{
		Source: "check the cache", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})
	require.NoError(t, err)
}

func TestTranslateDoesNotCacheWhenGuardStale(t *testing.T) {
	backend := &fakeBackend{reply: "你好"}
	s := newTestService(t, backend)
	coordinator := cancel.NewCoordinator()
	guard := coordinator.IssueP1()
	coordinator.CancelAllAndAdvance()

	_, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})
	require.NoError(t, err)

	fresh := coordinator.IssueP1()
	result, err := s.Translate(context.Background(), fresh, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})
	require.NoError(t, err)
	assert.False(t, result.FromCache, "a stale-guard translation must not have populated the cache")
}

func TestTranslateForwardsChunksToCallback(t *testing.T) {
	backend := &fakeBackend{reply: "streamed"}
	s := newTestService(t, backend)
	guard := cancel.NewCoordinator().IssueP1()

	var got []string
	_, err := s.Translate(context.Background(), guard, Request{
		Source: "stream this", SourceLang: "en", TargetLang: "zh",
	}, func(text string) { got = append(got, text) })

	require.NoError(t, err)
	require.NotEmpty(t, got)
}

func TestTranslateRetries429UpToThreeTimesThenSucceeds(t *testing.T) {
	backend := &failNBackend{failures: 3, err: &statusError{code: http.StatusTooManyRequests}, reply: "你好"}
	s := newRetryTestService(t, backend, Config{Retry429MS: []int{1, 1, 1}})
	guard := cancel.NewCoordinator().IssueP1()

	result, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "你好", result.Translated)
	assert.Equal(t, 4, backend.calls, "429 retries 3 times (4 attempts total) before giving up")
}

func TestTranslate429ExhaustsRetryBudget(t *testing.T) {
	backend := &failNBackend{failures: 10, err: &statusError{code: http.StatusTooManyRequests}}
	s := newRetryTestService(t, backend, Config{Retry429MS: []int{1, 1, 1}})
	guard := cancel.NewCoordinator().IssueP1()

	_, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	assert.Error(t, err)
	assert.Equal(t, 4, backend.calls, "429 gives up after 3 retries (4 attempts total)")
}

func TestTranslateRetries5xxUpToTwoTimesThenSucceeds(t *testing.T) {
	backend := &failNBackend{failures: 2, err: &statusError{code: http.StatusBadGateway}, reply: "你好"}
	s := newRetryTestService(t, backend, Config{Retry5xxMS: []int{1, 1}})
	guard := cancel.NewCoordinator().IssueP1()

	result, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "你好", result.Translated)
	assert.Equal(t, 3, backend.calls, "5xx retries 2 times (3 attempts total) before giving up")
}

func TestTranslateTimeoutRetriesOnceImmediately(t *testing.T) {
	backend := &failNBackend{failures: 1, err: context.DeadlineExceeded, reply: "你好"}
	s := newRetryTestService(t, backend, Config{})
	guard := cancel.NewCoordinator().IssueP1()

	result, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "你好", result.Translated)
	assert.Equal(t, 2, backend.calls, "a timeout gets exactly one immediate retry with no delay")
}

func TestTranslatePermanentErrorDoesNotRetry(t *testing.T) {
	backend := &failNBackend{failures: 10, err: &statusError{code: http.StatusUnauthorized}}
	s := newRetryTestService(t, backend, Config{})
	guard := cancel.NewCoordinator().IssueP1()

	_, err := s.Translate(context.Background(), guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})

	assert.Error(t, err)
	assert.Equal(t, 1, backend.calls, "a non-retryable error must not retry at all")
}

func TestTranslateContextCancellationPropagates(t *testing.T) {
	backend := &fakeBackend{reply: "unused"}
	s := newTestService(t, backend)
	guard := cancel.NewCoordinator().IssueP1()

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancelFn()
	time.Sleep(time.Millisecond)

	_, err := s.Translate(ctx, guard, Request{
		Source: "hello", SourceLang: "en", TargetLang: "zh",
	}, func(string) {})
	assert.Error(t, err)
}
