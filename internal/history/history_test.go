package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/akumauu/ciallo/internal/cancel"
	"github.com/stretchr/testify/require"
)

func openTestBatcher(t *testing.T, flushMS int) *Batcher {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	b, err := Open(path, flushMS, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestAppendFlushesOnTimer(t *testing.T) {
	b := openTestBatcher(t, 10)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	go b.Run(ctx)

	guard := cancel.NewGeneration().Issue()
	b.Append(guard, Record{TraceID: "t1", Source: "hello", Translated: "bonjour", At: time.Now()})

	require.Eventually(t, func() bool {
		records, err := b.List(0)
		return err == nil && len(records) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAppendFlushesImmediatelyAtMaxPending(t *testing.T) {
	b := openTestBatcher(t, int(time.Hour.Milliseconds())) // long enough that only the count trigger fires

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	go b.Run(ctx)

	guard := cancel.NewGeneration().Issue()
	for i := 0; i < maxPending; i++ {
		b.Append(guard, Record{TraceID: "t", Source: "line", At: time.Now()})
	}

	require.Eventually(t, func() bool {
		records, err := b.List(0)
		return err == nil && len(records) == maxPending
	}, time.Second, 5*time.Millisecond)
}

func TestAppendSkipsWhenGuardStale(t *testing.T) {
	b := openTestBatcher(t, 10)

	gen := cancel.NewGeneration()
	guard := gen.Issue()
	gen.CancelAndAdvance()

	b.Append(guard, Record{TraceID: "stale", Source: "dropped", At: time.Now()})

	records, err := b.List(0)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestListOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	b := openTestBatcher(t, 10)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	go b.Run(ctx)

	guard := cancel.NewGeneration().Issue()
	base := time.Now()
	b.Append(guard, Record{TraceID: "a", At: base})
	b.Append(guard, Record{TraceID: "b", At: base.Add(time.Second)})
	b.Append(guard, Record{TraceID: "c", At: base.Add(2 * time.Second)})

	require.Eventually(t, func() bool {
		records, err := b.List(0)
		return err == nil && len(records) == 3
	}, time.Second, 5*time.Millisecond)

	records, err := b.List(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "c", records[0].TraceID)
	require.Equal(t, "b", records[1].TraceID)
}

func TestCloseFlushesPendingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	b, err := Open(path, int(time.Hour.Milliseconds()), nil, nil)
	require.NoError(t, err)

	guard := cancel.NewGeneration().Issue()
	b.Append(guard, Record{TraceID: "final", At: time.Now()})

	require.NoError(t, b.Close())

	b2, err := Open(path, 300, nil, nil)
	require.NoError(t, err)
	defer b2.Close()

	records, err := b2.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "final", records[0].TraceID)
}
