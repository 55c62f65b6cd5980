// Package history implements the translation history batcher: a
// debounced writer that flushes queued records into a persistent bbolt
// store every history.flush_ms or on 32 pending records, whichever comes
// first, plus a retention sweep that deletes records past a configured
// age. Grounded on the periodic-flush loop in
// MrWong99-glyphoxa/internal/session/consolidator.go (a ticker-driven
// background goroutine plus an immediate FlushNow entry point, both
// serialized behind the same mutex), adapted from a fixed-interval-only
// flush to the flush_ms-or-32-pending dual trigger this domain needs.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/akumauu/ciallo/internal/cancel"
	"github.com/akumauu/ciallo/internal/metrics"
)

// maxPending is the record-count flush trigger: the batcher flushes
// every flush_ms or once this many records are queued, whichever comes
// first.
const maxPending = 32

var bucketName = []byte("history")

// Record is one completed translation, persisted for the `get_history`
// UI query.
type Record struct {
	TraceID    string    `json:"trace_id"`
	Mode       string    `json:"mode"`
	Source     string    `json:"source"`
	Translated string    `json:"translated"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	FromCache  bool      `json:"from_cache"`
	At         time.Time `json:"at"`
}

// Batcher debounces history writes: Append enqueues a record without
// blocking on disk I/O, and a background loop flushes on a timer or once
// the pending queue reaches maxPending.
type Batcher struct {
	db      *bolt.DB
	flushMS time.Duration
	log     *slog.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	pending []Record
	seq     uint64

	flushNow chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Open opens (creating if absent) the bbolt database at path and returns
// a Batcher configured with the given flush interval.
func Open(path string, flushMS int, m *metrics.Registry, log *slog.Logger) (*Batcher, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create bucket: %w", err)
	}

	if flushMS <= 0 {
		flushMS = 300
	}
	if log == nil {
		log = slog.Default()
	}

	return &Batcher{
		db:       db,
		flushMS:  time.Duration(flushMS) * time.Millisecond,
		log:      log,
		metrics:  m,
		flushNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Close stops the flush loop, flushing any pending records first, and
// closes the underlying database.
func (b *Batcher) Close() error {
	b.Stop()
	_ = b.flush(context.Background())
	return b.db.Close()
}

// Run drives the debounced flush loop until ctx is cancelled or Stop is
// called.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushMS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			if err := b.flush(ctx); err != nil {
				b.log.Warn("history: periodic flush failed", "error", err)
			}
		case <-b.flushNow:
			if err := b.flush(ctx); err != nil {
				b.log.Warn("history: immediate flush failed", "error", err)
			}
		}
	}
}

// Stop halts the flush loop. Safe to call multiple times.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Append queues rec for the next flush, gated on guard so a cancelled or
// stale wake cycle never writes history. It triggers an immediate flush
// once the queue reaches maxPending.
func (b *Batcher) Append(guard cancel.Guard, rec Record) {
	if !guard.ShouldContinue() {
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, rec)
	full := len(b.pending) >= maxPending
	b.mu.Unlock()

	if full {
		select {
		case b.flushNow <- struct{}{}:
		default:
		}
	}
}

// flush writes every currently pending record to the bbolt store.
func (b *Batcher) flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var span *metrics.Span
	if b.metrics != nil {
		span = b.metrics.TimingSpan("t_history_batch_write")
		defer span.Stop()
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for i := range batch {
			b.mu.Lock()
			b.seq++
			key := encodeKey(b.seq)
			b.mu.Unlock()

			payload, err := json.Marshal(batch[i])
			if err != nil {
				return fmt.Errorf("history: marshal record: %w", err)
			}
			if err := bucket.Put(key, payload); err != nil {
				return fmt.Errorf("history: put record: %w", err)
			}
		}
		return nil
	})
}

// List returns up to limit most recent records, newest first. A limit of
// 0 or less returns every stored record.
func (b *Batcher) List(limit int) ([]Record, error) {
	var records []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		return bucket.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("history: unmarshal record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].At.After(records[j].At) })

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CleanupOlderThan deletes every record whose At is older than cutoff
// and returns how many were removed. Intended to run periodically (e.g.
// once a day) so the history store doesn't grow without bound.
func (b *Batcher) CleanupOlderThan(cutoff time.Time) (int, error) {
	var stale [][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		return bucket.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("history: unmarshal record: %w", err)
			}
			if rec.At.Before(cutoff) {
				key := append([]byte(nil), k...)
				stale = append(stale, key)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return fmt.Errorf("history: delete stale record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.log.Info("history: cleanup removed stale records", "count", len(stale))
	return len(stale), nil
}

func encodeKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[7-i] = byte(seq >> (8 * i))
	}
	return key
}
