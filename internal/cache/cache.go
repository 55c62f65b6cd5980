// Package cache implements the two-tier translation cache: an L1
// in-memory TTL cache bounded to 512 entries, and an L2 persistent
// embedded key-value store with a 7-day TTL that promotes entries back
// into L1 on hit. Grounded on the go-cache usage in
// Zoex2304-notefiber-be-beta/internal/repository/memory/session_repository.go
// (cache.New(ttl, cleanupInterval), Set/Get/Delete) for L1; L2 uses
// go.etcd.io/bbolt, an embedded single-writer/multi-reader KV store not
// present verbatim in the retrieval pack but the idiomatic Go choice for
// a local, dependency-free, durable cache file — justified in the
// project's design ledger since no example repo needed a persistent
// local KV store.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	gocache "github.com/patrickmn/go-cache"
	bolt "go.etcd.io/bbolt"
)

// L1Capacity is the maximum number of entries L1 attempts to hold
// (go-cache has no hard eviction cap, so Capacity is enforced by the
// wrapper's insert path: it refuses new inserts past capacity rather
// than evicting, favoring already-cached translations staying warm).
const L1Capacity = 512

// L1TTL and L2TTL are the per-tier expirations.
const (
	L1TTL = 10 * time.Minute
	L2TTL = 7 * 24 * time.Hour
)

var bucketName = []byte("translations")

// Key computes the 32-byte cache key over (srcLang, tgtLang,
// glossaryVer, normalizedText).
func Key(srcLang, tgtLang, glossaryVer, normalizedText string) [32]byte {
	h := sha256.New()
	h.Write([]byte(srcLang))
	h.Write([]byte{0})
	h.Write([]byte(tgtLang))
	h.Write([]byte{0})
	h.Write([]byte(glossaryVer))
	h.Write([]byte{0})
	h.Write([]byte(normalizedText))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Entry is a cached translation result.
type Entry struct {
	Translated string
	WrittenAt  time.Time
}

// Cache is the two-tier cache: L1 first, falling through to L2 with
// promotion on hit.
type Cache struct {
	l1 *gocache.Cache
	l2 *bolt.DB
}

// Open constructs a Cache backed by an L1 in-memory store and an L2
// bbolt database at path. The caller owns Close.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{
		l1: gocache.New(L1TTL, L1TTL/2),
		l2: db,
	}, nil
}

// Close releases the L2 database handle.
func (c *Cache) Close() error {
	return c.l2.Close()
}

// Get looks up key, checking L1 first. An L2 hit is promoted into L1
// before returning. A stale L2 entry (WrittenAt older than L2TTL) is
// treated as a miss and left for the next cleanup pass to reap.
func (c *Cache) Get(key [32]byte) (string, bool) {
	k := string(key[:])
	if v, ok := c.l1.Get(k); ok {
		return v.(string), true
	}

	var entry Entry
	found := false
	_ = c.l2.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get(key[:])
		if raw == nil {
			return nil
		}
		e, ok := decodeEntry(raw)
		if !ok {
			return nil
		}
		entry = e
		found = true
		return nil
	})
	if !found {
		return "", false
	}
	if time.Since(entry.WrittenAt) > L2TTL {
		return "", false
	}

	c.l1.Set(k, entry.Translated, gocache.DefaultExpiration)
	return entry.Translated, true
}

// Set inserts translated under key into both tiers. L1 insertion is
// skipped once L1Capacity is reached so that already-warm entries are
// not displaced; L2 is unbounded and always written, since it is the
// tier a fresh process resumes from.
func (c *Cache) Set(key [32]byte, translated string) error {
	k := string(key[:])
	if c.l1.ItemCount() < L1Capacity {
		c.l1.Set(k, translated, gocache.DefaultExpiration)
	}

	entry := Entry{Translated: translated, WrittenAt: time.Now()}
	return c.l2.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put(key[:], encodeEntry(entry))
	})
}

// CleanupL2 removes every L2 entry older than L2TTL. Intended to run
// periodically from a background goroutine, never inline on a request
// path.
func (c *Cache) CleanupL2() error {
	var stale [][]byte
	err := c.l2.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(k, v []byte) error {
			entry, ok := decodeEntry(v)
			if !ok || time.Since(entry.WrittenAt) > L2TTL {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return c.l2.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// encodeEntry/decodeEntry use a minimal fixed-header binary layout
// (unix-nano timestamp followed by the raw translated text) rather than
// a general-purpose serialization library, since the record shape is a
// single string plus a timestamp and will never grow additional fields
// without a matching code change anyway.
func encodeEntry(e Entry) []byte {
	out := make([]byte, 8+len(e.Translated))
	binary.BigEndian.PutUint64(out[:8], uint64(e.WrittenAt.UnixNano()))
	copy(out[8:], e.Translated)
	return out
}

func decodeEntry(raw []byte) (Entry, bool) {
	if len(raw) < 8 {
		return Entry{}, false
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	return Entry{
		WrittenAt:  time.Unix(0, nanos),
		Translated: string(raw[8:]),
	}, true
}
