package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "translations.db")
	c, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeEntry(t *testing.T, c *Cache, key [32]byte, entry Entry) {
	t.Helper()
	require.NoError(t, c.l2.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key[:], encodeEntry(entry))
	}))
}

func TestKeyIsDeterministicAndDistinguishesInputs(t *testing.T) {
	a := Key("en", "zh", "v1", "hello")
	b := Key("en", "zh", "v1", "hello")
	c := Key("en", "zh", "v2", "hello")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSetThenGetHitsL1(t *testing.T) {
	c := openTestCache(t)
	key := Key("en", "zh", "v1", "hello")

	require.NoError(t, c.Set(key, "你好"))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "你好", got)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := openTestCache(t)
	_, ok := c.Get(Key("en", "zh", "v1", "missing"))
	assert.False(t, ok)
}

func TestGetPromotesL2HitIntoL1(t *testing.T) {
	c := openTestCache(t)
	key := Key("en", "zh", "v1", "promote me")

	require.NoError(t, c.Set(key, "提升我"))
	// Drop the L1 copy to simulate what a fresh process sees after
	// restart with a cold L1 but a warm L2.
	c.l1.Delete(string(key[:]))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "提升我", got)

	v, found := c.l1.Get(string(key[:]))
	require.True(t, found, "Get must promote the L2 hit back into L1")
	assert.Equal(t, "提升我", v)
}

func TestGetTreatsExpiredL2EntryAsMiss(t *testing.T) {
	c := openTestCache(t)
	key := Key("en", "zh", "v1", "stale")

	writeEntry(t, c, key, Entry{Translated: "旧的", WrittenAt: time.Now().Add(-2 * L2TTL)})

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCleanupL2RemovesExpiredEntries(t *testing.T) {
	c := openTestCache(t)
	freshKey := Key("en", "zh", "v1", "fresh")
	staleKey := Key("en", "zh", "v1", "stale")

	require.NoError(t, c.Set(freshKey, "新"))
	writeEntry(t, c, staleKey, Entry{Translated: "旧", WrittenAt: time.Now().Add(-2 * L2TTL)})

	require.NoError(t, c.CleanupL2())

	_, freshOK := c.Get(freshKey)
	assert.True(t, freshOK)

	_, staleOK := c.Get(staleKey)
	assert.False(t, staleOK, "cleanup must have deleted the stale L2 record")
}
