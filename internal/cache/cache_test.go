package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/model"
)

func newClockedCache(t *testing.T, cfg config.CacheConfig) (*ResultCache, *time.Time) {
	t.Helper()
	c := New(cfg)
	now := time.Now()
	c.nowFunc = func() time.Time { return now }
	return c, &now
}

func TestCacheHitAndMiss(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	candidates := []model.Candidate{{Name: "Milk 2L", Retailer: "woolworths"}}

	_, ok := c.Get("woolworths", "milk", "2000")
	assert.False(t, ok)

	c.Put("woolworths", "milk", "2000", candidates)

	got, ok := c.Get("woolworths", "milk", "2000")
	require.True(t, ok)
	assert.Equal(t, candidates, got)
}

func TestCacheKeyNormalizesQuery(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	c.Put("woolworths", "  Milk  ", "2000", []model.Candidate{{Name: "Milk"}})

	_, ok := c.Get("woolworths", "milk", "2000")
	assert.True(t, ok)
}

func TestCacheKeyIsolation(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	c.Put("woolworths", "milk", "2000", []model.Candidate{{Name: "Milk"}})

	_, ok := c.Get("coles", "milk", "2000")
	assert.False(t, ok, "retailers must not share entries")

	_, ok = c.Get("woolworths", "milk", "3000")
	assert.False(t, ok, "postcodes must not share entries")
}

func TestCacheStoresEmptyResults(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	c.Put("woolworths", "unicorn food", "2000", []model.Candidate{})

	got, ok := c.Get("woolworths", "unicorn food", "2000")
	assert.True(t, ok, "a known-empty result is still a hit")
	assert.Empty(t, got)
}

func TestCacheExpiry(t *testing.T) {
	c, now := newClockedCache(t, config.CacheConfig{TTLMinutes: 10})
	c.Put("woolworths", "milk", "2000", []model.Candidate{{Name: "Milk"}})

	*now = now.Add(9 * time.Minute)
	_, ok := c.Get("woolworths", "milk", "2000")
	assert.True(t, ok)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("woolworths", "milk", "2000")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is dropped on read")
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{MaxEntries: 3})
	for i := 0; i < 3; i++ {
		c.Put("woolworths", fmt.Sprintf("item-%d", i), "2000", nil)
	}

	// Touch item-0 so item-1 becomes the eviction victim.
	_, ok := c.Get("woolworths", "item-0", "2000")
	require.True(t, ok)

	c.Put("woolworths", "item-3", "2000", nil)

	_, ok = c.Get("woolworths", "item-1", "2000")
	assert.False(t, ok)
	_, ok = c.Get("woolworths", "item-0", "2000")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestCachePutOverwrites(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	c.Put("woolworths", "milk", "2000", []model.Candidate{{Name: "Old"}})
	c.Put("woolworths", "milk", "2000", []model.Candidate{{Name: "New"}})

	got, ok := c.Get("woolworths", "milk", "2000")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "New", got[0].Name)
	assert.Equal(t, 1, c.Len())
}

func TestCacheClear(t *testing.T) {
	c, _ := newClockedCache(t, config.CacheConfig{})
	c.Put("woolworths", "milk", "2000", nil)
	c.Put("coles", "bread", "3000", nil)

	c.Clear()

	assert.Zero(t, c.Len())
	_, ok := c.Get("woolworths", "milk", "2000")
	assert.False(t, ok)
}

func TestCacheSnapshot(t *testing.T) {
	c, now := newClockedCache(t, config.CacheConfig{TTLMinutes: 5, MaxEntries: 10})
	c.Put("woolworths", "milk", "2000", nil)
	c.Put("woolworths", "bread", "2000", nil)

	*now = now.Add(6 * time.Minute)
	c.Put("woolworths", "eggs", "2000", nil)

	stats := c.Snapshot()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 10, stats.MaxEntries)
	assert.Equal(t, 2, stats.Expired)
	assert.Equal(t, 5*time.Minute, stats.TTL)
}
