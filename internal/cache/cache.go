// Package cache provides a thread-safe TTL+LRU cache for retailer search
// results. Empty result sets are cached too, so a query with no matches
// does not hammer the retailer on every retry.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/model"
)

const defaultMaxEntries = 1000

type entry struct {
	key        string
	candidates []model.Candidate
	expiresAt  time.Time
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	Size       int           `json:"size"`
	MaxEntries int           `json:"maxEntries"`
	Expired    int           `json:"expired"`
	TTL        time.Duration `json:"ttl"`
}

// ResultCache caches search results keyed by retailer, normalized query
// and postcode.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = least recently used
	ttl        time.Duration
	maxEntries int
	nowFunc    func() time.Time
}

// New creates a ResultCache from config.
func New(cfg config.CacheConfig) *ResultCache {
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &ResultCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Key builds the cache key. The query is lowercased and trimmed so "Milk"
// and " milk " share an entry.
func Key(retailer, query, postcode string) string {
	return retailer + ":" + strings.ToLower(strings.TrimSpace(query)) + ":" + strings.TrimSpace(postcode)
}

// Get returns the cached candidates and true on a hit. A cached empty
// slice is a hit: ok distinguishes "known no matches" from "not cached".
func (c *ResultCache) Get(retailer, query, postcode string) ([]model.Candidate, bool) {
	key := Key(retailer, query, postcode)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.nowFunc().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToBack(el)
	return e.candidates, true
}

// Put stores candidates for the key, overwriting any existing entry.
func (c *ResultCache) Put(retailer, query, postcode string, candidates []model.Candidate) {
	key := Key(retailer, query, postcode)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.nowFunc().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.candidates = candidates
		e.expiresAt = expiresAt
		c.order.MoveToBack(el)
		return
	}

	c.entries[key] = c.order.PushBack(&entry{
		key:        key,
		candidates: candidates,
		expiresAt:  expiresAt,
	})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns cache statistics.
func (c *ResultCache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	expired := 0
	for el := c.order.Front(); el != nil; el = el.Next() {
		if now.After(el.Value.(*entry).expiresAt) {
			expired++
		}
	}
	return Stats{
		Size:       len(c.entries),
		MaxEntries: c.maxEntries,
		Expired:    expired,
		TTL:        c.ttl,
	}
}
