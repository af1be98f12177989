package fetcher

import (
	"sync"
	"time"

	"quotefetch/internal/quote"
)

type cacheKey struct {
	method   string
	symbol   string
	currency string
}

type cacheEntry struct {
	expiresAt time.Time
	rec       quote.Record
}

// Cache remembers successful records per method and symbol for a TTL.
// Hits are served without touching any source; only misses dispatch.
// Records are keyed by target currency as well, so changing the
// session currency never serves values converted for another one.
type Cache struct {
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[cacheKey]cacheEntry
}

// NewCache builds a cache with the given TTL. A zero or negative TTL
// disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{TTL: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.TTL > 0 }

// get returns a copy of the cached record, if fresh.
func (c *Cache) get(method, symbol, currency string, now time.Time) (quote.Record, bool) {
	if !c.enabled() {
		return nil, false
	}
	key := cacheKey{method: method, symbol: symbol, currency: currency}
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || now.After(e.expiresAt) {
		return nil, false
	}
	return e.rec.Clone(), true
}

// put stores copies of the successful records in res. Failed records
// are not cached; their sources get another chance next fetch. A key
// that is still fresh keeps its entry and expiry untouched: records
// served from the cache pass back through here, and renewing them
// would turn the TTL into an idle timeout that never refetches under
// steady traffic.
func (c *Cache) put(method, currency string, res quote.Result, now time.Time) {
	if !c.enabled() {
		return
	}
	expiry := now.Add(c.TTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[cacheKey]cacheEntry, len(res))
	}
	for sym, rec := range res {
		if !rec.Success() {
			continue
		}
		key := cacheKey{method: method, symbol: sym, currency: currency}
		if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
			continue
		}
		c.items[key] = cacheEntry{expiresAt: expiry, rec: rec.Clone()}
	}
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		for k, e := range c.items {
			if now.After(e.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			delete(c.items, k)
		}
	}
}
