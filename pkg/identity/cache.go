package identity

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

const cacheName = "identity"

// CachedStore fronts a Store with a short-lived LRU keyed by email so the
// token channel does not hit the database on every request. Writes through
// this store evict the affected entry; writes made elsewhere are visible
// once the entry expires.
//
// Every write bumps gen before and after it reaches the store. A lookup only
// fills the cache when gen did not move while it was loading, so a row read
// during a write is never cached.
type CachedStore struct {
	Store
	cache   *expirable.LRU[string, *Record]
	metrics *observability.Metrics

	mu  sync.Mutex
	gen uint64
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps store with a cache of size entries living ttl
func NewCachedStore(store Store, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{
		Store:   store,
		cache:   expirable.NewLRU[string, *Record](size, nil, ttl),
		metrics: metrics,
	}
}

// GetByEmail serves from the cache when possible
func (c *CachedStore) GetByEmail(ctx context.Context, email string) (*Record, error) {
	key := auth.NormalizeEmail(email)
	if record, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit(cacheName)
		return record.Clone(), nil
	}
	c.metrics.RecordCacheMiss(cacheName)

	c.mu.Lock()
	start := c.gen
	c.mu.Unlock()

	record, err := c.Store.GetByEmail(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == start {
		c.cache.Add(key, record.Clone())
	}
	c.mu.Unlock()
	return record, nil
}

func (c *CachedStore) Apply(ctx context.Context, id int64, changes Changes) (*Record, error) {
	c.invalidate(id)
	defer c.invalidate(id)
	return c.Store.Apply(ctx, id, changes)
}

func (c *CachedStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	c.invalidate(id)
	defer c.invalidate(id)
	return c.Store.TouchLastLogin(ctx, id, at)
}

func (c *CachedStore) SetProfileID(ctx context.Context, id int64, profileID string) error {
	c.invalidate(id)
	defer c.invalidate(id)
	return c.Store.SetProfileID(ctx, id, profileID)
}

// Purge drops every cached entry
func (c *CachedStore) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

// invalidate bumps the generation and removes every entry for id
func (c *CachedStore) invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, key := range c.cache.Keys() {
		if record, ok := c.cache.Peek(key); ok && record.ID == id {
			c.cache.Remove(key)
		}
	}
}
