package sqlite

import (
	"container/list"
	"context"
	"sync"

	"github.com/couchcryptid/epicenter-detector/internal/domain"
)

// CachedStore keeps recently read or written results in memory in front of a
// Store. Writes go through to the store first, so a cached entry is never
// newer than the row behind it. Misses are not cached.
type CachedStore struct {
	*Store
	cache *resultCache
}

// NewCachedStore wraps store with an LRU cache of up to maxEntries results.
func NewCachedStore(store *Store, maxEntries int) *CachedStore {
	return &CachedStore{Store: store, cache: newResultCache(maxEntries)}
}

// Get serves id from the cache, falling back to the store.
func (c *CachedStore) Get(ctx context.Context, id string) (domain.AnalysisResult, error) {
	if result, ok := c.cache.get(id); ok {
		return result, nil
	}
	result, err := c.Store.Get(ctx, id)
	if err != nil {
		return result, err
	}
	c.cache.put(result)
	return result, nil
}

// Save stores result and caches it.
func (c *CachedStore) Save(ctx context.Context, result domain.AnalysisResult) error {
	return c.LoadBatch(ctx, []domain.AnalysisResult{result})
}

// LoadBatch stores results and caches them once the transaction commits.
func (c *CachedStore) LoadBatch(ctx context.Context, results []domain.AnalysisResult) error {
	if err := c.Store.LoadBatch(ctx, results); err != nil {
		return err
	}
	for _, r := range results {
		c.cache.put(r)
	}
	return nil
}

// resultCache is a mutex-guarded LRU keyed by result ID.
type resultCache struct {
	max   int
	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element
}

func newResultCache(maxEntries int) *resultCache {
	return &resultCache{
		max:   maxEntries,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *resultCache) get(id string) (domain.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return domain.AnalysisResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(domain.AnalysisResult), true
}

func (c *resultCache) put(result domain.AnalysisResult) {
	if c.max < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[result.ID]; ok {
		el.Value = result
		c.order.MoveToFront(el)
		return
	}
	c.items[result.ID] = c.order.PushFront(result)
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(domain.AnalysisResult).ID)
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
