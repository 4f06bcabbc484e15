package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/xuecangming/file-manager/internal/common/types"
)

// QueryNamespace prefixes keys built from query types so they never collide
// with filesystem paths.
const QueryNamespace = "query://"

// ProduceFunc loads a listing on a cache miss.
type ProduceFunc func(ctx context.Context) ([]types.MediaInfo, error)

// Coordinator guards a Store with a single mutex and adds path-aware
// invalidation and read-through loading.
type Coordinator struct {
	mu    sync.Mutex
	store *Store
}

// NewCoordinator creates a new Coordinator. A nil store gets the defaults.
func NewCoordinator(store *Store) *Coordinator {
	if store == nil {
		store = NewStore(DefaultCapacity, DefaultTTL)
	}
	return &Coordinator{store: store}
}

// NormalizePath trims whitespace and trailing separators. The root keeps
// its slash.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && p != "" {
		return "/"
	}
	return trimmed
}

// PathKey returns the cache key for a directory listing.
func PathKey(path string) string {
	return NormalizePath(path)
}

// QueryKey returns the cache key for a query-type listing.
func QueryKey(q types.QueryType) string {
	return QueryNamespace + string(q)
}

// Get returns a copy of the cached listing for key.
func (c *Coordinator) Get(key string) ([]types.MediaInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// Put stores data under key.
func (c *Coordinator) Put(key string, data []types.MediaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Put(key, data)
}

// Remove drops the listing for path only.
func (c *Coordinator) Remove(path string) {
	key := PathKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
}

// Invalidate removes the listing for path and every key that starts with
// the normalized path.
func (c *Coordinator) Invalidate(path string) {
	key := PathKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
	c.store.InvalidatePrefix(key)
}

// InvalidateTree removes the listing for path and the listings of every
// directory below it. Siblings sharing a name prefix ("/a/bc" for "/a/b")
// are kept.
func (c *Coordinator) InvalidateTree(path string) {
	key := PathKey(path)
	sub := key + "/"
	if key == "/" {
		sub = key
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(key)
	c.store.InvalidatePrefix(sub)
}

// InvalidateQueries drops every query-type listing.
func (c *Coordinator) InvalidateQueries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.InvalidatePrefix(QueryNamespace)
}

// ClearAll drops every listing.
func (c *Coordinator) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

// Stats returns a snapshot of the store counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Stats()
}

// GetOrPut returns the cached listing for key, or runs produce and caches
// its result. The lookup and the store are separate critical sections and
// produce runs unlocked, so concurrent misses on one key may each call
// produce; the last result written wins. Errors from produce are returned
// as is and nothing is cached.
func (c *Coordinator) GetOrPut(ctx context.Context, key string, produce ProduceFunc) ([]types.MediaInfo, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}

	data, err := produce(ctx)
	if err != nil {
		return nil, err
	}

	c.Put(key, data)
	return cloneMedia(data), nil
}
