package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

// KeyPrefix prefixes every cache key.
const KeyPrefix = "location_data:"

// errFetchAbandoned is reported to waiters when the fetch panicked.
var errFetchAbandoned = errors.New("cache: fetch abandoned")

// Cache provides in-memory caching with TTL and request collapsing (singleflight).
// Expired entries are evicted lazily when read.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	ttl      time.Duration
	inflight map[string]*inflightRequest
	now      func() time.Time
}

type cacheEntry struct {
	result    *types.AggregatedResult
	expiresAt time.Time
}

type inflightRequest struct {
	done   chan struct{}
	result *types.AggregatedResult
	err    error
}

// EntryInfo describes a live cache entry.
type EntryInfo struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Degraded  bool      `json:"degraded"`
}

// NewCache creates a new Cache with the specified TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries:  make(map[string]*cacheEntry),
		ttl:      ttl,
		inflight: make(map[string]*inflightRequest),
		now:      time.Now,
	}
}

// TTL returns the time-to-live applied to new entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Key derives the cache key of a query. The query must already be
// normalized; the key covers location, sorted deduplicated interests,
// budget, travelers and duration, and is stable across processes.
func Key(q types.Query) string {
	interests := slices.Clone(q.Interests)
	slices.Sort(interests)
	interests = slices.Compact(interests)

	canonical := strings.Join([]string{
		strings.TrimSpace(q.Location),
		strings.Join(interests, ","),
		strconv.FormatFloat(q.Budget, 'f', -1, 64),
		strconv.Itoa(q.Travelers),
		strconv.Itoa(q.Duration),
	}, "|")

	return fmt.Sprintf("%s%016x", KeyPrefix, xxhash.Sum64String(canonical))
}

// GetOrFetch retrieves from cache or executes the fetch function.
// Concurrent requests for the same key are collapsed (singleflight pattern):
// only the first caller runs fetch, later callers wait for its result or
// for their own ctx to end.
// Returns the result and a boolean indicating if it was a cache hit.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func() (*types.AggregatedResult, error)) (*types.AggregatedResult, bool, error) {
	c.mu.Lock()

	// Check cache
	if entry, ok := c.entries[key]; ok {
		if c.now().Before(entry.expiresAt) {
			c.mu.Unlock()
			return entry.result, true, nil
		}
		delete(c.entries, key)
	}

	// Check for existing in-flight request
	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.result, false, inflight.err
		case <-ctx.Done():
			return nil, false, context.Cause(ctx)
		}
	}

	// Create new in-flight request
	inflight := &inflightRequest{
		done: make(chan struct{}),
	}
	c.inflight[key] = inflight
	c.mu.Unlock()

	finished := false
	defer func() {
		if finished {
			return
		}
		// fetch panicked; release waiters before the panic propagates.
		c.mu.Lock()
		inflight.err = errFetchAbandoned
		delete(c.inflight, key)
		c.mu.Unlock()
		close(inflight.done)
	}()

	// Execute fetch (outside of lock)
	result, err := fetch()
	finished = true

	// Store result
	c.mu.Lock()
	inflight.result = result
	inflight.err = err
	if err == nil && result != nil {
		c.entries[key] = &cacheEntry{
			result:    result,
			expiresAt: c.now().Add(c.ttl),
		}
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	// Notify all waiters
	close(inflight.done)

	return result, false, err
}

// Get returns a live entry without fetching.
func (c *Cache) Get(key string) (*types.AggregatedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

// Invalidate removes a specific key from the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries from the cache and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
	return n
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats lists the live entries ordered by key.
func (c *Cache) Stats() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	infos := make([]EntryInfo, 0, len(c.entries))
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			continue
		}
		infos = append(infos, EntryInfo{
			Key:       key,
			ExpiresAt: entry.expiresAt,
			Degraded:  entry.result.Degraded,
		})
	}
	slices.SortFunc(infos, func(a, b EntryInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return infos
}
