// Package cache implements a bounded, reference-counted resource cache.
//
// Exactly one loader runs per missing key; concurrent requesters of the same
// key wait for it and then observe its result. A resource is evicted only when
// its reference count drops to zero.
package cache

import (
	"sync"

	"github.com/llifei/db2023/src/pkg/assert"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/metrics"
)

// Loader produces the resource for a missing key. It runs outside the cache
// lock, so loads of different keys proceed in parallel.
type Loader[K comparable, T any] func(key K) (T, error)

// Evictor is called, under the cache lock, when a resource leaves the cache.
type Evictor[K comparable, T any] func(key K, value T)

type entry[T any] struct {
	value T
	refs  int
}

type Cache[K comparable, T any] struct {
	maxResident int
	load        Loader[K, T]
	evict       Evictor[K, T]

	mu       sync.Mutex
	entries  map[K]*entry[T]
	inFlight map[K]chan struct{}
	resident int
}

// New creates a cache holding at most maxResident resources. Zero means
// unbounded.
func New[K comparable, T any](
	maxResident int,
	load Loader[K, T],
	evict Evictor[K, T],
) *Cache[K, T] {
	assert.Assert(maxResident >= 0, "negative cache capacity: %d", maxResident)

	return &Cache[K, T]{
		maxResident: maxResident,
		load:        load,
		evict:       evict,
		entries:     make(map[K]*entry[T]),
		inFlight:    make(map[K]chan struct{}),
	}
}

// Get returns the resource for key and takes a reference on it. Every
// successful Get must be paired with a Release.
func (c *Cache[K, T]) Get(key K) (T, error) {
	var done chan struct{}

	for {
		c.mu.Lock()

		if wait, ok := c.inFlight[key]; ok {
			c.mu.Unlock()
			<-wait

			continue
		}

		if e, ok := c.entries[key]; ok {
			e.refs++
			c.mu.Unlock()
			metrics.Inc(metrics.Get().CacheHits)

			return e.value, nil
		}

		if c.maxResident > 0 && c.resident == c.maxResident {
			c.mu.Unlock()

			var zero T
			return zero, common.ErrCacheFull
		}

		c.resident++
		done = make(chan struct{})
		c.inFlight[key] = done
		c.mu.Unlock()

		break
	}

	metrics.Inc(metrics.Get().CacheMisses)
	value, err := c.load(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)

	if err != nil {
		c.resident--

		var zero T
		return zero, err
	}

	c.entries[key] = &entry[T]{value: value, refs: 1}

	return value, nil
}

// Release drops one reference. The last reference evicts the resource.
func (c *Cache[K, T]) Release(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	assert.Assert(ok, "releasing a resource that is not cached: %v", key)
	assert.Assert(e.refs > 0, "invalid reference count for %v", key)

	e.refs--
	if e.refs > 0 {
		return
	}

	delete(c.entries, key)
	c.resident--
	c.evict(key, e.value)
}

// Close evicts every resident resource regardless of its reference count.
func (c *Cache[K, T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		c.evict(key, e.value)
		delete(c.entries, key)
		c.resident--
	}
}

// Len reports the number of resident resources, in-flight loads included.
func (c *Cache[K, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resident
}

// Refs reports the reference count of key, zero when it is not cached.
func (c *Cache[K, T]) Refs(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.refs
	}

	return 0
}
