package cache

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/viewcache/internal/singleflight"
	"github.com/IvanBrykalov/viewcache/policy"
	"github.com/IvanBrykalov/viewcache/policy/automatic"
)

// Cache is a hierarchical view-model cache in front of a slow tree source.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every read, write and flush of the store runs under one mutex. Source
// calls run on their own goroutines and re-enter the mutex to merge their
// results, guarded by the entry's flush version.
type Cache[E comparable] struct {
	// ---- guarded by mu ----
	mu       sync.Mutex
	store    *store[E]
	roots    []rootState[E]
	policies []policy.Policy[E]
	active   policy.Policy[E]
	closed   bool

	// in-flight sub-requests, coalesced by entry state and missing range
	flights singleflight.Group[flightKey, flightResult[E]]
	pending map[ticket][]pendingRun[E] // children flights by entry state
	sem     *semaphore.Weighted // nil = unbounded
	wg      sync.WaitGroup      // running sub-requests

	// life is the context of every source call; Close cancels it.
	life   context.Context
	cancel context.CancelFunc

	opt   Options[E]
	log   *slog.Logger
	stats stats
}

// New constructs a cache with the provided Options.
// Defaults:
//   - Capacity <= 0  -> DefaultCapacity (at least 2)
//   - empty Policies -> automatic
//   - nil Logger     -> discard
//   - nil Metrics    -> NoopMetrics
func New[E comparable](opt Options[E]) *Cache[E] {
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	// an entry and its root marker must fit together
	if opt.Capacity < 2 {
		opt.Capacity = 2
	}
	if len(opt.Policies) == 0 {
		opt.Policies = []policy.Policy[E]{automatic.New[E]()}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	life, cancel := context.WithCancel(context.Background())
	c := &Cache[E]{
		store:    newStore[E](opt.Capacity),
		policies: append([]policy.Policy[E](nil), opt.Policies...),
		active:   opt.Policies[0],
		life:     life,
		cancel:   cancel,
		opt:      opt,
		log:      opt.Logger.With(slog.String("component", "viewcache")),
	}
	if opt.MaxConcurrentFetches > 0 {
		c.sem = semaphore.NewWeighted(int64(opt.MaxConcurrentFetches))
	}
	c.store.onRelease = c.released
	return c
}

// released runs for every slot leaving the store, under c.mu.
func (c *Cache[E]) released(sl *slot[E], reason EvictReason) {
	c.stats.evictions.Add(1)
	c.opt.Metrics.Evict(reason)
	if c.opt.OnEvict != nil {
		c.opt.OnEvict(reason)
	}
	if sl.kind == kindRootMarker {
		c.rootClearedLocked(sl.root)
	}
}

// Len returns the number of occupied slots (entries and markers).
func (c *Cache[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Stats returns a point-in-time copy of the cache statistics.
func (c *Cache[E]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats.snapshot()
	s.Slots = c.store.Len()
	s.DataEntries = c.store.byKind[kindData]
	s.FlushMarkers = c.store.byKind[kindFlushMarker]
	s.RootMarkers = c.store.byKind[kindRootMarker]
	return s
}

// Policies returns the registered update policies.
func (c *Cache[E]) Policies() []policy.Policy[E] {
	return append([]policy.Policy[E](nil), c.policies...)
}

// ActivePolicy returns the policy currently turning events into testers.
func (c *Cache[E]) ActivePolicy() policy.Policy[E] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetActivePolicy selects a registered policy by ID. The cache keeps its
// data; every attached root is asked to redraw.
func (c *Cache[E]) SetActivePolicy(id string) error {
	c.mu.Lock()
	var next policy.Policy[E]
	for _, p := range c.policies {
		if p.ID() == id {
			next = p
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return ErrUnknownPolicy
	}
	changed := c.active.ID() != next.ID()
	c.active = next
	roots := c.attachedLocked()
	c.mu.Unlock()

	if changed {
		c.log.Info("update policy changed", slog.String("policy", id))
		c.redraw(roots)
	}
	return nil
}

// Close cancels in-flight source calls, waits for their goroutines and
// rejects further requests with ErrClosed. Close is idempotent.
func (c *Cache[E]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
