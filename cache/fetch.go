package cache

import (
	"context"
	"log/slog"

	"github.com/IvanBrykalov/viewcache/internal/singleflight"
)

// flightKey identifies one sub-request. The ticket pins it to one entry
// state, so requests issued after a flush never join a flight started
// before it.
type flightKey struct {
	t      ticket
	kind   RequestKind
	offset int
	length int
	keys   string
}

// flightResult carries whichever field the request kind needs.
type flightResult[E comparable] struct {
	flag     bool
	count    int
	children []E
	props    PropertiesResult
}

type flight[E comparable] = singleflight.Call[flightResult[E]]

// enterLocked resolves the key for r and returns its data slot, creating
// and touching it as needed. c.mu must be held.
func (c *Cache[E]) enterLocked(r Request[E]) (handle, error) {
	if c.closed {
		return sentinel, ErrClosed
	}
	root := resolveRoot(c.roots, r.Input, r.Path)
	h, created := c.store.getOrCreate(newKey(root, r.Node, r.Input, r.Path), c.active)
	if created {
		c.opt.Metrics.Size(c.store.Len())
	}
	return h, nil
}

// joinLocked returns the flight for fk, starting it if nobody else has,
// and reports whether this call started it. fetch runs on its own
// goroutine; merge runs under c.mu only when the entry is still in the
// state the ticket captured. c.mu must be held.
func (c *Cache[E]) joinLocked(
	fk flightKey,
	fetch func(ctx context.Context) (flightResult[E], error),
	merge func(e *entry[E], res flightResult[E]),
) (*flight[E], bool) {
	call, leader := c.flights.Join(fk)
	if !leader {
		c.stats.coalesced.Add(1)
		return call, false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.callSource(fk.kind, fetch)
		c.mu.Lock()
		if err == nil {
			c.writeBackLocked(fk, func(e *entry[E]) { merge(e, res) })
		}
		c.unpendLocked(fk.t, call)
		c.mu.Unlock()
		c.flights.Resolve(fk, call, res, err)
	}()
	return call, true
}

// writeBackLocked applies fn to the ticket's entry if the ticket is still
// valid, and reports whether it did. A written entry becomes the most
// recently used. c.mu must be held.
func (c *Cache[E]) writeBackLocked(fk flightKey, fn func(e *entry[E])) bool {
	if !c.store.valid(fk.t) {
		c.stats.staleWrites.Add(1)
		c.opt.Metrics.StaleWrite(fk.kind)
		c.log.Debug("cache discard stale result",
			slog.String("kind", fk.kind.String()),
			slog.Int("offset", fk.offset),
			slog.Int("length", fk.length),
		)
		return false
	}
	fn(&c.store.slots[fk.t.h].data)
	c.store.touch(fk.t.h)
	c.log.Debug("cache save",
		slog.String("kind", fk.kind.String()),
		slog.Int("offset", fk.offset),
		slog.Int("length", fk.length),
	)
	return true
}

// callSource runs one source call under the cache lifetime context,
// bounded by the fetch semaphore.
func (c *Cache[E]) callSource(
	kind RequestKind,
	fetch func(ctx context.Context) (flightResult[E], error),
) (flightResult[E], error) {
	if c.sem != nil {
		if err := c.sem.Acquire(c.life, 1); err != nil {
			return flightResult[E]{}, ErrClosed
		}
		defer c.sem.Release(1)
	}
	c.stats.sourceCalls.Add(1)
	c.opt.Metrics.SourceCall(kind)
	return fetch(c.life)
}

func (c *Cache[E]) hit(kind RequestKind, r Request[E]) {
	c.stats.hits.Add(1)
	c.opt.Metrics.Hit(kind)
	c.log.Debug("cache hit", slog.String("kind", kind.String()), slog.Any("input", r.Input), slog.Int("depth", len(r.Path)))
}

func (c *Cache[E]) miss(kind RequestKind, r Request[E]) {
	c.stats.misses.Add(1)
	c.opt.Metrics.Miss(kind)
	c.log.Debug("cache miss", slog.String("kind", kind.String()), slog.Any("input", r.Input), slog.Int("depth", len(r.Path)))
}

// HasChildren reports whether the element has children, asking the source
// only when the answer is not cached.
func (c *Cache[E]) HasChildren(ctx context.Context, r Request[E]) (bool, error) {
	if r.Node == nil {
		return false, ErrMisdirected
	}
	c.mu.Lock()
	h, err := c.enterLocked(r)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if e := &c.store.slots[h].data; e.hasChildren.ok {
		v := e.hasChildren.v
		c.hit(KindHasChildren, r)
		c.mu.Unlock()
		return v, nil
	}
	c.miss(KindHasChildren, r)

	node, input, path := r.Node, r.Input, r.Path.Clone()
	call, _ := c.joinLocked(
		flightKey{t: c.store.ticket(h), kind: KindHasChildren},
		func(ctx context.Context) (flightResult[E], error) {
			v, err := node.HasChildren(ctx, input, path)
			return flightResult[E]{flag: v}, err
		},
		func(e *entry[E], res flightResult[E]) { e.hasChildren = some(res.flag) },
	)
	c.mu.Unlock()

	res, err := call.Wait(ctx)
	return res.flag, err
}

// ChildCount returns the number of children of the element, asking the
// source only when the count is not cached.
func (c *Cache[E]) ChildCount(ctx context.Context, r Request[E]) (int, error) {
	if r.Node == nil {
		return 0, ErrMisdirected
	}
	c.mu.Lock()
	h, err := c.enterLocked(r)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if e := &c.store.slots[h].data; e.childCount.ok {
		v := e.childCount.v
		c.hit(KindChildCount, r)
		c.mu.Unlock()
		return v, nil
	}
	c.miss(KindChildCount, r)

	node, input, path := r.Node, r.Input, r.Path.Clone()
	call, _ := c.joinLocked(
		flightKey{t: c.store.ticket(h), kind: KindChildCount},
		func(ctx context.Context) (flightResult[E], error) {
			n, err := node.ChildCount(ctx, input, path)
			if err == nil && n < 0 {
				err = ErrInvalidResult
			}
			return flightResult[E]{count: n}, err
		},
		func(e *entry[E], res flightResult[E]) { e.childCount = some(res.count) },
	)
	c.mu.Unlock()

	res, err := call.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return res.count, nil
}

// Entry returns a copy of the cached entry for r without creating or
// touching it.
func (c *Cache[E]) Entry(r Request[E]) (Snapshot[E], bool) {
	if r.Node == nil {
		return Snapshot[E]{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	root := resolveRoot(c.roots, r.Input, r.Path)
	k := newKey(root, r.Node, r.Input, r.Path)
	h, ok := c.store.lookup(&k)
	if !ok {
		return Snapshot[E]{}, false
	}
	sl := &c.store.slots[h]
	return newSnapshot(&sl.key, &sl.data), true
}
