package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent work for the same key K so that it runs at
// most once while in flight. Other concurrent callers wait for the shared
// result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and is
//     responsible for calling Resolve exactly once.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's work.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*Call[V]
}

// Call is one in-flight unit of work.
type Call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// Join returns the in-flight call for key, creating it if none exists.
// leader is true for the caller that created the call; that caller must
// eventually Resolve it.
func (g *Group[K, V]) Join(key K) (c *Call[V], leader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.m == nil {
		g.m = make(map[K]*Call[V])
	}
	if c, ok := g.m[key]; ok {
		return c, false
	}
	c = &Call[V]{done: make(chan struct{})}
	g.m[key] = c
	return c, true
}

// Resolve publishes the result of c, wakes its waiters and removes the
// in-flight marker for key. Only the leader calls it.
func (g *Group[K, V]) Resolve(key K, c *Call[V], v V, err error) {
	c.val, c.err = v, err
	close(c.done)

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
}

// Len returns the number of calls currently in flight.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Wait blocks until the call resolves or ctx is done.
func (c *Call[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
