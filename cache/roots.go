package cache

import (
	"log/slog"

	"github.com/IvanBrykalov/viewcache/policy"
)

// rootState is an attached root. A detached root stays listed, and keeps
// receiving flushes, until the last of its cached data is gone.
type rootState[E comparable] struct {
	root     E
	detached bool
}

// AttachRoot registers root as the anchor of a view. Entries whose input
// is root, or whose path passes through it, are flushed together.
func (c *Cache[E]) AttachRoot(root E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.roots {
		if c.roots[i].root == root {
			c.roots[i].detached = false
			return
		}
	}
	c.roots = append(c.roots, rootState[E]{root: root})
}

// DetachRoot unregisters root. While data for it is still cached the root
// keeps tracking events; it is dropped once its root marker leaves the
// store.
func (c *Cache[E]) DetachRoot(root E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.roots {
		if c.roots[i].root != root {
			continue
		}
		if _, cached := c.store.markers[root]; cached {
			c.roots[i].detached = true
		} else {
			c.roots = append(c.roots[:i], c.roots[i+1:]...)
		}
		return
	}
}

// Roots returns the roots that receive flushes, detached ones included.
func (c *Cache[E]) Roots() []E {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]E, len(c.roots))
	for i, r := range c.roots {
		out[i] = r.root
	}
	return out
}

// rootClearedLocked handles the removal of a root marker.
func (c *Cache[E]) rootClearedLocked(root E) {
	c.stats.rootsCleared.Add(1)
	for i := range c.roots {
		if c.roots[i].root == root && c.roots[i].detached {
			c.roots = append(c.roots[:i], c.roots[i+1:]...)
			break
		}
	}
	c.log.Info("root cleared from cache", slog.Any("root", root))
	if c.opt.OnRootCleared != nil {
		c.opt.OnRootCleared(root)
	}
}

// flushRootsLocked returns every root a broadcast event must reach: the
// registered roots plus roots that only exist as cached data.
func (c *Cache[E]) flushRootsLocked() []E {
	out := make([]E, 0, len(c.roots)+len(c.store.markers))
	seen := make(map[E]struct{}, cap(out))
	for _, r := range c.roots {
		if _, dup := seen[r.root]; !dup {
			seen[r.root] = struct{}{}
			out = append(out, r.root)
		}
	}
	// markers in LRU order keep the result deterministic
	for _, h := range c.store.order() {
		sl := &c.store.slots[h]
		if sl.kind != kindRootMarker {
			continue
		}
		if _, dup := seen[sl.root]; !dup {
			seen[sl.root] = struct{}{}
			out = append(out, sl.root)
		}
	}
	return out
}

func (c *Cache[E]) attachedLocked() []E {
	out := make([]E, 0, len(c.roots))
	for _, r := range c.roots {
		if !r.detached {
			out = append(out, r.root)
		}
	}
	return out
}

// NotifyEvent turns event into a tester with the active policy and flushes
// every root with it. Events the policy ignores are dropped.
func (c *Cache[E]) NotifyEvent(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	t := c.active.Tester(event)
	if t == nil {
		c.log.Debug("event ignored by policy", slog.String("policy", c.active.ID()))
		return
	}
	for _, root := range c.flushRootsLocked() {
		c.flushLocked(root, t)
	}
}

// NotifyRootEvent is NotifyEvent restricted to one root.
func (c *Cache[E]) NotifyRootEvent(root E, event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t := c.active.Tester(event); t != nil {
		c.flushLocked(root, t)
	}
}

// Refresh flushes and archives everything under every root using the
// active policy's refresh tester, then asks each attached root to redraw.
func (c *Cache[E]) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	t := c.active.Tester(policy.RefreshEvent{})
	if t == nil {
		t = policy.NewAllTester[E](policy.Flush | policy.Archive)
	}
	for _, root := range c.flushRootsLocked() {
		c.flushLocked(root, t)
	}
	roots := c.attachedLocked()
	c.mu.Unlock()

	c.redraw(roots)
}

func (c *Cache[E]) redraw(roots []E) {
	if c.opt.OnRedraw == nil {
		return
	}
	for _, r := range roots {
		c.opt.OnRedraw(r)
	}
}
