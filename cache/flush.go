package cache

import (
	"log/slog"

	"github.com/IvanBrykalov/viewcache/policy"
)

// Flush applies t to every cached element under root. It never fails.
//
// In-flight sub-requests are not aborted; their results are simply not
// written back into entries the flush cleared.
func (c *Cache[E]) Flush(root E, t policy.Tester[E]) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.flushLocked(root, t)
}

// flushLocked walks the store from MRU to LRU. Flush markers for the same
// root that t includes are dropped (a new marker replaces them); a marker
// whose tester includes t ends the walk, since everything older was already
// handled at least as strongly. Finally a marker for t is inserted.
func (c *Cache[E]) flushLocked(root E, t policy.Tester[E]) {
	s := c.store
	visited, stopped := 0, false

	for h := s.slots[sentinel].prev; h != sentinel && !stopped; {
		prev := s.slots[h].prev
		sl := &s.slots[h]
		visited++

		switch sl.kind {
		case kindFlushMarker:
			if sl.root != root {
				break
			}
			marker := sl.tester
			if t.Includes(marker) {
				s.release(h, EvictSuperseded)
			}
			if marker.Includes(t) {
				stopped = true
			}
		case kindData:
			if sl.key.root == root {
				c.applyFlags(h, t)
			}
		}
		h = prev
	}

	s.insertFlushMarker(root, t)

	c.stats.flushes.Add(1)
	if stopped {
		c.stats.flushShortCircuits.Add(1)
	}
	c.opt.Metrics.Flush(visited, stopped)
	c.opt.Metrics.Size(s.Len())
	c.log.Debug("cache flush",
		slog.Any("root", root),
		slog.Any("tester", t),
		slog.Int("visited", visited),
		slog.Bool("short_circuit", stopped),
	)
}

// applyFlags updates one data entry for a flush pass.
func (c *Cache[E]) applyFlags(h handle, t policy.Tester[E]) {
	s := c.store
	sl := &s.slots[h]
	e := &sl.data
	flags := t.UpdateFlags(sl.key.input, sl.key.path).Normalize()

	switch {
	case flags.Has(policy.Flush):
		if flags.Has(policy.Archive) {
			if len(e.properties) > 0 {
				e.archived = e.properties
			}
			e.properties = nil
			if e.archived == nil {
				s.release(h, EvictFlush)
				return
			}
		} else {
			if e.archived == nil {
				s.release(h, EvictFlush)
				return
			}
			e.properties = nil
		}
		e.clearTree()

	case flags.Has(policy.FlushAllProperties):
		e.properties = nil

	case flags.Has(policy.FlushPartialProperties):
		pt, ok := t.(policy.PropertiesTester[E])
		if !ok || e.properties == nil {
			return
		}
		for _, k := range pt.PropertiesToFlush(sl.key.input, sl.key.path, e.dirty) {
			delete(e.properties, k)
		}

	case flags.Has(policy.Dirty):
		e.dirty = true
		if e.properties != nil {
			e.properties[PropDirty] = true
		}
	}
}
