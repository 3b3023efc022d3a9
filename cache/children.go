package cache

import (
	"context"
	"errors"
	"maps"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
)

// span is a contiguous run of child indices.
type span struct{ offset, length int }

func (s span) end() int { return s.offset + s.length }

// window returns the indices of [offset, offset+length) that can hold a
// child. The end saturates at math.MaxInt and stops at the child count
// when it is known.
func window(offset, length int, count opt[int]) span {
	end := math.MaxInt
	if length <= math.MaxInt-offset {
		end = offset + length
	}
	if count.ok && end > count.v {
		end = count.v
	}
	if end < offset {
		end = offset
	}
	return span{offset, end - offset}
}

// pendingRun is a children sub-request in flight for one entry state.
// Its results start at index offset.
type pendingRun[E comparable] struct {
	span
	call *flight[E]
}

// piece is the part of a request answered by one flight whose results
// start at index base.
type piece[E comparable] struct {
	span
	base int
	call *flight[E]
}

// Children returns the requested children keyed by index.
//
// Cached indices are answered without a source call; each maximal run of
// missing indices becomes one sub-request, all issued at once and awaited
// together. A failed run is reported as a *RangeError (several are joined)
// while the children of the other runs are still returned and cached.
//
// A request for all children over a partially cached map fetches only the
// missing runs below the child count.
func (c *Cache[E]) Children(ctx context.Context, r ChildrenRequest[E]) (map[int]E, error) {
	if r.Node == nil {
		return nil, ErrMisdirected
	}
	if !r.All() && r.Length <= 0 {
		return map[int]E{}, nil
	}

	var count opt[int] // fetched below when a partial map needs a bound
	for {
		c.mu.Lock()
		h, err := c.enterLocked(r.Request)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		e := &c.store.slots[h].data

		switch {
		case !r.All():
			return c.fillLocked(ctx, h, r.Request, window(r.Offset, r.Length, e.childCount), false)

		case e.children == nil:
			return c.fetchAllLocked(ctx, h, r.Request)

		case e.allChildrenKnown:
			out := maps.Clone(e.children)
			c.hit(KindChildren, r.Request)
			c.mu.Unlock()
			return out, nil

		case e.childCount.ok:
			return c.fillLocked(ctx, h, r.Request, span{0, e.childCount.v}, true)

		case count.ok:
			return c.fillLocked(ctx, h, r.Request, span{0, count.v}, true)
		}

		c.mu.Unlock()
		n, err := c.ChildCount(ctx, r.Request)
		if err != nil {
			return nil, err
		}
		count = some(n)
	}
}

// fetchAllLocked asks the source for every child with one sub-request.
// c.mu must be held; it is released before waiting.
func (c *Cache[E]) fetchAllLocked(ctx context.Context, h handle, r Request[E]) (map[int]E, error) {
	c.miss(KindChildren, r)
	node, input, path := r.Node, r.Input, r.Path.Clone()
	t := c.store.ticket(h)
	call, leader := c.joinLocked(
		flightKey{t: t, kind: KindChildren, offset: -1, length: -1},
		func(ctx context.Context) (flightResult[E], error) {
			cs, err := node.Children(ctx, input, path, -1, -1)
			return flightResult[E]{children: cs}, err
		},
		func(e *entry[E], res flightResult[E]) {
			e.ensureChildren()
			putChildren(e.children, 0, len(res.children), res.children)
			e.allChildrenKnown = true
		},
	)
	if leader {
		c.pendLocked(t, span{0, math.MaxInt}, call)
	}
	c.mu.Unlock()

	res, err := call.Wait(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]E, len(res.children))
	putChildren(out, 0, len(res.children), res.children)
	return out, nil
}

// fillLocked answers the indices of want from the cache and fetches the
// missing runs. Parts of a run that another request is already fetching
// for the same entry state wait on that flight instead of the source.
// When all is set and every run succeeds under an unchanged entry, the
// entry is marked as knowing all its children.
// c.mu must be held; it is released before waiting.
func (c *Cache[E]) fillLocked(ctx context.Context, h handle, r Request[E], want span, all bool) (map[int]E, error) {
	e := &c.store.slots[h].data
	t := c.store.ticket(h)

	out := make(map[int]E, min(want.length, len(e.children)))
	runs := missingRuns(e.children, want, out)
	if e.allChildrenKnown {
		// the rest of the window are gaps
		runs = nil
	}

	if len(runs) == 0 {
		if all {
			e.allChildrenKnown = true
		}
		c.hit(KindChildren, r)
		c.mu.Unlock()
		return out, nil
	}
	c.miss(KindChildren, r)

	node, input, path := r.Node, r.Input, r.Path.Clone()
	var pieces []piece[E]
	for _, missing := range runs {
		covered, rest := c.coverLocked(t, missing)
		if len(covered) > 0 {
			c.stats.coalesced.Add(int64(len(covered)))
			pieces = append(pieces, covered...)
		}
		for _, run := range rest {
			call, leader := c.joinLocked(
				flightKey{t: t, kind: KindChildren, offset: run.offset, length: run.length},
				func(ctx context.Context) (flightResult[E], error) {
					cs, err := node.Children(ctx, input, path, run.offset, run.length)
					return flightResult[E]{children: cs}, err
				},
				func(e *entry[E], res flightResult[E]) {
					e.ensureChildren()
					putChildren(e.children, run.offset, run.length, res.children)
				},
			)
			if leader {
				c.pendLocked(t, run, call)
			}
			pieces = append(pieces, piece[E]{span: run, base: run.offset, call: call})
		}
	}
	c.mu.Unlock()

	// completion barrier: every piece reports, successful or not
	results := make([][]E, len(pieces))
	errs := make([]error, len(pieces))
	var g errgroup.Group
	for i, p := range pieces {
		g.Go(func() error {
			res, err := p.call.Wait(ctx)
			results[i], errs[i] = res.children, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}

	var failed []error
	for i, p := range pieces {
		if errs[i] != nil {
			failed = append(failed, &RangeError{Offset: p.offset, Length: p.length, Err: errs[i]})
			continue
		}
		putRange(out, p.span, p.base, results[i])
	}
	if len(failed) > 0 {
		return out, errors.Join(failed...)
	}

	if all {
		c.mu.Lock()
		if c.store.valid(t) {
			c.store.slots[t.h].data.allChildrenKnown = true
		}
		c.mu.Unlock()
	}
	return out, nil
}

// pendLocked records a children flight of ticket t covering s.
// c.mu must be held.
func (c *Cache[E]) pendLocked(t ticket, s span, call *flight[E]) {
	if c.pending == nil {
		c.pending = make(map[ticket][]pendingRun[E])
	}
	c.pending[t] = append(c.pending[t], pendingRun[E]{span: s, call: call})
}

// unpendLocked forgets call. c.mu must be held.
func (c *Cache[E]) unpendLocked(t ticket, call *flight[E]) {
	runs, ok := c.pending[t]
	if !ok {
		return
	}
	runs = slices.DeleteFunc(runs, func(p pendingRun[E]) bool { return p.call == call })
	if len(runs) == 0 {
		delete(c.pending, t)
		return
	}
	c.pending[t] = runs
}

// coverLocked splits run into the parts that pending flights of ticket t
// already fetch and the parts nobody fetches yet. c.mu must be held.
func (c *Cache[E]) coverLocked(t ticket, run span) (covered []piece[E], rest []span) {
	pend := c.pending[t]
	if len(pend) == 0 {
		return nil, []span{run}
	}
	pos, end := run.offset, run.end()
	for pos < end {
		var hit *pendingRun[E]
		next := end
		for i := range pend {
			p := &pend[i]
			if p.offset <= pos && pos < p.end() {
				hit = p
				break
			}
			if p.offset > pos && p.offset < next {
				next = p.offset
			}
		}
		if hit != nil {
			stop := min(end, hit.end())
			covered = append(covered, piece[E]{span: span{pos, stop - pos}, base: hit.offset, call: hit.call})
			pos = stop
			continue
		}
		rest = append(rest, span{pos, next - pos})
		pos = next
	}
	return covered, rest
}

// missingRuns copies the cached indices of want into out and returns the
// maximal runs of indices that are not cached. It walks the cached map,
// not the window, so a huge window costs no more than a small one.
func missingRuns[E comparable](cached map[int]E, want span, out map[int]E) []span {
	end := want.end()
	idx := make([]int, 0, min(want.length, len(cached)))
	for i, v := range cached {
		if i >= want.offset && i < end {
			out[i] = v
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)

	var runs []span
	next := want.offset
	for _, i := range idx {
		if i > next {
			runs = append(runs, span{next, i - next})
		}
		next = i + 1
	}
	if next < end {
		runs = append(runs, span{next, end - next})
	}
	return runs
}

// putChildren stores src at offset.., skipping zero values (gaps) and
// anything past limit.
func putChildren[E comparable](dst map[int]E, offset, limit int, src []E) {
	var zero E
	for j, ch := range src {
		if j >= limit {
			return
		}
		if ch != zero {
			dst[offset+j] = ch
		}
	}
}

// putRange stores the children of s from src, whose first element is
// index base, skipping gaps.
func putRange[E comparable](dst map[int]E, s span, base int, src []E) {
	var zero E
	for i := s.offset; i < s.end(); i++ {
		j := i - base
		if j >= len(src) {
			return
		}
		if src[j] != zero {
			dst[i] = src[j]
		}
	}
}
