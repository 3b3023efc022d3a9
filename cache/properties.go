package cache

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"github.com/IvanBrykalov/viewcache/policy"
)

// propBatch collects the queries one provider answers in a single call.
type propBatch[E comparable] struct {
	prov    PropertiesProvider[E]
	queries []PropertiesQuery[E]
	keys    []flightKey
	calls   []*flight[E]
}

// propWait is a request waiting for a properties flight.
type propWait[E comparable] struct {
	i       int
	t       ticket
	keys    []string
	missing []string
	known   map[string]any
	stale   map[string]error
	call    *flight[E]
}

// Properties answers a batch of property requests, one reply per request
// in order.
//
// Requests are grouped by node and each group with cache misses costs one
// FetchProperties call. Requested keys the source does not return are
// cached as Unknown. On a dirty entry, missing keys the active policy does
// not allow to refresh are answered with ErrStaleData.
func (c *Cache[E]) Properties(ctx context.Context, reqs ...PropertiesRequest[E]) []PropertiesReply {
	replies := make([]PropertiesReply, len(reqs))
	batches := make(map[Node[E]]*propBatch[E])
	var order []*propBatch[E]
	var waits []propWait[E]

	c.mu.Lock()
	for i, r := range reqs {
		prov, ok := r.Node.(PropertiesProvider[E])
		if !ok {
			replies[i].Err = ErrMisdirected
			continue
		}
		h, err := c.enterLocked(r.Request)
		if err != nil {
			replies[i].Err = err
			continue
		}
		e := &c.store.slots[h].data
		keys := uniqueKeys(r.Keys)

		if e.hasKeys(keys) {
			c.hit(KindProperties, r.Request)
			replies[i] = c.replyLocked(e, keys, nil)
			continue
		}
		c.miss(KindProperties, r.Request)

		missing := missingKeys(e.properties, keys)
		var stale map[string]error
		if e.dirty && e.properties != nil {
			missing, stale = c.filterDirtyLocked(e, missing)
		}
		if len(missing) == 0 {
			replies[i] = c.replyLocked(e, keys, stale)
			continue
		}

		t := c.store.ticket(h)
		fk := flightKey{t: t, kind: KindProperties, keys: strings.Join(missing, "\x00")}
		call, leader := c.flights.Join(fk)
		if leader {
			b := batches[r.Node]
			if b == nil {
				b = &propBatch[E]{prov: prov}
				batches[r.Node] = b
				order = append(order, b)
			}
			b.queries = append(b.queries, PropertiesQuery[E]{Input: r.Input, Path: r.Path.Clone(), Keys: missing})
			b.keys = append(b.keys, fk)
			b.calls = append(b.calls, call)
		} else {
			c.stats.coalesced.Add(1)
		}
		waits = append(waits, propWait[E]{
			i: i, t: t, keys: keys, missing: missing,
			known: knownValues(e.properties, keys), stale: stale, call: call,
		})
	}
	for _, b := range order {
		c.wg.Add(1)
		go c.runBatch(b)
	}
	c.mu.Unlock()

	for _, w := range waits {
		res, err := w.call.Wait(ctx)
		replies[w.i] = c.finishProperties(w, res.props, err)
	}
	return replies
}

// runBatch issues one FetchProperties call and resolves every flight in b.
func (c *Cache[E]) runBatch(b *propBatch[E]) {
	defer c.wg.Done()

	var results []PropertiesResult
	_, err := c.callSource(KindProperties, func(ctx context.Context) (flightResult[E], error) {
		var err error
		results, err = b.prov.FetchProperties(ctx, b.queries)
		return flightResult[E]{}, err
	})
	if err == nil && len(results) != len(b.queries) {
		err = ErrInvalidResult
	}

	if err == nil {
		c.mu.Lock()
		for i, q := range b.queries {
			c.writeBackLocked(b.keys[i], func(e *entry[E]) {
				c.mergePropertiesLocked(e, q.Keys, results[i])
			})
		}
		c.mu.Unlock()
	}

	for i := range b.queries {
		var res flightResult[E]
		if err == nil {
			res.props = results[i]
		}
		c.flights.Resolve(b.keys[i], b.calls[i], res, err)
	}
}

// mergePropertiesLocked writes a source result into e. Requested keys the
// source neither returned nor failed become Unknown; synthetic keys are
// computed from the entry. Every cached is_changed key is recomputed, since
// the value it compares may have just changed.
func (c *Cache[E]) mergePropertiesLocked(e *entry[E], missing []string, res PropertiesResult) {
	if e.properties == nil {
		e.properties = make(map[string]any, len(res.Values)+2)
	}
	for k, v := range res.Values {
		e.properties[k] = v
	}
	var changedKeys []string
	for _, k := range missing {
		if strings.HasPrefix(k, PropIsChangedPrefix) {
			changedKeys = append(changedKeys, k)
			continue
		}
		if _, ok := res.Values[k]; ok {
			continue
		}
		if _, failed := res.Errors[k]; failed {
			continue
		}
		e.properties[k] = Unknown
	}

	for _, k := range missing {
		switch k {
		case PropDirty:
			e.properties[k] = e.dirty
		case PropUpdatePolicyID:
			e.properties[k] = c.active.ID()
		}
	}

	for k := range e.properties {
		if strings.HasPrefix(k, PropIsChangedPrefix) && !slices.Contains(changedKeys, k) {
			changedKeys = append(changedKeys, k)
		}
	}
	for _, k := range changedKeys {
		refreshIsChanged(e, k)
	}
}

// refreshIsChanged recomputes the is_changed key k of e. It is not cached
// while the property it compares is absent.
func refreshIsChanged[E comparable](e *entry[E], k string) {
	name := strings.TrimPrefix(k, PropIsChangedPrefix)
	if _, ok := e.properties[name]; !ok {
		delete(e.properties, k)
		return
	}
	if changed, ok := isChanged(e, name); ok {
		e.properties[k] = changed
		return
	}
	if _, ok := e.properties[k]; !ok {
		e.properties[k] = Unknown
	}
}

// isChanged compares a property with its archived value. It has no answer
// when either side is missing or the archived value was never known.
func isChanged[E comparable](e *entry[E], name string) (changed, ok bool) {
	old, ok := e.archived[name]
	if !ok || old == Unknown {
		return false, false
	}
	cur, ok := e.properties[name]
	if !ok {
		return false, false
	}
	return !reflect.DeepEqual(old, cur), true
}

// filterDirtyLocked splits the missing keys of a dirty entry into those the
// active policy allows to fetch and those answered with ErrStaleData.
func (c *Cache[E]) filterDirtyLocked(e *entry[E], missing []string) ([]string, map[string]error) {
	r, _ := c.active.(policy.DirtyRefresher)
	kept := make([]string, 0, len(missing))
	var stale map[string]error
	for _, k := range missing {
		if r != nil && r.CanRefreshDirty(entryView[E]{e: e}, k) {
			kept = append(kept, k)
			continue
		}
		if stale == nil {
			stale = make(map[string]error)
		}
		stale[k] = ErrStaleData
	}
	return kept, stale
}

// replyLocked answers keys from the entry.
func (c *Cache[E]) replyLocked(e *entry[E], keys []string, errs map[string]error) PropertiesReply {
	vals := make(map[string]any, len(keys))
	for _, k := range keys {
		if _, failed := errs[k]; failed {
			continue
		}
		if v, ok := e.properties[k]; ok {
			vals[k] = v
		} else if strings.HasPrefix(k, PropIsChangedPrefix) {
			// no value to compare yet; answered but not cached
			vals[k] = Unknown
		}
	}
	c.policyIDLocked(vals, keys)
	return PropertiesReply{Values: vals, Errors: errs}
}

// finishProperties builds the reply for a request that waited on a flight.
// If the entry is unchanged the merged entry answers; otherwise the reply
// is composed from what was known plus the source result, uncached.
func (c *Cache[E]) finishProperties(w propWait[E], res PropertiesResult, err error) PropertiesReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		vals := w.known
		c.policyIDLocked(vals, w.keys)
		return PropertiesReply{Values: vals, Errors: w.stale, Err: err}
	}

	errs := w.stale
	for _, k := range w.missing {
		if kerr, ok := res.Errors[k]; ok {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[k] = kerr
		}
	}

	if c.store.valid(w.t) {
		return c.replyLocked(&c.store.slots[w.t.h].data, w.keys, errs)
	}

	vals := w.known
	for _, k := range w.missing {
		if _, failed := errs[k]; failed {
			continue
		}
		if v, ok := res.Values[k]; ok {
			vals[k] = v
		} else {
			vals[k] = Unknown
		}
	}
	if slices.Contains(w.keys, PropDirty) {
		vals[PropDirty] = true
	}
	c.policyIDLocked(vals, w.keys)
	return PropertiesReply{Values: vals, Errors: errs}
}

// policyIDLocked always reports the current policy, whatever was cached.
func (c *Cache[E]) policyIDLocked(vals map[string]any, keys []string) {
	if slices.Contains(keys, PropUpdatePolicyID) {
		vals[PropUpdatePolicyID] = c.active.ID()
	}
}

func uniqueKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func missingKeys(props map[string]any, keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := props[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func knownValues(props map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := props[k]; ok {
			out[k] = v
		}
	}
	return out
}
