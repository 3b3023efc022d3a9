package cache

import "github.com/IvanBrykalov/viewcache/policy"

// handle addresses a slot in the store arena. Handle 0 is the list sentinel.
type handle int32

const sentinel handle = 0

type slotKind uint8

const (
	kindFree slotKind = iota
	kindData
	kindFlushMarker
	kindRootMarker
)

func (k slotKind) String() string {
	switch k {
	case kindData:
		return "data"
	case kindFlushMarker:
		return "flush-marker"
	case kindRootMarker:
		return "root-marker"
	default:
		return "free"
	}
}

// slot is one arena cell. Its kind selects which fields are meaningful:
//   - kindData: key, data
//   - kindFlushMarker: root, tester
//   - kindRootMarker: root
//
// gen is bumped whenever the slot is released, so a handle captured earlier
// can be told apart from a later occupant.
type slot[E comparable] struct {
	kind slotKind
	gen  uint32
	prev handle
	next handle

	root   E
	key    key[E]
	data   entry[E]
	tester policy.Tester[E]
}

// store is an arena of slots threaded on a circular doubly linked list
// (sentinel.next = LRU, sentinel.prev = MRU), plus the key index and the
// root marker index. It is not safe for concurrent use; the cache lock
// guards it.
type store[E comparable] struct {
	slots    []slot[E]
	free     []handle
	index    map[uint64][]handle // data slots by key hash
	markers  map[E]handle        // root markers by root
	live     int
	byKind   [4]int
	capacity int

	// onRelease is called for every released slot while it still holds
	// its contents.
	onRelease func(s *slot[E], reason EvictReason)
}

func newStore[E comparable](capacity int) *store[E] {
	s := &store[E]{
		slots:    make([]slot[E], 1, capacity+1),
		index:    make(map[uint64][]handle, capacity),
		markers:  make(map[E]handle),
		capacity: capacity,
	}
	// empty circular list
	s.slots[sentinel].prev = sentinel
	s.slots[sentinel].next = sentinel
	return s
}

// Len returns the number of occupied slots.
func (s *store[E]) Len() int { return s.live }

func (s *store[E]) slot(h handle) *slot[E] { return &s.slots[h] }

// alloc occupies a slot and links it at the MRU end.
// Pointers into s.slots are invalidated by alloc.
func (s *store[E]) alloc(kind slotKind, root E) handle {
	var h handle
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot[E]{})
		h = handle(len(s.slots) - 1)
	}
	sl := &s.slots[h]
	sl.kind = kind
	sl.root = root
	s.linkBack(h)
	s.live++
	s.byKind[kind]++
	return h
}

// linkBack inserts h at the MRU end in O(1).
func (s *store[E]) linkBack(h handle) {
	last := s.slots[sentinel].prev
	s.slots[h].prev = last
	s.slots[h].next = sentinel
	s.slots[last].next = h
	s.slots[sentinel].prev = h
}

// unlink detaches h from the list in O(1).
func (s *store[E]) unlink(h handle) {
	sl := &s.slots[h]
	s.slots[sl.prev].next = sl.next
	s.slots[sl.next].prev = sl.prev
	sl.prev, sl.next = sentinel, sentinel
}

// touch moves h to the MRU end.
func (s *store[E]) touch(h handle) {
	if s.slots[sentinel].prev == h {
		return
	}
	s.unlink(h)
	s.linkBack(h)
}

// release removes h from the list and both indexes and frees the slot.
func (s *store[E]) release(h handle, reason EvictReason) {
	sl := &s.slots[h]
	if s.onRelease != nil {
		s.onRelease(sl, reason)
	}
	switch sl.kind {
	case kindData:
		s.unindex(h, sl.key.hash)
	case kindRootMarker:
		if s.markers[sl.root] == h {
			delete(s.markers, sl.root)
		}
	}
	s.unlink(h)
	s.live--
	s.byKind[sl.kind]--

	gen := sl.gen + 1
	*sl = slot[E]{gen: gen}
	s.free = append(s.free, h)
}

func (s *store[E]) unindex(h handle, hash uint64) {
	bucket := s.index[hash]
	for i, x := range bucket {
		if x != h {
			continue
		}
		bucket[i] = bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		break
	}
	if len(bucket) == 0 {
		delete(s.index, hash)
	} else {
		s.index[hash] = bucket
	}
}

// lookup finds the data slot for k without touching it.
func (s *store[E]) lookup(k *key[E]) (handle, bool) {
	for _, h := range s.index[k.hash] {
		if s.slots[h].key.equal(k) {
			return h, true
		}
	}
	return sentinel, false
}

// getOrCreate returns the data slot for k, creating it if needed, and moves
// it and its root marker to the MRU end. When the root marker is new, the
// entry is seeded from pol. The same handle is returned for equal keys for
// as long as the slot stays resident.
func (s *store[E]) getOrCreate(k key[E], pol policy.Policy[E]) (h handle, created bool) {
	h, ok := s.lookup(&k)
	if ok {
		s.touch(h)
	} else {
		h = s.alloc(kindData, k.root)
		s.slots[h].key = k
		s.index[k.hash] = append(s.index[k.hash], h)
		created = true
		s.evictOverflow()
	}

	if s.touchRoot(k.root) && pol != nil {
		seed(&s.slots[h].data, k.root, pol)
	}
	return h, created
}

// touchRoot refreshes the root marker for root and reports whether it had
// to be created.
func (s *store[E]) touchRoot(root E) bool {
	if h, ok := s.markers[root]; ok {
		s.touch(h)
		return false
	}
	h := s.alloc(kindRootMarker, root)
	s.markers[root] = h
	s.evictOverflow()
	return true
}

// seed fills unset fields of e with the policy's initial data for root.
// Seeded data is dirty: it was not read from the source.
func seed[E comparable](e *entry[E], root E, pol policy.Policy[E]) {
	if cs, ok := pol.InitialChildren(root); ok && e.children == nil {
		e.hasChildren = some(len(cs) > 0)
		e.childCount = some(len(cs))
		e.ensureChildren()
		var zero E
		for i, c := range cs {
			if c != zero {
				e.children[i] = c
			}
		}
		e.allChildrenKnown = true
		e.dirty = true
	}
	if ps, ok := pol.InitialProperties(root); ok && e.properties == nil {
		e.properties = make(map[string]any, len(ps)+1)
		for k, v := range ps {
			e.properties[k] = v
		}
		e.properties[PropDirty] = true
		e.dirty = true
	}
}

// insertFlushMarker records a completed flush at the MRU end.
func (s *store[E]) insertFlushMarker(root E, t policy.Tester[E]) handle {
	h := s.alloc(kindFlushMarker, root)
	s.slots[h].tester = t
	s.evictOverflow()
	return h
}

// evictOverflow drops LRU slots until the store fits its capacity.
func (s *store[E]) evictOverflow() {
	for s.live > s.capacity {
		lru := s.slots[sentinel].next
		if lru == sentinel {
			return
		}
		s.release(lru, EvictCapacity)
	}
}

// valid reports whether t still names the same, unflushed data entry.
func (s *store[E]) valid(t ticket) bool {
	if t.h <= sentinel || int(t.h) >= len(s.slots) {
		return false
	}
	sl := &s.slots[t.h]
	return sl.kind == kindData && sl.gen == t.gen && sl.data.flushVersion == t.version
}

// ticket identifies the state of a data entry at the time a sub-request is
// issued.
type ticket struct {
	h       handle
	gen     uint32
	version uint64
}

func (s *store[E]) ticket(h handle) ticket {
	sl := &s.slots[h]
	return ticket{h: h, gen: sl.gen, version: sl.data.flushVersion}
}

// order returns slot handles from LRU to MRU. Used by tests and diagnostics.
func (s *store[E]) order() []handle {
	out := make([]handle, 0, s.live)
	for h := s.slots[sentinel].next; h != sentinel; h = s.slots[h].next {
		out = append(out, h)
	}
	return out
}
