package cache

import (
	"maps"

	"github.com/IvanBrykalov/viewcache/policy"
)

// opt is a value that may be unknown.
type opt[T any] struct {
	v  T
	ok bool
}

func some[T any](v T) opt[T] { return opt[T]{v: v, ok: true} }

// entry is the cached data of one element.
type entry[E comparable] struct {
	hasChildren      opt[bool]
	childCount       opt[int]
	children         map[int]E // nil = unknown; may be sparse
	allChildrenKnown bool
	properties       map[string]any
	archived         map[string]any
	dirty            bool
	// flushVersion grows on every flush that keeps the entry. Sub-requests
	// capture it and write back only while it is unchanged.
	flushVersion uint64
}

func (e *entry[E]) ensureChildren() {
	if e.children != nil {
		return
	}
	n := 32
	if e.childCount.ok && e.childCount.v*4/3 > n {
		n = e.childCount.v * 4 / 3
	}
	e.children = make(map[int]E, n)
}

// clearTree drops everything but the archive and bumps the version.
func (e *entry[E]) clearTree() {
	e.flushVersion++
	e.hasChildren = opt[bool]{}
	e.childCount = opt[int]{}
	e.children = nil
	e.allChildrenKnown = false
	e.dirty = false
}

// hasKeys reports whether every key is present in the property map.
func (e *entry[E]) hasKeys(keys []string) bool {
	if e.properties == nil {
		return len(keys) == 0
	}
	for _, k := range keys {
		if _, ok := e.properties[k]; !ok {
			return false
		}
	}
	return true
}

// entryView exposes a live entry to policies without copying it.
type entryView[E comparable] struct{ e *entry[E] }

func (v entryView[E]) IsDirty() bool { return v.e.dirty }

func (v entryView[E]) Property(key string) (any, bool) {
	val, ok := v.e.properties[key]
	return val, ok
}

func (v entryView[E]) ArchivedProperty(key string) (any, bool) {
	val, ok := v.e.archived[key]
	return val, ok
}

// Snapshot is a read-only copy of one cache entry, for diagnostics.
type Snapshot[E comparable] struct {
	Input E
	Path  policy.Path[E]
	Root  E

	Dirty bool

	HasChildren      bool
	HasChildrenKnown bool
	ChildCount       int
	ChildCountKnown  bool

	// Children is nil when no children are cached.
	Children         map[int]E
	AllChildrenKnown bool

	Properties         map[string]any
	ArchivedProperties map[string]any

	FlushVersion uint64
}

func newSnapshot[E comparable](k *key[E], e *entry[E]) Snapshot[E] {
	return Snapshot[E]{
		Input:              k.input,
		Path:               k.path.Clone(),
		Root:               k.root,
		Dirty:              e.dirty,
		HasChildren:        e.hasChildren.v,
		HasChildrenKnown:   e.hasChildren.ok,
		ChildCount:         e.childCount.v,
		ChildCountKnown:    e.childCount.ok,
		Children:           maps.Clone(e.children),
		AllChildrenKnown:   e.allChildrenKnown,
		Properties:         maps.Clone(e.properties),
		ArchivedProperties: maps.Clone(e.archived),
		FlushVersion:       e.flushVersion,
	}
}

// IsDirty implements policy.EntryView.
func (s Snapshot[E]) IsDirty() bool { return s.Dirty }

// Property implements policy.EntryView.
func (s Snapshot[E]) Property(key string) (any, bool) {
	v, ok := s.Properties[key]
	return v, ok
}

// ArchivedProperty implements policy.EntryView.
func (s Snapshot[E]) ArchivedProperty(key string) (any, bool) {
	v, ok := s.ArchivedProperties[key]
	return v, ok
}

var (
	_ policy.EntryView = entryView[string]{}
	_ policy.EntryView = Snapshot[string]{}
)
