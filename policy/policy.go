// Package policy defines update policies: the objects that turn an external
// change event into an element update tester which the cache applies, entry
// by entry, during a flush.
package policy

// Flags tell the cache what to do with one cached element during a flush.
type Flags uint8

const (
	// Flush discards the element's tree data and current properties.
	Flush Flags = 1 << iota
	// Archive moves current properties into the archive before flushing.
	// Archive implies Flush.
	Archive
	// Dirty keeps the data but marks it as possibly stale.
	Dirty
	// FlushPartialProperties drops only the properties named by a
	// PropertiesTester.
	FlushPartialProperties
	// FlushAllProperties drops all current properties, keeping tree data.
	FlushAllProperties
)

// Normalize returns f with implied flags set.
func (f Flags) Normalize() Flags {
	if f&Archive != 0 {
		f |= Flush
	}
	return f
}

// Has reports whether every flag in mask is set in f.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	names := [...]string{"flush", "archive", "dirty", "flush-partial-props", "flush-all-props"}
	s := ""
	for i, n := range names {
		if f&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n
	}
	return s
}

// Tester maps a cached element to update flags for one flush pass.
//
// Includes must be reflexive, and A.Includes(B) must only hold when every
// element B affects is affected by A at least as strongly. The cache relies
// on it to skip regions already covered by an earlier flush.
type Tester[E comparable] interface {
	UpdateFlags(input E, path Path[E]) Flags
	Includes(other Tester[E]) bool
}

// PropertiesTester is implemented by testers that return
// FlushPartialProperties and need to name the properties to drop.
type PropertiesTester[E comparable] interface {
	Tester[E]
	PropertiesToFlush(input E, path Path[E], dirty bool) []string
}

// Policy turns events into testers and optionally seeds fresh roots.
//
// Tester may return nil to ignore an event.
type Policy[E comparable] interface {
	ID() string
	Name() string
	Tester(event any) Tester[E]
	// InitialChildren returns children used to seed the first entry created
	// under a root, avoiding an initial round trip to the source.
	InitialChildren(root E) ([]E, bool)
	// InitialProperties is the properties counterpart of InitialChildren.
	InitialProperties(root E) (map[string]any, bool)
}

// EntryView is a read-only view of a cache entry handed to policies.
type EntryView interface {
	IsDirty() bool
	Property(key string) (any, bool)
	ArchivedProperty(key string) (any, bool)
}

// DirtyRefresher is implemented by policies that allow some properties of a
// dirty entry to be fetched from the source. Policies without it deny all.
type DirtyRefresher interface {
	CanRefreshDirty(entry EntryView, key string) bool
}
