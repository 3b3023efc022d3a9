package cache

import (
	"log/slog"

	"github.com/IvanBrykalov/viewcache/policy"
)

// DefaultCapacity is the store capacity used when Options.Capacity is zero.
const DefaultCapacity = 1000

// EvictReason explains why a slot was removed from the store.
type EvictReason int

const (
	// EvictCapacity: removed as the least recently used slot.
	EvictCapacity EvictReason = iota
	// EvictFlush: data entry deleted by a flush that left nothing to keep.
	EvictFlush
	// EvictSuperseded: flush marker replaced by an including flush.
	EvictSuperseded
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictFlush:
		return "flush"
	case EvictSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// RequestKind labels the four request types.
type RequestKind int

const (
	KindHasChildren RequestKind = iota
	KindChildCount
	KindChildren
	KindProperties
)

func (k RequestKind) String() string {
	switch k {
	case KindHasChildren:
		return "has_children"
	case KindChildCount:
		return "child_count"
	case KindChildren:
		return "children"
	case KindProperties:
		return "properties"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit(kind RequestKind)
	Miss(kind RequestKind)
	// SourceCall counts sub-requests actually issued to the source.
	SourceCall(kind RequestKind)
	// StaleWrite counts source results not written back because the entry
	// was flushed or evicted while the sub-request was in flight.
	StaleWrite(kind RequestKind)
	Evict(reason EvictReason)
	// Flush reports one flush pass: slots visited and whether an earlier
	// including flush marker stopped the walk.
	Flush(visited int, shortCircuit bool)
	Size(slots int)
}

// Options configures the cache. Zero values are safe;
// defaults are applied in New():
//   - Capacity <= 0  => DefaultCapacity
//   - empty Policies => a single policy that flushes and archives on every event
//   - nil Logger     => discard
//   - nil Metrics    => NoopMetrics
type Options[E comparable] struct {
	// Capacity bounds the number of slots (data entries, flush markers and
	// root markers together). Values below 2 are raised to 2.
	Capacity int

	// Policies is the fixed set of update policies. The first is active
	// until SetActivePolicy selects another.
	Policies []policy.Policy[E]

	// MaxConcurrentFetches bounds concurrent source calls (0 = unbounded).
	MaxConcurrentFetches int

	// OnRootCleared is called when the last cached data for a root is gone.
	// It runs under the cache lock and must not call back into the cache.
	OnRootCleared func(root E)

	// OnRedraw is called for every affected root after Refresh and after
	// the active policy changes: the presentation must re-request its data.
	// It runs without the cache lock.
	OnRedraw func(root E)

	// OnEvict is called for every removed slot under the cache lock; keep
	// callbacks lightweight.
	OnEvict func(reason EvictReason)

	// Observability
	Logger  *slog.Logger
	Metrics Metrics
}
