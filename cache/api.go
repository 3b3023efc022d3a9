package cache

import (
	"context"

	"github.com/IvanBrykalov/viewcache/policy"
)

// Node is a data-provider node: the source component that describes one
// layer of the hierarchy. The same parent may have different children
// depending on which node is asked, so the node is part of every cache key.
//
// Node values are compared with ==; implementations must be comparable
// (pointer receivers are the usual choice).
//
// All methods may block and may fail with a source-defined error.
type Node[E comparable] interface {
	HasChildren(ctx context.Context, input E, path policy.Path[E]) (bool, error)
	ChildCount(ctx context.Context, input E, path policy.Path[E]) (int, error)
	// Children returns up to length children starting at offset. Offset and
	// length of -1 ask for all children. A zero E in the result marks a gap:
	// it is neither cached nor returned.
	Children(ctx context.Context, input E, path policy.Path[E], offset, length int) ([]E, error)
}

// PropertiesProvider is implemented by nodes that serve element properties.
// One call answers a batch of queries; results are positional.
type PropertiesProvider[E comparable] interface {
	FetchProperties(ctx context.Context, queries []PropertiesQuery[E]) ([]PropertiesResult, error)
}

// PropertiesQuery asks for a set of properties of one element.
type PropertiesQuery[E comparable] struct {
	Input E
	Path  policy.Path[E]
	Keys  []string
}

// PropertiesResult answers one PropertiesQuery. Keys missing from both maps
// are recorded as Unknown.
type PropertiesResult struct {
	Values map[string]any
	Errors map[string]error
}

// Request addresses one element: the node describing it, the root input of
// the view, and the ancestor path from the input to the element.
type Request[E comparable] struct {
	Node  Node[E]
	Input E
	Path  policy.Path[E]
}

// ChildrenRequest asks for children [Offset, Offset+Length). Offset -1 asks
// for all children.
type ChildrenRequest[E comparable] struct {
	Request[E]
	Offset int
	Length int
}

// All reports whether r asks for every child.
func (r ChildrenRequest[E]) All() bool { return r.Offset < 0 }

// PropertiesRequest asks for the named properties of one element.
type PropertiesRequest[E comparable] struct {
	Request[E]
	Keys []string
}

// PropertiesReply answers one PropertiesRequest.
//
// Err is set when the whole request failed (misdirected, source batch
// failure, caller cancellation). Errors holds per-property failures such as
// ErrStaleData; Values never holds a key that is in Errors.
type PropertiesReply struct {
	Values map[string]any
	Errors map[string]error
	Err    error
}

type unknown struct{}

func (unknown) String() string { return "<unknown>" }

// Unknown is stored for requested properties the source did not return, so
// repeated requests for the same keys are cache hits.
var Unknown any = unknown{}

// Synthetic property keys.
const (
	// PropDirty reports whether the entry is dirty.
	PropDirty = "cache_entry_dirty"
	// PropIsChangedPrefix prefixes properties that report whether the named
	// property changed since the last archive, e.g. "is_changed.value".
	PropIsChangedPrefix = "is_changed."
	// PropUpdatePolicyID reports the ID of the active update policy.
	PropUpdatePolicyID = "update_policy_id"
)
