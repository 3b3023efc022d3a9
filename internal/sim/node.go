package sim

import (
	"context"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/policy"
)

// Node serves one level of the target tree to the cache.
type Node struct {
	t     *Target
	level Level
}

// Level returns the level this node lists.
func (n *Node) Level() Level { return n.level }

func (n *Node) String() string { return n.level.String() }

// HasChildren implements cache.Node.
func (n *Node) HasChildren(ctx context.Context, _ string, path policy.Path[string]) (bool, error) {
	if err := n.t.enter(ctx, cache.KindHasChildren); err != nil {
		return false, err
	}
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	cs, err := n.t.children(n.level, path)
	return len(cs) > 0, err
}

// ChildCount implements cache.Node.
func (n *Node) ChildCount(ctx context.Context, _ string, path policy.Path[string]) (int, error) {
	if err := n.t.enter(ctx, cache.KindChildCount); err != nil {
		return 0, err
	}
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	cs, err := n.t.children(n.level, path)
	return len(cs), err
}

// Children implements cache.Node. A negative offset or length asks for all
// children; windows past the end are truncated.
func (n *Node) Children(ctx context.Context, _ string, path policy.Path[string], offset, length int) ([]string, error) {
	if err := n.t.enter(ctx, cache.KindChildren); err != nil {
		return nil, err
	}
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	cs, err := n.t.children(n.level, path)
	if err != nil || offset < 0 || length < 0 {
		return cs, err
	}
	if offset >= len(cs) {
		return nil, nil
	}
	return cs[offset:min(offset+length, len(cs))], nil
}

// FetchProperties implements cache.PropertiesProvider. Each query describes
// the child element at its path: the last path segment.
func (n *Node) FetchProperties(ctx context.Context, qs []cache.PropertiesQuery[string]) ([]cache.PropertiesResult, error) {
	if err := n.t.enter(ctx, cache.KindProperties); err != nil {
		return nil, err
	}
	n.t.mu.Lock()
	defer n.t.mu.Unlock()
	out := make([]cache.PropertiesResult, len(qs))
	for i, q := range qs {
		if err := n.t.checkPath(q.Path); err != nil {
			out[i].Errors = make(map[string]error, len(q.Keys))
			for _, k := range q.Keys {
				out[i].Errors[k] = err
			}
			continue
		}
		out[i] = n.t.properties(q.Path, q.Keys)
	}
	return out, nil
}

var (
	_ cache.Node[string]               = (*Node)(nil)
	_ cache.PropertiesProvider[string] = (*Node)(nil)
)
