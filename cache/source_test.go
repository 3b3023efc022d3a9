package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IvanBrykalov/viewcache/policy"
)

// fakeNode is an in-memory tree source that records every call.
// When gate is set, calls block until it is closed (or ctx is done).
type fakeNode struct {
	mu       sync.Mutex
	kids     map[string][]string
	props    map[string]map[string]any
	fail     map[int]error // Children offset -> error
	propsErr error
	calls    map[RequestKind]int
	ranges   []span
	batches  []int // queries per FetchProperties call
	inflight int
	peak     int
	delay    time.Duration
	gate     chan struct{}
	started  chan RequestKind
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		kids:  make(map[string][]string),
		props: make(map[string]map[string]any),
		fail:  make(map[int]error),
		calls: make(map[RequestKind]int),
	}
}

func pk(input string, path ...string) string {
	return input + ":" + strings.Join(path, "/")
}

func (n *fakeNode) setKids(k string, kids ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kids[k] = kids
}

func (n *fakeNode) setProp(k, name string, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.props[k] == nil {
		n.props[k] = make(map[string]any)
	}
	n.props[k][name] = v
}

// hold makes every following call block until the returned func runs.
func (n *fakeNode) hold() (release func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gate = make(chan struct{})
	n.started = make(chan RequestKind, 64)
	gate := n.gate
	return sync.OnceFunc(func() { close(gate) })
}

func (n *fakeNode) count(kind RequestKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[kind]
}

func (n *fakeNode) enter(ctx context.Context, kind RequestKind) error {
	n.mu.Lock()
	n.calls[kind]++
	n.inflight++
	if n.inflight > n.peak {
		n.peak = n.inflight
	}
	gate, started, delay := n.gate, n.started, n.delay
	n.mu.Unlock()

	if started != nil {
		started <- kind
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			n.leave()
			return ctx.Err()
		}
	}
	return nil
}

func (n *fakeNode) leave() {
	n.mu.Lock()
	n.inflight--
	n.mu.Unlock()
}

func (n *fakeNode) HasChildren(ctx context.Context, input string, path policy.Path[string]) (bool, error) {
	if err := n.enter(ctx, KindHasChildren); err != nil {
		return false, err
	}
	defer n.leave()
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.kids[pk(input, path...)]) > 0, nil
}

func (n *fakeNode) ChildCount(ctx context.Context, input string, path policy.Path[string]) (int, error) {
	if err := n.enter(ctx, KindChildCount); err != nil {
		return 0, err
	}
	defer n.leave()
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.kids[pk(input, path...)]), nil
}

func (n *fakeNode) Children(ctx context.Context, input string, path policy.Path[string], offset, length int) ([]string, error) {
	if err := n.enter(ctx, KindChildren); err != nil {
		return nil, err
	}
	defer n.leave()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ranges = append(n.ranges, span{offset, length})
	all := n.kids[pk(input, path...)]
	if offset < 0 {
		return slices.Clone(all), nil
	}
	if err := n.fail[offset]; err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	return slices.Clone(all[offset:min(offset+length, len(all))]), nil
}

func (n *fakeNode) FetchProperties(ctx context.Context, qs []PropertiesQuery[string]) ([]PropertiesResult, error) {
	if err := n.enter(ctx, KindProperties); err != nil {
		return nil, err
	}
	defer n.leave()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, len(qs))
	if n.propsErr != nil {
		return nil, n.propsErr
	}
	out := make([]PropertiesResult, len(qs))
	for i, q := range qs {
		src := n.props[pk(q.Input, q.Path...)]
		out[i].Values = make(map[string]any)
		for _, k := range q.Keys {
			if strings.HasPrefix(k, "err.") {
				if out[i].Errors == nil {
					out[i].Errors = make(map[string]error)
				}
				out[i].Errors[k] = errKey
				continue
			}
			if v, ok := src[k]; ok {
				out[i].Values[k] = v
			}
		}
	}
	return out, nil
}

// treeOnly is a node without properties support.
type treeOnly struct{ n *fakeNode }

func (t treeOnly) HasChildren(ctx context.Context, input string, path policy.Path[string]) (bool, error) {
	return t.n.HasChildren(ctx, input, path)
}

func (t treeOnly) ChildCount(ctx context.Context, input string, path policy.Path[string]) (int, error) {
	return t.n.ChildCount(ctx, input, path)
}

func (t treeOnly) Children(ctx context.Context, input string, path policy.Path[string], offset, length int) ([]string, error) {
	return t.n.Children(ctx, input, path, offset, length)
}

type testErr string

func (e testErr) Error() string { return string(e) }

const (
	errKey  = testErr("property failed")
	errBoom = testErr("boom")
)

func newTestCache(t testing.TB, opt Options[string]) *Cache[string] {
	t.Helper()
	c := New[string](opt)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var (
	_ Node[string]               = (*fakeNode)(nil)
	_ PropertiesProvider[string] = (*fakeNode)(nil)
	_ Node[string]               = treeOnly{}
)
