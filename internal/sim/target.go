// Package sim provides a synthetic debugger target for the view cache: a
// session with processes, threads, stack frames and variables served with
// configurable latency and injected failures, plus a scenario runner.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/viewcache/cache"
)

// ErrInjected is returned by source calls chosen to fail.
var ErrInjected = errors.New("sim: injected failure")

// Level is a depth of the debugger tree. A node at level L lists the
// children of elements at level L-1.
type Level int

const (
	Processes Level = iota
	Threads
	Frames
	Variables
	levels
)

func (l Level) String() string {
	switch l {
	case Processes:
		return "processes"
	case Threads:
		return "threads"
	case Frames:
		return "frames"
	case Variables:
		return "variables"
	default:
		return "level-" + strconv.Itoa(int(l))
	}
}

// Options shapes the simulated target.
type Options struct {
	Processes int
	Threads   int // per process
	Frames    int // per thread
	Variables int // per frame
	Latency   time.Duration
	FailRate  float64
	Seed      int64
}

// Target is the simulated debuggee. Element IDs are dotted paths such as
// "p0.t1.f2.v3"; the session ID is the input element of every request.
type Target struct {
	mu      sync.Mutex
	session string
	opt     Options
	rng     *rand.Rand
	gen     int
	running bool
	calls   [4]int
	nodes   [levels]*Node
}

// NewTarget returns a suspended target with a fresh session ID.
func NewTarget(opt Options) *Target {
	t := &Target{
		session: "session-" + uuid.NewString(),
		opt:     opt,
		rng:     rand.New(rand.NewSource(opt.Seed)),
	}
	for l := Processes; l < levels; l++ {
		t.nodes[l] = &Node{t: t, level: l}
	}
	return t
}

// Session returns the input element of the target's view.
func (t *Target) Session() string { return t.session }

// Node returns the node serving level l.
func (t *Target) Node(l Level) *Node { return t.nodes[l] }

// NodeFor returns the node listing the children of the element at path;
// nil when path is deeper than the tree.
func (t *Target) NodeFor(path []string) *Node {
	if len(path) >= int(levels) {
		return nil
	}
	return t.nodes[len(path)]
}

// Request builds a tree request (children, counts) for the element at path
// below the session. Past the deepest level the node is nil.
func (t *Target) Request(path ...string) cache.Request[string] {
	r := cache.Request[string]{Input: t.session, Path: path}
	if n := t.NodeFor(path); n != nil {
		r.Node = n
	}
	return r
}

// PropertiesRequest builds a properties request for the element at path. It
// goes to the node that lists the element.
func (t *Target) PropertiesRequest(keys []string, path ...string) cache.PropertiesRequest[string] {
	l := max(len(path)-1, 0)
	r := cache.Request[string]{Input: t.session, Path: path}
	if l < int(levels) {
		r.Node = t.nodes[l]
	}
	return cache.PropertiesRequest[string]{Request: r, Keys: keys}
}

// Advance simulates a suspend after stepping: variable values change.
func (t *Target) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.running = false
}

// Resume marks the target as running.
func (t *Target) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
}

// Generation returns the number of completed steps.
func (t *Target) Generation() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Calls returns the number of source calls per request kind.
func (t *Target) Calls() map[cache.RequestKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[cache.RequestKind]int, len(t.calls))
	for k, n := range t.calls {
		out[cache.RequestKind(k)] = n
	}
	return out
}

// TotalCalls returns the number of source calls of any kind.
func (t *Target) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		n += c
	}
	return n
}

// enter accounts a source call, waits for the configured latency and
// decides whether the call fails.
func (t *Target) enter(ctx context.Context, kind cache.RequestKind) error {
	t.mu.Lock()
	t.calls[kind]++
	fail := t.opt.FailRate > 0 && t.rng.Float64() < t.opt.FailRate
	latency := t.opt.Latency
	t.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return ErrInjected
	}
	return nil
}

// width returns the number of children of one element at level l.
func (t *Target) width(l Level) int {
	switch l {
	case Processes:
		return t.opt.Processes
	case Threads:
		return t.opt.Threads
	case Frames:
		return t.opt.Frames
	case Variables:
		return t.opt.Variables
	default:
		return 0
	}
}

// children lists the children of the element at path, or an error when the
// path does not name an element of the tree.
func (t *Target) children(l Level, path []string) ([]string, error) {
	if len(path) != int(l) {
		return nil, fmt.Errorf("sim: %s node asked about an element at depth %d", l, len(path))
	}
	if err := t.checkPath(path); err != nil {
		return nil, err
	}
	n := t.width(l)
	prefix := ""
	if len(path) > 0 {
		prefix = path[len(path)-1] + "."
	}
	tag := [...]string{"p", "t", "f", "v"}[l]
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + tag + strconv.Itoa(i)
	}
	return out, nil
}

// checkPath verifies that every path segment extends its parent.
func (t *Target) checkPath(path []string) error {
	if len(path) > int(levels) {
		return fmt.Errorf("sim: path %v is deeper than the tree", path)
	}
	parent := ""
	for i, seg := range path {
		want := parent
		if want != "" {
			want += "."
		}
		tag := [...]string{"p", "t", "f", "v"}[i]
		idx, ok := strings.CutPrefix(seg, want+tag)
		if !ok {
			return fmt.Errorf("sim: %q is not a child of %q", seg, parent)
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 || n >= t.width(Level(i)) {
			return fmt.Errorf("sim: no element %q", seg)
		}
		parent = seg
	}
	return nil
}

// properties computes the properties of one element at the current
// generation. Only variables change between generations: every other
// variable of a frame takes a new value on each step.
func (t *Target) properties(path []string, keys []string) cache.PropertiesResult {
	res := cache.PropertiesResult{Values: make(map[string]any, len(keys))}
	if len(path) == 0 {
		return res
	}
	id := path[len(path)-1]
	level := Level(len(path) - 1)
	idx, _ := strconv.Atoi(id[strings.LastIndexAny(id, "ptfv")+1:])

	for _, k := range keys {
		switch k {
		case "name":
			res.Values[k] = id
		case "kind":
			res.Values[k] = [...]string{"process", "thread", "frame", "variable"}[level]
		case "state":
			if level == Threads {
				if t.running {
					res.Values[k] = "running"
				} else {
					res.Values[k] = "suspended"
				}
			}
		case "pc":
			if level == Frames {
				res.Values[k] = fmt.Sprintf("0x%08x", 0x401000+idx*16+t.gen*4)
			}
		case "value":
			if level == Variables {
				v := idx
				if idx%2 == 1 {
					v += t.gen
				}
				res.Values[k] = v
			}
		case "fail":
			if res.Errors == nil {
				res.Errors = make(map[string]error)
			}
			res.Errors[k] = ErrInjected
		}
	}
	return res
}
