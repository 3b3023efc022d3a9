package sim_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/internal/config"
	"github.com/IvanBrykalov/viewcache/internal/sim"
	"github.com/IvanBrykalov/viewcache/policy"
	"github.com/IvanBrykalov/viewcache/policy/automatic"
	"github.com/IvanBrykalov/viewcache/policy/manual"
)

func newTarget() *sim.Target {
	return sim.NewTarget(sim.Options{Processes: 2, Threads: 3, Frames: 4, Variables: 2, Seed: 1})
}

func newCache(t *testing.T) *cache.Cache[string] {
	t.Helper()
	c := cache.New[string](cache.Options[string]{
		Policies: []policy.Policy[string]{automatic.New[string](), manual.New[string]()},
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTarget_Tree(t *testing.T) {
	t.Parallel()

	tg := newTarget()
	ctx := context.Background()
	assert.Contains(t, tg.Session(), "session-")
	assert.NotEqual(t, tg.Session(), newTarget().Session())

	procs, err := tg.Node(sim.Processes).Children(ctx, tg.Session(), nil, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, procs)

	frames, err := tg.Node(sim.Frames).Children(ctx, tg.Session(), policy.Path[string]{"p1", "p1.t2"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1.t2.f1", "p1.t2.f2"}, frames)

	n, err := tg.Node(sim.Variables).ChildCount(ctx, tg.Session(), policy.Path[string]{"p0", "p0.t0", "p0.t0.f3"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = tg.Node(sim.Threads).ChildCount(ctx, tg.Session(), policy.Path[string]{"p7"})
	assert.Error(t, err, "out of range element")
	_, err = tg.Node(sim.Threads).ChildCount(ctx, tg.Session(), policy.Path[string]{"p0", "p0.t0"})
	assert.Error(t, err, "wrong depth for the node")

	assert.Nil(t, tg.NodeFor([]string{"a", "b", "c", "d"}))
	assert.Equal(t, 5, tg.TotalCalls())
	assert.Equal(t, 2, tg.Calls()[cache.KindChildren])
	assert.Equal(t, 3, tg.Calls()[cache.KindChildCount])
}

func TestTarget_Properties(t *testing.T) {
	t.Parallel()

	tg := newTarget()
	ctx := context.Background()
	path := policy.Path[string]{"p0", "p0.t1", "p0.t1.f0", "p0.t1.f0.v1"}

	res, err := tg.Node(sim.Variables).FetchProperties(ctx, []cache.PropertiesQuery[string]{
		{Input: tg.Session(), Path: path, Keys: []string{"name", "kind", "value", "pc", "fail"}},
		{Input: tg.Session(), Path: policy.Path[string]{"p0", "p0.t1"}, Keys: []string{"state"}},
		{Input: tg.Session(), Path: policy.Path[string]{"p9"}, Keys: []string{"name"}},
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, "p0.t1.f0.v1", res[0].Values["name"])
	assert.Equal(t, "variable", res[0].Values["kind"])
	assert.Equal(t, 1, res[0].Values["value"])
	assert.NotContains(t, res[0].Values, "pc", "variables have no pc")
	assert.ErrorIs(t, res[0].Errors["fail"], sim.ErrInjected)
	assert.Equal(t, "suspended", res[1].Values["state"])
	assert.Error(t, res[2].Errors["name"])

	tg.Advance()
	res, err = tg.Node(sim.Variables).FetchProperties(ctx, []cache.PropertiesQuery[string]{
		{Input: tg.Session(), Path: path, Keys: []string{"value"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res[0].Values["value"], "odd variables change on every step")
}

func TestTarget_FailureInjection(t *testing.T) {
	t.Parallel()

	tg := sim.NewTarget(sim.Options{Processes: 1, FailRate: 1})
	c := newCache(t)

	_, err := c.HasChildren(context.Background(), tg.Request())
	require.ErrorIs(t, err, sim.ErrInjected)

	snap, ok := c.Entry(tg.Request())
	require.True(t, ok)
	assert.False(t, snap.HasChildrenKnown, "failed results are not cached")
}

func TestTarget_CancelDuringLatency(t *testing.T) {
	t.Parallel()

	tg := sim.NewTarget(sim.Options{Processes: 1, Latency: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tg.Node(sim.Processes).HasChildren(ctx, tg.Session(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

const hasChildrenScenario = `
name: has-children
steps:
  - op: attach
  - op: has_children
  - op: has_children
  - op: expect_calls
    calls: 1
  - op: properties
    path: [p0, p0.t0, p0.t0.f0, p0.t0.f0.v1]
    keys: [value, is_changed.value]
  - op: expect_values
    values:
      value: 1
      is_changed.value: <unknown>
  - op: event
    event: suspended
  - op: has_children
  - op: properties
    path: [p0, p0.t0, p0.t0.f0, p0.t0.f0.v1]
    keys: [value, is_changed.value]
  - op: expect_values
    values:
      value: 2
      is_changed.value: true
  - op: expect_calls
    calls: 3
`

func TestRunner_HasChildrenScenario(t *testing.T) {
	t.Parallel()

	sc, err := config.ParseScenario([]byte(hasChildrenScenario))
	require.NoError(t, err)

	tg := newTarget()
	c := newCache(t)
	rep, err := sim.NewRunner(c, tg, nil).Run(context.Background(), sc)
	require.NoError(t, err)

	require.Len(t, rep.Steps, len(sc.Steps))
	assert.Equal(t, tg.Session(), rep.Session)
	assert.Equal(t, 1, rep.Steps[1].Calls)
	assert.Equal(t, 0, rep.Steps[2].Calls)
	assert.Equal(t, true, rep.Steps[1].Result)
	assert.Equal(t, 1, rep.Steps[7].Calls, "flushed by the suspend event")
	assert.Equal(t, automatic.ID, rep.Summary.Policy)
	assert.Equal(t, int64(1), rep.Summary.Flushes)
}

const manualScenario = `
name: manual
policy: manual
steps:
  - op: policy
    id: manual
  - op: attach
  - op: children
    offset: -1
    length: -1
  - op: expect_calls
    calls: 0
  - op: event
    event: refresh
  - op: children
    offset: -1
    length: -1
  - op: event
    event: suspended
  - op: children
    offset: -1
    length: -1
  - op: expect_calls
    calls: 1
`

// Under the manual policy the view starts blank and only refreshes on
// request; target events merely mark data dirty.
func TestRunner_ManualPolicy(t *testing.T) {
	t.Parallel()

	sc, err := config.ParseScenario([]byte(manualScenario))
	require.NoError(t, err)

	tg := newTarget()
	c := newCache(t)
	rep, err := sim.NewRunner(c, tg, nil).Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Empty(t, rep.Steps[2].Result)
	assert.Equal(t, map[int]string{0: "p0", 1: "p1"}, rep.Steps[5].Result)
	assert.Equal(t, map[int]string{0: "p0", 1: "p1"}, rep.Steps[7].Result)

	snap, ok := c.Entry(tg.Request())
	require.True(t, ok)
	assert.True(t, snap.Dirty)
}

func TestRunner_ExpectationFailure(t *testing.T) {
	t.Parallel()

	sc, err := config.ParseScenario([]byte("steps:\n  - op: has_children\n  - op: expect_calls\n    calls: 5\n"))
	require.NoError(t, err)

	rep, err := sim.NewRunner(newCache(t), newTarget(), nil).Run(context.Background(), sc)
	require.ErrorIs(t, err, sim.ErrExpectation)
	assert.Len(t, rep.Steps, 2)
}
