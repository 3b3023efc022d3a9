package prom

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/viewcache/cache"
	"github.com/IvanBrykalov/viewcache/policy"
)

// gathered returns the value of every sample in reg keyed by
// "name{label=value,...}".
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName() + "{"
			for i, lp := range m.GetLabel() {
				if i > 0 {
					name += ","
				}
				name += lp.GetName() + "=" + lp.GetValue()
			}
			name += "}"
			switch {
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[name] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestAdapter_Export(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "viewcache", "test", prometheus.Labels{"instance": "t"})

	a.Hit(cache.KindChildren)
	a.Hit(cache.KindChildren)
	a.Miss(cache.KindProperties)
	a.SourceCall(cache.KindProperties)
	a.StaleWrite(cache.KindChildCount)
	a.Evict(cache.EvictCapacity)
	a.Evict(cache.EvictFlush)
	a.Flush(12, false)
	a.Flush(1, true)
	a.Size(42)

	got := gathered(t, reg)
	require.Equal(t, 2.0, got["viewcache_test_hits_total{instance=t,kind=children}"])
	require.Equal(t, 1.0, got["viewcache_test_misses_total{instance=t,kind=properties}"])
	require.Equal(t, 1.0, got["viewcache_test_source_calls_total{instance=t,kind=properties}"])
	require.Equal(t, 1.0, got["viewcache_test_stale_writes_total{instance=t,kind=child_count}"])
	require.Equal(t, 1.0, got["viewcache_test_evictions_total{instance=t,reason=capacity}"])
	require.Equal(t, 1.0, got["viewcache_test_evictions_total{instance=t,reason=flush}"])
	require.Equal(t, 1.0, got["viewcache_test_flushes_total{instance=t,short_circuit=true}"])
	require.Equal(t, 1.0, got["viewcache_test_flushes_total{instance=t,short_circuit=false}"])
	require.Equal(t, 2.0, got["viewcache_test_flush_visited_slots{instance=t}"])
	require.Equal(t, 42.0, got["viewcache_test_size_slots{instance=t}"])
}

type leafNode struct{}

func (leafNode) HasChildren(context.Context, string, policy.Path[string]) (bool, error) {
	return false, nil
}

func (leafNode) ChildCount(context.Context, string, policy.Path[string]) (int, error) {
	return 0, nil
}

func (leafNode) Children(context.Context, string, policy.Path[string], int, int) ([]string, error) {
	return nil, nil
}

// The adapter plugs into a live cache.
func TestAdapter_WithCache(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := cache.New[string](cache.Options[string]{Metrics: New(reg, "viewcache", "", nil)})
	t.Cleanup(func() { _ = c.Close() })

	req := cache.Request[string]{Node: leafNode{}, Input: "root"}
	for i := 0; i < 3; i++ {
		_, err := c.HasChildren(context.Background(), req)
		require.NoError(t, err)
	}
	c.NotifyEvent("step")

	got := gathered(t, reg)
	require.Equal(t, 1.0, got["viewcache_misses_total{kind=has_children}"])
	require.Equal(t, 2.0, got["viewcache_hits_total{kind=has_children}"])
	require.Equal(t, 1.0, got["viewcache_source_calls_total{kind=has_children}"])
	require.Equal(t, 1.0, got["viewcache_evictions_total{reason=flush}"])
	require.Equal(t, 1.0, got["viewcache_flushes_total{short_circuit=false}"])
	// root marker and flush marker
	require.Equal(t, 2.0, got["viewcache_size_slots{}"])
}
