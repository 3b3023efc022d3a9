package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/viewcache/policy"
)

// benchmarkMix exercises a read/flush mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
// flushPct of the operations notify a change event; the rest ask for a
// children window of one of 256 elements.
func benchmarkMix(b *testing.B, flushPct int) {
	n := newFakeNode()
	var kids []string
	for i := 0; i < 64; i++ {
		kids = append(kids, "c"+strconv.Itoa(i))
	}
	paths := make([]policy.Path[string], 256)
	for i := range paths {
		paths[i] = policy.Path[string]{"e" + strconv.Itoa(i)}
		n.setKids(pk("s", paths[i]...), kids...)
	}

	c := New[string](Options[string]{Capacity: 10_000})
	b.Cleanup(func() { _ = c.Close() })
	c.AttachRoot("s")
	ctx := context.Background()

	// Warm every element so most reads are hits.
	for _, p := range paths {
		_, _ = c.Children(ctx, ChildrenRequest[string]{Request: Request[string]{Node: n, Input: "s", Path: p}, Offset: 0, Length: 64})
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	b.RunParallel(func(pb *testing.PB) {
		// Independent RNG stream for each worker.
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		for pb.Next() {
			if r.Intn(1000) < flushPct {
				c.NotifyEvent("step")
				continue
			}
			req := ChildrenRequest[string]{
				Request: Request[string]{Node: n, Input: "s", Path: paths[r.Intn(len(paths))]},
				Offset:  r.Intn(48),
				Length:  16,
			}
			_, _ = c.Children(ctx, req)
		}
	})
}

func BenchmarkCache_ReadOnly(b *testing.B) { benchmarkMix(b, 0) }
func BenchmarkCache_OneFlushPer1k(b *testing.B) { benchmarkMix(b, 1) }
func BenchmarkCache_TenFlushesPer1k(b *testing.B) { benchmarkMix(b, 10) }

// BenchmarkCache_FlushWalk measures a flush over a full store.
func BenchmarkCache_FlushWalk(b *testing.B) {
	n := newFakeNode()
	c := New[string](Options[string]{Capacity: 4096})
	b.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	fill := func() {
		for i := 0; i < 4000; i++ {
			_, _ = c.HasChildren(ctx, Request[string]{Node: n, Input: "s", Path: policy.Path[string]{strconv.Itoa(i)}})
		}
	}
	tester := policy.NewAllTester[string](policy.Dirty)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		fill()
		b.StartTimer()
		c.Flush("s", tester)
	}
}
