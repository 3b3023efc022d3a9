package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Concurrent joiners of one key get one leader, and every waiter sees the
// leader's result.
func TestGroup_JoinCoalesces(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var leaders int64
	release := make(chan struct{})

	const N = 32
	var wg sync.WaitGroup
	wg.Add(N)
	results := make([]int, N)
	for i := 0; i < N; i++ {
		go func(i int) {
			defer wg.Done()
			c, leader := g.Join("k")
			if leader {
				atomic.AddInt64(&leaders, 1)
				<-release
				g.Resolve("k", c, 7, nil)
			}
			v, err := c.Wait(context.Background())
			if err != nil {
				t.Errorf("Wait: %v", err)
			}
			results[i] = v
		}(i)
	}

	// wait until the leader is in flight before releasing it
	for g.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&leaders); got < 1 || got > N {
		t.Fatalf("unexpected leader count %d", got)
	}
	for i, v := range results {
		if v != 7 {
			t.Fatalf("result[%d]=%d, want 7", i, v)
		}
	}
	if g.Len() != 0 {
		t.Fatalf("in-flight map must be empty, got %d", g.Len())
	}
}

// Join hands out one leader; followers see the leader's result.
func TestGroup_JoinResolve(t *testing.T) {
	t.Parallel()

	var g Group[int, string]
	c1, leader1 := g.Join(1)
	c2, leader2 := g.Join(1)
	if !leader1 || leader2 {
		t.Fatalf("want exactly one leader, got %v %v", leader1, leader2)
	}
	if c1 != c2 {
		t.Fatal("followers must join the same call")
	}

	errBoom := errors.New("boom")
	g.Resolve(1, c1, "v", errBoom)

	v, err := c2.Wait(context.Background())
	if v != "v" || !errors.Is(err, errBoom) {
		t.Fatalf("Wait = %q, %v", v, err)
	}

	// resolved calls are forgotten: the next Join leads again
	if _, leader := g.Join(1); !leader {
		t.Fatal("Join after Resolve must lead")
	}
}

// A cancelled follower returns ctx.Err() without disturbing the leader.
func TestGroup_FollowerCancel(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	c, _ := g.Join("k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	follower, leader := g.Join("k")
	if leader {
		t.Fatal("second Join must follow")
	}
	if _, err := follower.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	g.Resolve("k", c, 3, nil)
	if v, err := c.Wait(context.Background()); v != 3 || err != nil {
		t.Fatalf("resolved Wait = %d, %v", v, err)
	}
}
