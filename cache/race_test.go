package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/IvanBrykalov/viewcache/policy"
	"github.com/IvanBrykalov/viewcache/policy/automatic"
	"github.com/IvanBrykalov/viewcache/policy/manual"
)

// A mixed workload of concurrent reads, flushes, policy switches and root
// changes on a small cache. Should pass under `-race` without detector
// reports and leave the store consistent.
func TestRace_Mixed(t *testing.T) {
	n := newFakeNode()
	for i := 0; i < 8; i++ {
		var kids []string
		for j := 0; j < 20; j++ {
			kids = append(kids, "k"+strconv.Itoa(j))
		}
		n.setKids(pk("s", "p"+strconv.Itoa(i)), kids...)
		n.setProp(pk("s", "p"+strconv.Itoa(i)), "v", i)
	}
	c := newTestCache(t, Options[string]{
		Capacity:             64,
		Policies:             []policy.Policy[string]{automatic.New[string](), manual.New[string]()},
		MaxConcurrentFetches: 4,
	})
	c.AttachRoot("s")

	workers := 4 * runtime.GOMAXPROCS(0)
	deadline := time.Now().Add(time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				req := Request[string]{Node: n, Input: "s", Path: policy.Path[string]{"p" + strconv.Itoa(r.Intn(8))}}
				switch r.Intn(100) {
				case 0, 1: // ~2% policy switch
					ids := []string{automatic.ID, manual.ID}
					_ = c.SetActivePolicy(ids[r.Intn(2)])
				case 2, 3, 4: // ~3% flush
					c.NotifyEvent("step")
				case 5: // ~1% refresh
					c.Refresh()
				case 6: // ~1% root churn
					c.DetachRoot("s")
					c.AttachRoot("s")
				case 7, 8, 9, 10, 11, 12, 13, 14, 15, 16: // ~10% properties
					c.Properties(ctx, PropertiesRequest[string]{Request: req, Keys: []string{"v", "is_changed.v"}})
				case 17, 18, 19, 20, 21, 22, 23, 24, 25, 26: // ~10% all children
					_, _ = c.Children(ctx, ChildrenRequest[string]{Request: req, Offset: -1, Length: -1})
				default:
					off := r.Intn(20)
					_, _ = c.Children(ctx, ChildrenRequest[string]{Request: req, Offset: off, Length: 1 + r.Intn(5)})
					_, _ = c.ChildCount(ctx, req)
				}
			}
		}(w)
	}
	wg.Wait()
	checkStore(t, c)
}

// One hundred goroutines ask for the same children window concurrently.
// The source runs at most once (flight coalescing).
func TestRace_ChildrenCoalesce(t *testing.T) {
	n := newFakeNode()
	n.delay = 2 * time.Millisecond // simulate I/O
	n.setKids(pk("s"), "a", "b", "c", "d")
	c := newTestCache(t, Options[string]{})
	req := ChildrenRequest[string]{Request: Request[string]{Node: n, Input: "s"}, Offset: 0, Length: 4}

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			got, err := c.Children(context.Background(), req)
			if err != nil {
				t.Errorf("Children error: %v", err)
				return
			}
			if len(got) != 4 || got[3] != "d" {
				t.Errorf("unexpected children: %v", got)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := n.count(KindChildren); got > 1 {
		t.Fatalf("source should run at most once, got %d", got)
	}

	// Subsequent call should be a pure cache hit.
	if _, err := c.Children(context.Background(), req); err != nil {
		t.Fatalf("second Children failed: %v", err)
	}
	if got := n.count(KindChildren); got > 1 {
		t.Fatalf("cached window refetched: %d calls", got)
	}
}
