//go:build go1.18

package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/IvanBrykalov/viewcache/policy"
)

// Fuzz children windows: any sequence of two windows over a list must
// answer exactly the source's elements and leave the store consistent.
func FuzzCache_ChildrenWindows(f *testing.F) {
	// Seed corpus: overlapping, disjoint, out of range, empty.
	f.Add(10, 0, 5, 3, 5)
	f.Add(10, 5, 5, 0, 10)
	f.Add(3, 2, 10, 0, 1)
	f.Add(0, 0, 1, 0, 0)
	f.Add(64, 60, 4, 0, 64)

	f.Fuzz(func(t *testing.T, size, off1, len1, off2, len2 int) {
		// Cap sizes to keep memory bounded during fuzzing.
		const limit = 1 << 8
		clamp := func(v int) int { return (v%limit + limit) % limit }
		size, off1, len1, off2, len2 = clamp(size), clamp(off1), clamp(len1), clamp(off2), clamp(len2)

		n := newFakeNode()
		kids := make([]string, size)
		for i := range kids {
			kids[i] = "c" + strconv.Itoa(i)
		}
		n.setKids(pk("in"), kids...)
		c := newTestCache(t, Options[string]{Capacity: 16})
		req := Request[string]{Node: n, Input: "in", Path: policy.Path[string]{}}

		for _, w := range []span{{off1, len1}, {off2, len2}} {
			got, err := c.Children(context.Background(), ChildrenRequest[string]{Request: req, Offset: w.offset, Length: w.length})
			if err != nil {
				t.Fatalf("window %v: %v", w, err)
			}
			for i := w.offset; i < w.offset+w.length; i++ {
				v, ok := got[i]
				if i < size && (!ok || v != kids[i]) {
					t.Fatalf("window %v: index %d = %q (%v), want %q", w, i, v, ok, kids[i])
				}
				if i >= size && ok {
					t.Fatalf("window %v: index %d past the end = %q", w, i, v)
				}
			}
			if len(got) > w.length {
				t.Fatalf("window %v: %d results", w, len(got))
			}
		}
		checkStore(t, c)
	})
}

// Fuzz key identity: keys built from equal parts are equal and hash alike,
// keys that differ in any part are not equal.
func FuzzKey_Identity(f *testing.F) {
	f.Add("in", "a", "b")
	f.Add("", "", "")
	f.Add("a/b", "c", "")
	f.Add("αβγ", "🙂", "x")

	f.Fuzz(func(t *testing.T, input, p1, p2 string) {
		n := newFakeNode()
		k1 := newKey(input, Node[string](n), input, policy.Path[string]{p1, p2})
		k2 := newKey(input, Node[string](n), input, policy.Path[string]{p1, p2})
		if !k1.equal(&k2) || k1.hash != k2.hash {
			t.Fatalf("equal parts, different keys: %x vs %x", k1.hash, k2.hash)
		}

		// joining the segments must not collide with the split path
		k3 := newKey(input, Node[string](n), input, policy.Path[string]{p1 + p2})
		if k1.equal(&k3) {
			t.Fatalf("path %q/%q equals %q", p1, p2, p1+p2)
		}

		other := newFakeNode()
		k4 := newKey(input, Node[string](other), input, policy.Path[string]{p1, p2})
		if k1.equal(&k4) {
			t.Fatal("keys for different nodes must differ")
		}
	})
}
