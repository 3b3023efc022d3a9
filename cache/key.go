package cache

import (
	"github.com/IvanBrykalov/viewcache/internal/util"
	"github.com/IvanBrykalov/viewcache/policy"
)

// key identifies one data entry. root anchors the entry to a region that is
// flushed as a unit; node, input and path identify the described element.
type key[E comparable] struct {
	root  E
	node  Node[E]
	input E
	path  policy.Path[E]
	hash  uint64
}

func newKey[E comparable](root E, node Node[E], input E, path policy.Path[E]) key[E] {
	k := key[E]{root: root, node: node, input: input, path: path.Clone()}
	h := util.NewHasher()
	h.Write(root)
	h.Separator()
	h.Write(node)
	h.Separator()
	h.Write(input)
	for _, seg := range path {
		h.Separator()
		h.Write(seg)
	}
	k.hash = h.Sum64()
	return k
}

func (k *key[E]) equal(o *key[E]) bool {
	return k.hash == o.hash &&
		k.root == o.root &&
		k.node == o.node &&
		k.input == o.input &&
		k.path.Equal(o.path)
}

// resolveRoot returns the first attached root equal to input or found on
// path. Without a match the input anchors its own region.
func resolveRoot[E comparable](roots []rootState[E], input E, path policy.Path[E]) E {
	for _, r := range roots {
		if r.root == input || path.Contains(r.root) {
			return r.root
		}
	}
	return input
}
