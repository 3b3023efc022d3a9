package policy

// Path is the ordered ancestor chain from the root input down to the
// described element. An empty path describes the input itself.
type Path[E comparable] []E

// Last returns the described element, or false for an empty path.
func (p Path[E]) Last() (E, bool) {
	if len(p) == 0 {
		var zero E
		return zero, false
	}
	return p[len(p)-1], true
}

// Equal reports whether p and q have the same segments.
func (p Path[E]) Equal(q Path[E]) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading part of p (or equal to it).
func (p Path[E]) HasPrefix(prefix Path[E]) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Contains reports whether e is one of p's segments.
func (p Path[E]) Contains(e E) bool {
	for _, s := range p {
		if s == e {
			return true
		}
	}
	return false
}

// Append returns a new path with e added; p is not modified.
func (p Path[E]) Append(e E) Path[E] {
	out := make(Path[E], len(p), len(p)+1)
	copy(out, p)
	return append(out, e)
}

// Clone returns a copy of p that shares no storage with it.
func (p Path[E]) Clone() Path[E] {
	if p == nil {
		return nil
	}
	out := make(Path[E], len(p))
	copy(out, p)
	return out
}
