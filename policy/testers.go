package policy

import "slices"

// AllTester applies the same flags to every element under a root.
type AllTester[E comparable] struct {
	flags Flags
}

// NewAllTester returns a tester applying flags to every element.
func NewAllTester[E comparable](flags Flags) AllTester[E] {
	return AllTester[E]{flags: flags.Normalize()}
}

// UpdateFlags implements Tester.
func (t AllTester[E]) UpdateFlags(E, Path[E]) Flags { return t.flags }

// Includes implements Tester. A root-wide flush covers any later tester:
// elements it flushed and nobody touched since hold no data left to act on.
// A root-wide dirty pass only covers other root-wide dirty passes.
func (t AllTester[E]) Includes(other Tester[E]) bool {
	if t.flags.Has(Flush) {
		return true
	}
	o, ok := other.(AllTester[E])
	return ok && o.flags == t.flags
}

// Flags returns the flags applied to every element.
func (t AllTester[E]) Flags() Flags { return t.flags }

func (t AllTester[E]) String() string { return "all(" + t.flags.String() + ")" }

// EditTester flushes an edited element together with its ancestor chain and
// every element below it.
type EditTester[E comparable] struct {
	input E
	path  Path[E]
}

// NewEditTester returns the tester for an ElementEdited event.
func NewEditTester[E comparable](ev ElementEdited[E]) *EditTester[E] {
	return &EditTester[E]{input: ev.Input, path: ev.Path.Clone()}
}

// UpdateFlags implements Tester.
func (t *EditTester[E]) UpdateFlags(input E, path Path[E]) Flags {
	if input != t.input {
		return 0
	}
	// ancestors (and the element itself) or descendants
	if t.path.HasPrefix(path) || path.HasPrefix(t.path) {
		return Flush
	}
	return 0
}

// Includes implements Tester.
func (t *EditTester[E]) Includes(other Tester[E]) bool {
	o, ok := other.(*EditTester[E])
	if !ok {
		return false
	}
	return o == t || (o.input == t.input && o.path.Equal(t.path))
}

func (t *EditTester[E]) String() string { return "edit" }

// PropsTester drops selected properties (or all of them) from every element,
// keeping tree data.
type PropsTester[E comparable] struct {
	keys []string
}

// NewPropsTester returns the tester for a PropertiesChanged event.
func NewPropsTester[E comparable](ev PropertiesChanged) *PropsTester[E] {
	keys := slices.Clone(ev.Keys)
	slices.Sort(keys)
	return &PropsTester[E]{keys: slices.Compact(keys)}
}

// UpdateFlags implements Tester.
func (t *PropsTester[E]) UpdateFlags(E, Path[E]) Flags {
	if len(t.keys) == 0 {
		return FlushAllProperties
	}
	return FlushPartialProperties
}

// PropertiesToFlush implements PropertiesTester.
func (t *PropsTester[E]) PropertiesToFlush(E, Path[E], bool) []string { return t.keys }

// Includes implements Tester.
func (t *PropsTester[E]) Includes(other Tester[E]) bool {
	o, ok := other.(*PropsTester[E])
	if !ok {
		return false
	}
	if len(t.keys) == 0 {
		return true
	}
	if len(o.keys) == 0 {
		return false
	}
	for _, k := range o.keys {
		if _, found := slices.BinarySearch(t.keys, k); !found {
			return false
		}
	}
	return true
}

func (t *PropsTester[E]) String() string { return "props" }

var (
	_ Tester[string]           = AllTester[string]{}
	_ Tester[string]           = (*EditTester[string])(nil)
	_ PropertiesTester[string] = (*PropsTester[string])(nil)
)
