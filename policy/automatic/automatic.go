// Package automatic implements the automatic update policy: every change
// event flushes and archives everything cached under the affected root.
package automatic

import "github.com/IvanBrykalov/viewcache/policy"

// ID is the identifier of the automatic policy.
const ID = "automatic"

type automatic[E comparable] struct{}

// New returns the automatic update policy.
func New[E comparable]() policy.Policy[E] { return automatic[E]{} }

// ID implements policy.Policy.
func (automatic[E]) ID() string { return ID }

// Name implements policy.Policy.
func (automatic[E]) Name() string { return "Automatic" }

// Tester maps any event, including a nil one, to a root-wide flush+archive.
func (automatic[E]) Tester(any) policy.Tester[E] {
	return policy.NewAllTester[E](policy.Flush | policy.Archive)
}

// InitialChildren implements policy.Policy; the automatic policy never seeds.
func (automatic[E]) InitialChildren(E) ([]E, bool) { return nil, false }

// InitialProperties implements policy.Policy; the automatic policy never seeds.
func (automatic[E]) InitialProperties(E) (map[string]any, bool) { return nil, false }
