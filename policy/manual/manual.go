// Package manual implements the manual update policy: target changes only
// mark cached data dirty, and data is refetched after an explicit refresh or
// after the user edits an element.
package manual

import "github.com/IvanBrykalov/viewcache/policy"

// ID is the identifier of the manual policy.
const ID = "manual"

type manual[E comparable] struct{}

// New returns the manual update policy.
func New[E comparable]() policy.Policy[E] { return manual[E]{} }

// ID implements policy.Policy.
func (manual[E]) ID() string { return ID }

// Name implements policy.Policy.
func (manual[E]) Name() string { return "Manual" }

// Tester implements policy.Policy.
//
//   - RefreshEvent: flush and archive everything under the root
//   - ElementEdited: flush the edited element's chain
//   - PropertiesChanged: drop the named properties, keep tree data
//   - anything else: mark everything dirty
func (manual[E]) Tester(event any) policy.Tester[E] {
	switch ev := event.(type) {
	case policy.RefreshEvent, *policy.RefreshEvent:
		return policy.NewAllTester[E](policy.Flush | policy.Archive)
	case policy.ElementEdited[E]:
		return policy.NewEditTester(ev)
	case *policy.ElementEdited[E]:
		return policy.NewEditTester(*ev)
	case policy.PropertiesChanged:
		return policy.NewPropsTester[E](ev)
	default:
		return policy.NewAllTester[E](policy.Dirty)
	}
}

// InitialChildren seeds a fresh root with an empty child list so the view
// shows a blank placeholder until the first refresh.
func (manual[E]) InitialChildren(E) ([]E, bool) { return []E{}, true }

// InitialProperties seeds a fresh root with an empty property map.
func (manual[E]) InitialProperties(E) (map[string]any, bool) { return map[string]any{}, true }

// CanRefreshDirty allows a dirty entry to fetch only properties it never
// archived: those cannot be inconsistent with a previously shown value.
func (manual[E]) CanRefreshDirty(entry policy.EntryView, key string) bool {
	_, archived := entry.ArchivedProperty(key)
	return !archived
}

var _ policy.DirtyRefresher = manual[string]{}
