package policy

// RefreshEvent is an explicit, user-triggered request to refresh the view.
type RefreshEvent struct{}

// ElementEdited reports that the user changed the value of one element, so
// its own data, its ancestors' summaries and its descendants are stale.
type ElementEdited[E comparable] struct {
	Input E
	Path  Path[E]
}

// PropertiesChanged reports that the presentation of some properties changed
// (e.g. a number format switch) while the target state did not. Empty Keys
// means every property.
type PropertiesChanged struct {
	Keys []string
}
