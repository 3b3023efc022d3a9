package policy

// Decorator wraps a base policy and delegates everything it does not
// override. It is used to layer session-specific behavior on top of a
// built-in policy without reimplementing it.
type Decorator[E comparable] struct {
	base   Policy[E]
	id     string
	name   string
	tester func(event any) Tester[E]
}

// DecoratorOption configures a Decorator.
type DecoratorOption[E comparable] func(*Decorator[E])

// WithID overrides the policy ID.
func WithID[E comparable](id string) DecoratorOption[E] {
	return func(d *Decorator[E]) { d.id = id }
}

// WithName overrides the display name.
func WithName[E comparable](name string) DecoratorOption[E] {
	return func(d *Decorator[E]) { d.name = name }
}

// WithTester installs an event hook consulted before the base policy.
// Returning nil from fn falls through to the base policy.
func WithTester[E comparable](fn func(event any) Tester[E]) DecoratorOption[E] {
	return func(d *Decorator[E]) { d.tester = fn }
}

// Decorate wraps base. It panics on a nil base: a decorator without a base
// has nothing to delegate to.
func Decorate[E comparable](base Policy[E], opts ...DecoratorOption[E]) *Decorator[E] {
	if base == nil {
		panic("policy: Decorate requires a base policy")
	}
	d := &Decorator[E]{base: base}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Base returns the wrapped policy.
func (d *Decorator[E]) Base() Policy[E] { return d.base }

// ID implements Policy.
func (d *Decorator[E]) ID() string {
	if d.id != "" {
		return d.id
	}
	return d.base.ID()
}

// Name implements Policy.
func (d *Decorator[E]) Name() string {
	if d.name != "" {
		return d.name
	}
	return d.base.Name()
}

// Tester implements Policy.
func (d *Decorator[E]) Tester(event any) Tester[E] {
	if d.tester != nil {
		if t := d.tester(event); t != nil {
			return t
		}
	}
	return d.base.Tester(event)
}

// InitialChildren implements Policy.
func (d *Decorator[E]) InitialChildren(root E) ([]E, bool) { return d.base.InitialChildren(root) }

// InitialProperties implements Policy.
func (d *Decorator[E]) InitialProperties(root E) (map[string]any, bool) {
	return d.base.InitialProperties(root)
}

// CanRefreshDirty forwards to the base policy when it is a DirtyRefresher
// and denies otherwise.
func (d *Decorator[E]) CanRefreshDirty(entry EntryView, key string) bool {
	if r, ok := d.base.(DirtyRefresher); ok {
		return r.CanRefreshDirty(entry, key)
	}
	return false
}

var (
	_ Policy[string] = (*Decorator[string])(nil)
	_ DirtyRefresher = (*Decorator[string])(nil)
)
