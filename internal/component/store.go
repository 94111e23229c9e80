package component

import (
	"fmt"
	"sort"

	"biopharma/internal/spec"
	"biopharma/internal/units"
)

// Store is a key-value collection whose entries conform to specifications.
// Nested specs materialise child stores; computed specs answer reads through
// their spec instead of stored state.
type Store struct {
	kind     string
	specs    map[string]spec.Spec
	values   map[string]any
	children map[string]*Store
	owner    Component
}

// NewStore builds a store of the given kind ("input", "output", "parameter")
// from a specification map. The specs are cloned so the store owns them.
func NewStore(specs map[string]spec.Spec, kind string, owner Component) *Store {
	s := &Store{
		kind:     kind,
		specs:    make(map[string]spec.Spec, len(specs)),
		values:   make(map[string]any),
		children: make(map[string]*Store),
		owner:    owner,
	}
	s.MergeSpec(specs)
	return s
}

// MergeSpec adds entries from another specification map. Items already
// specified are left untouched.
func (s *Store) MergeSpec(specs map[string]spec.Spec) {
	for name, sp := range specs {
		if _, exists := s.specs[name]; exists {
			continue
		}
		clone := sp.Clone()
		if b, ok := clone.(spec.Binder); ok {
			b.Bind(s.owner)
		}
		s.specs[name] = clone
		if n, ok := clone.(spec.Nester); ok {
			s.children[name] = NewStore(n.Nested(), s.kind, s.owner)
		}
	}
}

// ItemSpec returns the specification governing an item.
func (s *Store) ItemSpec(item string) (spec.Spec, error) {
	sp, ok := s.specs[item]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, s.kind, item)
	}
	return sp, nil
}

// Specs returns a copy of the specification map, e.g. for deriving another
// store with the same shape.
func (s *Store) Specs() map[string]spec.Spec {
	specs := make(map[string]spec.Spec, len(s.specs))
	for name, sp := range s.specs {
		specs[name] = sp
	}
	return specs
}

// Has reports whether an item is specified.
func (s *Store) Has(item string) bool {
	_, ok := s.specs[item]
	return ok
}

// Names returns the specified item names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns an item after validating the value against its spec. Assigning
// to a nested item fans the value out into the child store.
func (s *Store) Set(item string, value any) error {
	sp, ok := s.specs[item]
	if !ok {
		return fmt.Errorf("%w: %q is not a valid %s", spec.ErrViolated, item, s.kind)
	}
	validated, err := sp.Validate(value)
	if err != nil {
		return fmt.Errorf("invalid value provided for %s %q: %w", s.kind, item, err)
	}
	if child, ok := s.children[item]; ok {
		dict, ok := validated.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s %q requires a nested mapping", spec.ErrViolated, s.kind, item)
		}
		for name, v := range dict {
			if err := child.Set(name, v); err != nil {
				return err
			}
		}
		return nil
	}
	s.values[item] = validated
	return nil
}

// Get reads an item. Computed items are evaluated through their spec; nested
// items return the child *Store.
func (s *Store) Get(item string) (any, error) {
	sp, ok := s.specs[item]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, s.kind, item)
	}
	if g, ok := sp.(spec.Getter); ok {
		return g.Get()
	}
	if child, ok := s.children[item]; ok {
		return child, nil
	}
	value, ok := s.values[item]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q has no value", ErrNotFound, s.kind, item)
	}
	return value, nil
}

// GetPath descends through nested stores to read an item, e.g.
// GetPath("titre", "var").
func (s *Store) GetPath(path ...string) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty item path", ErrNotFound)
	}
	var current any = s
	for _, item := range path {
		store, ok := current.(*Store)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a nested collection", ErrNotFound, item)
		}
		var err error
		current, err = store.Get(item)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Quantity reads an item that must hold a unit-tagged quantity.
func (s *Store) Quantity(item string) (units.Quantity, error) {
	value, err := s.Get(item)
	if err != nil {
		return units.Quantity{}, err
	}
	q, ok := value.(units.Quantity)
	if !ok {
		return units.Quantity{}, fmt.Errorf("%s %q is not a quantity", s.kind, item)
	}
	return q, nil
}

// Float reads an item that must hold a plain float.
func (s *Store) Float(item string) (float64, error) {
	value, err := s.Get(item)
	if err != nil {
		return 0, err
	}
	f, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("%s %q is not a float", s.kind, item)
	}
	return f, nil
}

// Int reads an item that must hold an int.
func (s *Store) Int(item string) (int, error) {
	value, err := s.Get(item)
	if err != nil {
		return 0, err
	}
	n, ok := value.(int)
	if !ok {
		return 0, fmt.Errorf("%s %q is not an int", s.kind, item)
	}
	return n, nil
}

// Bool reads an item that must hold a bool.
func (s *Store) Bool(item string) (bool, error) {
	value, err := s.Get(item)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%s %q is not a bool", s.kind, item)
	}
	return b, nil
}

// Extract renders the store as a plain nested map for serialization. Items
// without a value are skipped.
func (s *Store) Extract() map[string]any {
	result := make(map[string]any)
	for _, name := range s.Names() {
		if child, ok := s.children[name]; ok {
			result[name] = child.Extract()
			continue
		}
		value, err := s.Get(name)
		if err != nil {
			continue
		}
		result[name] = value
	}
	return result
}
