package sensitivity

import (
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/opt"
)

// VariableSpec declares one uncertain aspect of the facility: which component
// item to vary and the distribution of its values.
type VariableSpec struct {
	// Distribution draws the values.
	Distribution Distribution
	// Selector locates the component within the facility.
	Selector opt.Selector
	// Item is the name within the component's collection.
	Item string
	// Collection is inputs, outputs or parameters; parameters by default.
	Collection string
}

// Variable is a component item redrawn from a distribution for every
// Monte-Carlo trial. The component is resolved through the selector on every
// access; the name is fixed at construction for stable reporting.
type Variable struct {
	facility   component.Component
	dist       Distribution
	selector   opt.Selector
	item       string
	collection string
	name       string
	value      any
}

func newVariable(facility component.Component, spec VariableSpec) (*Variable, error) {
	v := &Variable{
		facility:   facility,
		dist:       spec.Distribution,
		selector:   spec.Selector,
		item:       spec.Item,
		collection: spec.Collection,
	}
	comp, err := v.Component()
	if err != nil {
		return nil, fmt.Errorf("create variable for item %q: %w", spec.Item, err)
	}
	v.name = fmt.Sprintf("%s[%s]", comp.Name(), spec.Item)
	return v, nil
}

// Name identifies the variable as "Component[item]".
func (v *Variable) Name() string { return v.name }

// Value returns the most recently drawn value, nil before the first trial.
func (v *Variable) Value() any { return v.value }

// Component resolves the component this variable writes to.
func (v *Variable) Component() (component.Component, error) {
	return v.selector.Resolve(v.facility)
}

// Draw replaces the value with a fresh draw from the distribution.
func (v *Variable) Draw(src *opt.Source) {
	v.value = v.dist.Draw(src)
}

// UpdateFacility pushes the current value into the component collection,
// validating it against the item's spec.
func (v *Variable) UpdateFacility() error {
	comp, err := v.Component()
	if err != nil {
		return err
	}
	store, err := comp.Collection(v.collection)
	if err != nil {
		return fmt.Errorf("variable %s: %w", v.name, err)
	}
	if err := store.Set(v.item, v.value); err != nil {
		return fmt.Errorf("variable %s: %w", v.name, err)
	}
	return nil
}

func (v *Variable) String() string {
	return fmt.Sprintf("%s~%s", v.name, v.dist)
}
