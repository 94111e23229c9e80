package opt

import (
	"fmt"

	"biopharma/internal/component"
)

// Tracking controls how the logbook records a variable across generations.
type Tracking int

const (
	// TrackNone leaves the variable out of the logbook.
	TrackNone Tracking = iota
	// TrackNumerical records min, max, mean and standard deviation per
	// generation.
	TrackNumerical
	// TrackDiscrete records value counts per generation.
	TrackDiscrete
)

// VariableSpec declares one gene of the genome: which component item to vary
// and how to draw values for it.
type VariableSpec struct {
	// Generator draws and validates values.
	Generator Generator
	// Selector locates the component within the facility.
	Selector Selector
	// Item is the name within the component's collection.
	Item string
	// Collection is inputs, outputs or parameters; parameters by default.
	Collection string
	// Track controls logbook recording for this variable.
	Track Tracking
}

// Variable is one gene of an individual: a value destined for a component
// item. The component is resolved through the selector on every access, so
// the variable follows structural changes in the facility; the name is fixed
// at construction for stable reporting.
type Variable struct {
	individual *Individual
	generator  Generator
	selector   Selector
	item       string
	collection string
	track      Tracking
	name       string
	value      any
}

func newVariable(ind *Individual, spec VariableSpec) (*Variable, error) {
	v := &Variable{
		individual: ind,
		generator:  spec.Generator,
		selector:   spec.Selector,
		item:       spec.Item,
		collection: spec.Collection,
		track:      spec.Track,
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

// Item returns the item name within the component collection.
func (v *Variable) Item() string { return v.item }

// CollectionName returns the collection the variable writes to.
func (v *Variable) CollectionName() string { return v.collection }

// Value returns the current gene value.
func (v *Variable) Value() any { return v.value }

func (v *Variable) setValue(value any) { v.value = value }

// Individual returns the individual this variable belongs to. Generator
// hooks use it to reach the optimiser and the rest of the genome.
func (v *Variable) Individual() *Individual { return v.individual }

// Component resolves the component this variable writes to.
func (v *Variable) Component() (component.Component, error) {
	if v.individual == nil || v.individual.facility == nil {
		return nil, fmt.Errorf("variable for item %q is not attached to a facility", v.item)
	}
	return v.selector.Resolve(v.individual.facility)
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

// Draw replaces the value with a fresh draw and pushes it into the facility.
func (v *Variable) Draw(src *Source) error {
	value, err := v.generator.Draw(src, v)
	if err != nil {
		return err
	}
	v.value = value
	return v.UpdateFacility()
}

// IsValid reports whether the current value satisfies the generator's
// constraints.
func (v *Variable) IsValid() (bool, error) {
	return v.generator.IsValid(v)
}

// Repair restores validity if the value violates the generator's constraints,
// then pushes the result into the facility.
func (v *Variable) Repair(src *Source) error {
	valid, err := v.generator.IsValid(v)
	if err != nil {
		return err
	}
	if valid {
		return nil
	}
	if err := v.generator.Repair(src, v); err != nil {
		return err
	}
	return v.UpdateFacility()
}

// Equal reports whether two variables denote the same gene with the same
// value.
func (v *Variable) Equal(other *Variable) bool {
	if v.item != other.item || v.collection != other.collection {
		return false
	}
	if v.name != other.name {
		return false
	}
	return sameValue(v.value, other.value)
}

// clone copies the variable for a new individual. Generator and selector are
// shared; the value is copied.
func (v *Variable) clone(ind *Individual) *Variable {
	cp := *v
	cp.individual = ind
	return &cp
}

func (v *Variable) String() string {
	return fmt.Sprintf("%s=%s", v.name, v.generator.Describe(v))
}
