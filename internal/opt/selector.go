package opt

import (
	"fmt"

	"biopharma/internal/component"
)

// Selector locates the component a variable or objective refers to. Variables
// resolve against the shared facility on every access, so selectors that
// navigate the product structure keep working when the facility is reloaded.
type Selector interface {
	Resolve(root component.Component) (component.Component, error)
	String() string
}

// FacilityOf selects the facility of the component the selector is applied
// to. Applied to a facility it selects the facility itself.
type FacilityOf struct{}

func (FacilityOf) Resolve(root component.Component) (component.Component, error) {
	fac := facilityOf(root)
	if fac == nil {
		return nil, fmt.Errorf("component %s has no facility", root.Name())
	}
	return fac, nil
}

func (FacilityOf) String() string { return "facility" }

// SelfOf selects the component the selector is applied to, e.g. an analysis
// component exposing its own outputs as objectives.
type SelfOf struct{}

func (SelfOf) Resolve(root component.Component) (component.Component, error) {
	return root, nil
}

func (SelfOf) String() string { return "self" }

// StepNamed selects a process step by name within one of the facility's
// products.
type StepNamed struct {
	Step string
	// ProductIndex selects the product holding the step, the first by default.
	ProductIndex int
}

func (s StepNamed) Resolve(root component.Component) (component.Component, error) {
	product, err := productAt(root, s.ProductIndex)
	if err != nil {
		return nil, err
	}
	finder, ok := product.(component.StepContainer)
	if !ok {
		return nil, fmt.Errorf("product %s cannot locate steps", product.Name())
	}
	step, err := finder.FindStep(s.Step)
	if err != nil {
		return nil, fmt.Errorf("select step %q: %w", s.Step, err)
	}
	return step, nil
}

func (s StepNamed) String() string {
	return fmt.Sprintf("step(%q, %d)", s.Step, s.ProductIndex)
}

// ProductAt selects one of the facility's products by position.
type ProductAt struct {
	Index int
}

func (p ProductAt) Resolve(root component.Component) (component.Component, error) {
	return productAt(root, p.Index)
}

func (p ProductAt) String() string { return fmt.Sprintf("product(%d)", p.Index) }

func facilityOf(root component.Component) component.Component {
	if root == nil {
		return nil
	}
	if fac := root.Facility(); fac != nil {
		return fac
	}
	return nil
}

func productAt(root component.Component, index int) (component.Component, error) {
	fac := facilityOf(root)
	if fac == nil {
		return nil, fmt.Errorf("component %s has no facility", root.Name())
	}
	container, ok := fac.(component.ProductContainer)
	if !ok {
		return nil, fmt.Errorf("facility %s has no products", fac.Name())
	}
	products := container.Products()
	if index < 0 || index >= len(products) {
		return nil, fmt.Errorf("facility %s has no product at index %d", fac.Name(), index)
	}
	return products[index], nil
}
