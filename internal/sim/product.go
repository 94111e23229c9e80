package sim

import (
	"context"
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

var productParameterSpecs = map[string]spec.Spec{
	"requiredMass": spec.Q("g", "minimum mass of product one production run must deliver"),
}

var productOutputSpecs = map[string]spec.Spec{
	"massProduced":   spec.Q("g", "product mass recovered at the end of the run"),
	"sufficientMass": spec.Value(spec.Bool, "whether the run delivered the required mass"),
	"totalCost":      spec.Q("EUR", "total cost of one production run"),
	"totalTime":      spec.Q("h", "total duration of one production run"),
}

// Product models the manufacture of a single product through a sequence of
// process steps. Evaluating it runs the sequence from zeroed inputs and
// checks the result against the product requirements.
type Product struct {
	*component.Base
	sequence *ProcessSequence
}

// NewProduct creates a product named name inside facility, manufactured by
// running the given steps in order. An empty name defaults to "Product".
func NewProduct(facility *Facility, name string, steps ...Step) (*Product, error) {
	if name == "" {
		name = "Product"
	}
	p := &Product{}
	p.Base = component.NewBase(p, component.Config{
		Name:       name,
		Parameters: productParameterSpecs,
		Outputs:    productOutputSpecs,
		Defaults:   map[string]any{"requiredMass": "0 g"},
	})
	p.SetFacility(facility)

	sequence, err := NewProcessSequence(p, steps...)
	if err != nil {
		return nil, fmt.Errorf("build process sequence for %s: %w", name, err)
	}
	p.sequence = sequence
	facility.attach(p)
	return p, nil
}

// Sequence returns the process sequence manufacturing this product.
func (p *Product) Sequence() *ProcessSequence { return p.sequence }

// FindStep looks up a process step of this product by component name.
func (p *Product) FindStep(name string) (component.Component, error) {
	return p.sequence.FindStep(name)
}

// Evaluate models one production run of this product. It zeroes the process
// inputs, runs the process sequence, then aggregates cost and time across
// the steps and checks the recovered mass against the product requirement.
func (p *Product) Evaluate(ctx context.Context) error {
	inputs := p.sequence.Inputs()
	for _, name := range inputs.Names() {
		sp, err := inputs.ItemSpec(name)
		if err != nil {
			return err
		}
		zero, ok := spec.ZeroOf(sp)
		if !ok {
			return fmt.Errorf("input %q of %s has no zero element", name, p.sequence.Name())
		}
		if err := inputs.Set(name, zero); err != nil {
			return err
		}
	}
	if err := p.sequence.Run(ctx); err != nil {
		return err
	}

	massProduced, err := p.sequence.Outputs().Quantity("mass")
	if err != nil {
		return err
	}
	requiredMass, err := p.Parameters().Quantity("requiredMass")
	if err != nil {
		return err
	}
	enough, err := massProduced.Cmp(requiredMass)
	if err != nil {
		return err
	}
	costs, err := p.sequence.StepOutputs("cost")
	if err != nil {
		return err
	}
	durations, err := p.sequence.StepOutputs("duration")
	if err != nil {
		return err
	}
	totalCost, err := sumQuantities(costs)
	if err != nil {
		return err
	}
	totalTime, err := sumQuantities(durations)
	if err != nil {
		return err
	}

	if err := p.Outputs().Set("massProduced", massProduced); err != nil {
		return err
	}
	if err := p.Outputs().Set("sufficientMass", enough >= 0); err != nil {
		return err
	}
	if err := p.Outputs().Set("totalCost", totalCost); err != nil {
		return err
	}
	return p.Outputs().Set("totalTime", totalTime)
}

// LoadParameters loads parameters not just for the product itself but for
// every step in its process sequence.
func (p *Product) LoadParameters() error {
	if err := p.Base.LoadParameters(); err != nil {
		return err
	}
	return p.sequence.LoadParameters()
}

// Extract renders a collection of the product and its process sequence as a
// plain nested map.
func (p *Product) Extract(collection string) (map[string]any, error) {
	result, err := p.Base.Extract(collection)
	if err != nil {
		return nil, err
	}
	sequence, err := p.sequence.Extract(collection)
	if err != nil {
		return nil, err
	}
	result["sequence"] = sequence
	return result, nil
}

func sumQuantities(values []units.Quantity) (units.Quantity, error) {
	total := values[0]
	for _, v := range values[1:] {
		var err error
		if total, err = total.Add(v); err != nil {
			return units.Quantity{}, err
		}
	}
	return total, nil
}
