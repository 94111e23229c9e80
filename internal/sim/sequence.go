package sim

import (
	"context"
	"errors"
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/units"
)

// ErrEmptySequence is returned when a process sequence is built without steps.
var ErrEmptySequence = errors.New("process sequence needs at least one step")

// ProcessSequence chains process steps into a full process. It handles
// passing the outputs of each step to the inputs of the next, and exposes the
// overall inputs and outputs of the process: its inputs collection is the
// first step's inputs store, its outputs collection is a store of its own
// filled from the last step after a run.
type ProcessSequence struct {
	product *Product
	steps   []Step
	outputs *component.Store
}

// NewProcessSequence wires steps into a sequence owned by product.
func NewProcessSequence(product *Product, steps ...Step) (*ProcessSequence, error) {
	if len(steps) == 0 {
		return nil, ErrEmptySequence
	}
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if _, dup := seen[step.Name()]; dup {
			return nil, fmt.Errorf("duplicate step name %q", step.Name())
		}
		seen[step.Name()] = struct{}{}
		step.SetFacility(product.Facility())
		if i > 0 {
			step.SetUpstream(steps[i-1])
		}
	}
	s := &ProcessSequence{product: product, steps: steps}
	s.outputs = component.NewStore(steps[len(steps)-1].Outputs().Specs(), "output", s)
	return s, nil
}

// Name identifies the sequence as a component.
func (s *ProcessSequence) Name() string { return "ProcessSequence" }

// Steps returns the steps in processing order.
func (s *ProcessSequence) Steps() []Step { return s.steps }

// Inputs returns the material stream entering the first step. The store is
// shared with that step, not copied.
func (s *ProcessSequence) Inputs() *component.Store { return s.steps[0].Inputs() }

// Outputs returns the results of the whole process, filled from the last
// step once the sequence has run.
func (s *ProcessSequence) Outputs() *component.Store { return s.outputs }

// Collection resolves a collection name against the sequence boundaries.
func (s *ProcessSequence) Collection(name string) (*component.Store, error) {
	switch name {
	case component.Inputs:
		return s.Inputs(), nil
	case component.Outputs:
		return s.Outputs(), nil
	}
	return nil, fmt.Errorf("%w: %q in %s", component.ErrUnknownCollection, name, s.Name())
}

// Facility returns the facility the sequence's product belongs to.
func (s *ProcessSequence) Facility() component.Component {
	return s.product.Facility()
}

// FindStep looks up a process step by component name.
func (s *ProcessSequence) FindStep(name string) (component.Component, error) {
	for _, step := range s.steps {
		if step.Name() == name {
			return step, nil
		}
	}
	return nil, fmt.Errorf("%w: process step %q; do you need to name the step at construction?",
		component.ErrNotFound, name)
}

// Run executes every step in order, passing each step's outputs into the
// next step's inputs, then fills the sequence outputs from the last step.
func (s *ProcessSequence) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if i > 0 {
			if err := transfer(s.steps[i-1], step); err != nil {
				return err
			}
		}
		if err := step.Run(ctx); err != nil {
			return fmt.Errorf("run step %s: %w", step.Name(), err)
		}
	}
	last := s.steps[len(s.steps)-1]
	for _, name := range last.Outputs().Names() {
		value, err := last.Outputs().Get(name)
		if err != nil {
			if errors.Is(err, component.ErrNotFound) {
				continue
			}
			return err
		}
		if err := s.outputs.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// LoadParameters loads the parameters of every step.
func (s *ProcessSequence) LoadParameters() error {
	for _, step := range s.steps {
		if err := step.LoadParameters(); err != nil {
			return err
		}
	}
	return nil
}

// StepOutputs gathers the named output of every step, converted to the unit
// of the first step's value.
func (s *ProcessSequence) StepOutputs(item string) ([]units.Quantity, error) {
	values := make([]units.Quantity, len(s.steps))
	for i, step := range s.steps {
		q, err := step.Outputs().Quantity(item)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		if i > 0 {
			if q, err = q.To(values[0].Unit()); err != nil {
				return nil, fmt.Errorf("step %s: %w", step.Name(), err)
			}
		}
		values[i] = q
	}
	return values, nil
}

// StepIncrements gathers how much the named item changes across each step,
// output minus input, in the unit of the first step's change.
func (s *ProcessSequence) StepIncrements(item string) ([]units.Quantity, error) {
	values := make([]units.Quantity, len(s.steps))
	for i, step := range s.steps {
		out, err := step.Outputs().Quantity(item)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		in, err := step.Inputs().Quantity(item)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		diff, err := out.Sub(in)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if diff, err = diff.To(values[0].Unit()); err != nil {
				return nil, err
			}
		}
		values[i] = diff
	}
	return values, nil
}

// Extract renders a collection of the sequence and its steps as a plain
// nested map.
func (s *ProcessSequence) Extract(collection string) (map[string]any, error) {
	store, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"name": s.Name()}
	for key, value := range store.Extract() {
		result[key] = value
	}
	steps := make([]any, 0, len(s.steps))
	for _, step := range s.steps {
		extracted, err := step.Extract(collection)
		if err != nil {
			return nil, err
		}
		steps = append(steps, extracted)
	}
	result["steps"] = steps
	return result, nil
}

// transfer passes the material stream between adjacent steps, copying every
// input the receiving step declares from the sending step's outputs.
func transfer(from, to Step) error {
	for _, name := range to.Inputs().Names() {
		value, err := from.Outputs().Get(name)
		if err != nil {
			return fmt.Errorf("pass %q from %s to %s: %w", name, from.Name(), to.Name(), err)
		}
		if err := to.Inputs().Set(name, value); err != nil {
			return err
		}
	}
	return nil
}
