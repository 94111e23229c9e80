package sim

import (
	"context"
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

var streamInputSpecs = map[string]spec.Spec{
	"mass":   spec.Q("g", "total mass before this step"),
	"volume": spec.Q("L", "volume before this step"),
	"water":  spec.Q("L", "amount of water used"),
}

var streamOutputSpecs = map[string]spec.Spec{
	"mass":     spec.Q("g", "total mass remaining after this step"),
	"volume":   spec.Q("L", "volume remaining after this step"),
	"water":    spec.Q("L", "amount of water used"),
	"cost":     spec.Q("EUR", "cost of running this step once"),
	"duration": spec.Q("h", "time taken by this step"),
}

var stepParameterSpecs = map[string]spec.Spec{
	"effectiveYield": spec.Computed(
		"effective yield of this step; matches the yield parameter unless the step computes its own",
		func(owner any) (any, error) {
			step, ok := owner.(Step)
			if !ok {
				return nil, fmt.Errorf("effectiveYield owner %T is not a process step", owner)
			}
			return step.Parameters().Get("yield")
		}),
}

// Step is a unit operation in a process sequence. Concrete steps embed
// StepBase and implement the three run phases.
type Step interface {
	component.Model
	Inputs() *component.Store
	Outputs() *component.Store
	Parameters() *component.Store
	SetFacility(facility component.Component)
	SetUpstream(step Step)
	Extract(collection string) (map[string]any, error)

	// MassBalance performs the biochemistry of the step. It runs first.
	MassBalance() error
	// CalculateTime computes how long the step takes. It runs after
	// MassBalance.
	CalculateTime() error
	// CalculateCost computes what the step costs. It runs last.
	CalculateCost() error
}

// StepBase carries the collections every process step shares: a material
// stream in (mass, volume, water), the same stream out plus the cost and
// duration of the step, and the effectiveYield computed parameter. Specs
// passed by the embedding step take precedence over these.
type StepBase struct {
	*component.Base
	self     Step
	upstream Step
}

// NewStepBase builds the component core of a process step. self is the
// embedding step; its run phases are invoked through it.
func NewStepBase(self Step, cfg component.Config) *StepBase {
	b := &StepBase{Base: component.NewBase(self, cfg), self: self}
	b.Inputs().MergeSpec(streamInputSpecs)
	b.Outputs().MergeSpec(streamOutputSpecs)
	b.Parameters().MergeSpec(stepParameterSpecs)
	return b
}

// SetUpstream records the step feeding this one.
func (b *StepBase) SetUpstream(step Step) { b.upstream = step }

// Upstream returns the step feeding this one, or nil for the first step.
func (b *StepBase) Upstream() Step { return b.upstream }

// Run performs the step: mass balance, then time, then cost.
func (b *StepBase) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.self.MassBalance(); err != nil {
		return fmt.Errorf("mass balance: %w", err)
	}
	if err := b.self.CalculateTime(); err != nil {
		return fmt.Errorf("calculate time: %w", err)
	}
	if err := b.self.CalculateCost(); err != nil {
		return fmt.Errorf("calculate cost: %w", err)
	}
	return nil
}

// stream reads the material stream entering the step.
func (b *StepBase) stream() (mass, volume units.Quantity, err error) {
	if mass, err = b.Inputs().Quantity("mass"); err != nil {
		return units.Quantity{}, units.Quantity{}, err
	}
	if volume, err = b.Inputs().Quantity("volume"); err != nil {
		return units.Quantity{}, units.Quantity{}, err
	}
	return mass, volume, nil
}
