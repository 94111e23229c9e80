package sim

import (
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/spec"
)

var bioreactorParameterSpecs = map[string]spec.Spec{
	"titre":         spec.Q("g/L", "product concentration in the harvest"),
	"workingVolume": spec.Q("L", "culture volume of the reactor"),
	"cultureTime":   spec.Q("day", "duration of the cultivation"),
	"mediumCost":    spec.Q("EUR/L", "cost of culture medium per litre of working volume"),
	"waterFactor":   spec.Q("", "litres of water used per litre of working volume"),
}

var bioreactorDefaults = map[string]any{
	"titre":         "2.5 g/L",
	"workingVolume": "2000 L",
	"cultureTime":   "12 day",
	"mediumCost":    "8 EUR/L",
	"waterFactor":   3.0,
}

// Bioreactor is the production step at the head of a process sequence. It
// turns culture parameters into the harvest stream the downstream steps
// purify.
type Bioreactor struct {
	*StepBase
}

// NewBioreactor creates a bioreactor step. An empty name defaults to
// "Bioreactor".
func NewBioreactor(name string) *Bioreactor {
	if name == "" {
		name = "Bioreactor"
	}
	b := &Bioreactor{}
	b.StepBase = NewStepBase(b, component.Config{
		Name:       name,
		Parameters: bioreactorParameterSpecs,
		Defaults:   bioreactorDefaults,
	})
	return b
}

// MassBalance produces the harvest: titre times working volume on top of
// whatever entered the step.
func (b *Bioreactor) MassBalance() error {
	mass, volume, err := b.stream()
	if err != nil {
		return err
	}
	titre, err := b.Parameters().Quantity("titre")
	if err != nil {
		return err
	}
	workingVolume, err := b.Parameters().Quantity("workingVolume")
	if err != nil {
		return err
	}
	if workingVolume.BaseMag() <= 0 {
		return fmt.Errorf("working volume %s must be positive", workingVolume)
	}
	waterFactor, err := b.Parameters().Quantity("waterFactor")
	if err != nil {
		return err
	}
	water, err := b.Inputs().Quantity("water")
	if err != nil {
		return err
	}

	harvest, err := mass.Add(titre.Mul(workingVolume))
	if err != nil {
		return err
	}
	outVolume, err := volume.Add(workingVolume)
	if err != nil {
		return err
	}
	outWater, err := water.Add(workingVolume.Mul(waterFactor))
	if err != nil {
		return err
	}

	if err := b.Outputs().Set("mass", harvest); err != nil {
		return err
	}
	if err := b.Outputs().Set("volume", outVolume); err != nil {
		return err
	}
	return b.Outputs().Set("water", outWater)
}

// CalculateTime reports the cultivation time.
func (b *Bioreactor) CalculateTime() error {
	cultureTime, err := b.Parameters().Quantity("cultureTime")
	if err != nil {
		return err
	}
	return b.Outputs().Set("duration", cultureTime)
}

// CalculateCost charges medium for the whole working volume.
func (b *Bioreactor) CalculateCost() error {
	workingVolume, err := b.Parameters().Quantity("workingVolume")
	if err != nil {
		return err
	}
	mediumCost, err := b.Parameters().Quantity("mediumCost")
	if err != nil {
		return err
	}
	return b.Outputs().Set("cost", workingVolume.Mul(mediumCost))
}
