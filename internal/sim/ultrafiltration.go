package sim

import (
	"fmt"

	"biopharma/internal/component"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

var ultrafiltrationParameterSpecs = map[string]spec.Spec{
	"yield":               spec.Q("", "fraction of the mass retained through the membrane"),
	"concentrationFactor": spec.Q("", "ratio of feed volume to retentate volume"),
	"permeateRate":        spec.Q("L/h", "rate at which permeate passes the membrane"),
	"membraneCost":        spec.Q("EUR", "membrane replacement charge per run"),
	"flushVolume":         spec.Q("L", "buffer flushed through the membrane after concentration"),
	"bufferCost":          spec.Q("EUR/L", "cost of flush buffer per litre"),
}

var ultrafiltrationDefaults = map[string]any{
	"yield":               0.95,
	"concentrationFactor": 10.0,
	"permeateRate":        "150 L/h",
	"membraneCost":        "900 EUR",
	"flushVolume":         "60 L",
	"bufferCost":          "0.5 EUR/L",
}

// Ultrafiltration concentrates the process stream by a fixed volume factor,
// losing a small fraction of the product to the membrane.
type Ultrafiltration struct {
	*StepBase
	permeate units.Quantity
}

// NewUltrafiltration creates an ultrafiltration step. An empty name defaults
// to "Ultrafiltration".
func NewUltrafiltration(name string) *Ultrafiltration {
	if name == "" {
		name = "Ultrafiltration"
	}
	u := &Ultrafiltration{}
	u.StepBase = NewStepBase(u, component.Config{
		Name:       name,
		Parameters: ultrafiltrationParameterSpecs,
		Defaults:   ultrafiltrationDefaults,
	})
	return u
}

// MassBalance reduces the stream volume by the concentration factor.
func (u *Ultrafiltration) MassBalance() error {
	mass, volume, err := u.stream()
	if err != nil {
		return err
	}
	params := u.Parameters()
	factor, err := params.Quantity("concentrationFactor")
	if err != nil {
		return err
	}
	if factor.BaseMag() < 1 {
		return fmt.Errorf("concentration factor %s must be at least 1", factor)
	}
	effectiveYield, err := params.Quantity("effectiveYield")
	if err != nil {
		return err
	}
	flushVolume, err := params.Quantity("flushVolume")
	if err != nil {
		return err
	}

	retentate := volume.DivScalar(factor.BaseMag())
	if u.permeate, err = volume.Sub(retentate); err != nil {
		return err
	}
	water, err := u.Inputs().Quantity("water")
	if err != nil {
		return err
	}
	outWater, err := water.Add(flushVolume)
	if err != nil {
		return err
	}

	if err := u.Outputs().Set("mass", mass.Mul(effectiveYield)); err != nil {
		return err
	}
	if err := u.Outputs().Set("volume", retentate); err != nil {
		return err
	}
	return u.Outputs().Set("water", outWater)
}

// CalculateTime passes the permeate and the flush through the membrane at
// the permeate rate.
func (u *Ultrafiltration) CalculateTime() error {
	params := u.Parameters()
	rate, err := params.Quantity("permeateRate")
	if err != nil {
		return err
	}
	if rate.BaseMag() <= 0 {
		return fmt.Errorf("permeate rate %s must be positive", rate)
	}
	flushVolume, err := params.Quantity("flushVolume")
	if err != nil {
		return err
	}
	processed, err := u.permeate.Add(flushVolume)
	if err != nil {
		return err
	}
	return u.Outputs().Set("duration", processed.Div(rate))
}

// CalculateCost charges the membrane and the flush buffer.
func (u *Ultrafiltration) CalculateCost() error {
	params := u.Parameters()
	membraneCost, err := params.Quantity("membraneCost")
	if err != nil {
		return err
	}
	flushVolume, err := params.Quantity("flushVolume")
	if err != nil {
		return err
	}
	bufferCost, err := params.Quantity("bufferCost")
	if err != nil {
		return err
	}
	cost, err := membraneCost.Add(flushVolume.Mul(bufferCost))
	if err != nil {
		return err
	}
	return u.Outputs().Set("cost", cost)
}
