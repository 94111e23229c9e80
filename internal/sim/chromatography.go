package sim

import (
	"fmt"
	"math"

	"biopharma/internal/component"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

var chromatographyParameterSpecs = map[string]spec.Spec{
	"yield":           spec.Q("", "fraction of the loaded mass recovered in the eluate"),
	"bindingCapacity": spec.Q("g/L", "product mass one litre of resin can bind"),
	"columnVolume":    spec.Q("L", "packed bed volume of the column"),
	"flowRate":        spec.Q("L/h", "volumetric flow rate through the column"),
	"buffersPerCycle": spec.Q("", "column volumes of buffer consumed per cycle"),
	"eluateVolumes":   spec.Q("", "column volumes of eluate pooled per cycle"),
	"resinCost":       spec.Q("EUR/L", "per-run resin charge per litre of packed bed"),
	"bufferCost":      spec.Q("EUR/L", "cost of buffer per litre"),
}

var chromatographyDefaults = map[string]any{
	"yield":           0.8,
	"bindingCapacity": "50 g/L",
	"columnVolume":    "20 L",
	"flowRate":        "600 L/h",
	"buffersPerCycle": 8.0,
	"eluateVolumes":   2.0,
	"resinCost":       "120 EUR/L",
	"bufferCost":      "0.6 EUR/L",
}

// Chromatography models a packed-bed capture or polishing step. The load is
// processed in as many cycles as the column's binding capacity requires; each
// cycle consumes buffer and elutes a pool of fixed size.
type Chromatography struct {
	*StepBase
	cycles       float64
	bufferVolume units.Quantity
}

// NewChromatography creates a chromatography step. An empty name defaults to
// "Chromatography".
func NewChromatography(name string) *Chromatography {
	if name == "" {
		name = "Chromatography"
	}
	c := &Chromatography{}
	c.StepBase = NewStepBase(c, component.Config{
		Name:       name,
		Parameters: chromatographyParameterSpecs,
		Defaults:   chromatographyDefaults,
	})
	return c
}

// MassBalance splits the load into cycles and pools the eluate.
func (c *Chromatography) MassBalance() error {
	mass, err := c.Inputs().Quantity("mass")
	if err != nil {
		return err
	}
	params := c.Parameters()
	bindingCapacity, err := params.Quantity("bindingCapacity")
	if err != nil {
		return err
	}
	columnVolume, err := params.Quantity("columnVolume")
	if err != nil {
		return err
	}
	capacity := bindingCapacity.Mul(columnVolume)
	if capacity.BaseMag() <= 0 {
		return fmt.Errorf("binding capacity %s and column volume %s must be positive",
			bindingCapacity, columnVolume)
	}
	c.cycles = math.Ceil(mass.Div(capacity).BaseMag())
	if c.cycles < 1 {
		c.cycles = 1
	}

	effectiveYield, err := params.Quantity("effectiveYield")
	if err != nil {
		return err
	}
	eluateVolumes, err := params.Quantity("eluateVolumes")
	if err != nil {
		return err
	}
	buffersPerCycle, err := params.Quantity("buffersPerCycle")
	if err != nil {
		return err
	}
	c.bufferVolume = columnVolume.Mul(buffersPerCycle).MulScalar(c.cycles)

	water, err := c.Inputs().Quantity("water")
	if err != nil {
		return err
	}
	outWater, err := water.Add(c.bufferVolume)
	if err != nil {
		return err
	}

	if err := c.Outputs().Set("mass", mass.Mul(effectiveYield)); err != nil {
		return err
	}
	eluate := columnVolume.Mul(eluateVolumes).MulScalar(c.cycles)
	if err := c.Outputs().Set("volume", eluate); err != nil {
		return err
	}
	return c.Outputs().Set("water", outWater)
}

// CalculateTime pumps the load and the cycle buffers through the column at
// the configured flow rate.
func (c *Chromatography) CalculateTime() error {
	volume, err := c.Inputs().Quantity("volume")
	if err != nil {
		return err
	}
	flowRate, err := c.Parameters().Quantity("flowRate")
	if err != nil {
		return err
	}
	if flowRate.BaseMag() <= 0 {
		return fmt.Errorf("flow rate %s must be positive", flowRate)
	}
	processed, err := volume.Add(c.bufferVolume)
	if err != nil {
		return err
	}
	return c.Outputs().Set("duration", processed.Div(flowRate))
}

// CalculateCost charges the buffers consumed plus the per-run resin charge.
func (c *Chromatography) CalculateCost() error {
	params := c.Parameters()
	bufferCost, err := params.Quantity("bufferCost")
	if err != nil {
		return err
	}
	resinCost, err := params.Quantity("resinCost")
	if err != nil {
		return err
	}
	columnVolume, err := params.Quantity("columnVolume")
	if err != nil {
		return err
	}
	cost, err := c.bufferVolume.Mul(bufferCost).Add(columnVolume.Mul(resinCost))
	if err != nil {
		return err
	}
	return c.Outputs().Set("cost", cost)
}
