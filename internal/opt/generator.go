package opt

import (
	"fmt"
	"math"

	"biopharma/internal/units"
)

// Generator draws values for a variable and checks them against its
// constraints. Draw and Repair consume randomness from the run's Source;
// IsValid never does.
type Generator interface {
	Draw(src *Source, v *Variable) (any, error)
	IsValid(v *Variable) (bool, error)
	Repair(src *Source, v *Variable) error
	Describe(v *Variable) string
}

// redraw is the default repair: replace the value with a fresh draw. The
// variable pushes the repaired value into the facility afterwards.
func redraw(g Generator, src *Source, v *Variable) error {
	value, err := g.Draw(src, v)
	if err != nil {
		return err
	}
	v.setValue(value)
	return nil
}

// RangeCheck is invoked before every draw and validity check. Hooks typically
// call UpdateRange with bounds derived from other components, so the range
// follows the rest of the genome.
type RangeCheck func(v *Variable, r *Range) error

// Range draws values between a lower and an upper bound, both inclusive.
// Bounds carry units when constructed from quantities. Draws are integral by
// default; call Continuous for real-valued draws.
type Range struct {
	min, max   float64
	unit       units.Unit
	hasUnit    bool
	continuous bool
	check      RangeCheck
}

// NewRange creates a range generator. Both bounds must be plain numbers, or
// both quantities in the same unit.
func NewRange(min, max any) (*Range, error) {
	r := &Range{}
	if err := r.UpdateRange(min, max); err != nil {
		return nil, err
	}
	return r, nil
}

// NewDependentRange creates a range whose bounds are supplied entirely by the
// check hook. The hook runs before the first draw, so the initial bounds are
// never observed.
func NewDependentRange(check RangeCheck) *Range {
	return &Range{check: check}
}

// Continuous switches the range to real-valued draws. It returns the receiver
// for chaining at construction.
func (r *Range) Continuous() *Range {
	r.continuous = true
	return r
}

// WithCheck installs the bounds hook. It returns the receiver for chaining at
// construction.
func (r *Range) WithCheck(check RangeCheck) *Range {
	r.check = check
	return r
}

// UpdateRange replaces the bounds. Check hooks call this to keep the range
// consistent with the state of other variables.
func (r *Range) UpdateRange(min, max any) error {
	minQ, minIsQ := min.(units.Quantity)
	maxQ, maxIsQ := max.(units.Quantity)
	switch {
	case minIsQ && maxIsQ:
		if minQ.Unit() != maxQ.Unit() {
			return fmt.Errorf("range bounds must share a unit, got %s and %s", minQ, maxQ)
		}
		r.min, r.max = minQ.Mag(), maxQ.Mag()
		r.unit = minQ.Unit()
		r.hasUnit = true
	case minIsQ || maxIsQ:
		return fmt.Errorf("range bounds mix a quantity and a plain number: %v and %v", min, max)
	default:
		lo, ok := toFloat(min)
		if !ok {
			return fmt.Errorf("range lower bound %v (%T) is not a number", min, min)
		}
		hi, ok := toFloat(max)
		if !ok {
			return fmt.Errorf("range upper bound %v (%T) is not a number", max, max)
		}
		r.min, r.max = lo, hi
		r.hasUnit = false
	}
	if r.min > r.max {
		return fmt.Errorf("range lower bound %g exceeds upper bound %g", r.min, r.max)
	}
	return nil
}

// Min returns the current lower bound.
func (r *Range) Min() any { return r.wrap(r.min) }

// Max returns the current upper bound.
func (r *Range) Max() any { return r.wrap(r.max) }

func (r *Range) runCheck(v *Variable) error {
	if r.check == nil {
		return nil
	}
	if err := r.check(v, r); err != nil {
		return fmt.Errorf("range check for %s: %w", v.Name(), err)
	}
	return nil
}

func (r *Range) Draw(src *Source, v *Variable) (any, error) {
	if err := r.runCheck(v); err != nil {
		return nil, err
	}
	if r.continuous {
		return r.wrap(r.min + src.Float64()*(r.max-r.min)), nil
	}
	lo := int(math.Ceil(r.min))
	hi := int(math.Floor(r.max))
	if hi < lo {
		return nil, fmt.Errorf("range [%g, %g] contains no integers, use Continuous for real-valued draws", r.min, r.max)
	}
	return r.wrap(float64(src.IntBetween(lo, hi))), nil
}

func (r *Range) IsValid(v *Variable) (bool, error) {
	if err := r.runCheck(v); err != nil {
		return false, err
	}
	if r.hasUnit {
		q, ok := v.Value().(units.Quantity)
		if !ok {
			return false, fmt.Errorf("variable %s holds %T, expected a quantity", v.Name(), v.Value())
		}
		low, err := q.Cmp(units.New(r.min, r.unit))
		if err != nil {
			return false, fmt.Errorf("variable %s: %w", v.Name(), err)
		}
		high, err := q.Cmp(units.New(r.max, r.unit))
		if err != nil {
			return false, fmt.Errorf("variable %s: %w", v.Name(), err)
		}
		return low >= 0 && high <= 0, nil
	}
	f, ok := toFloat(v.Value())
	if !ok {
		return false, fmt.Errorf("variable %s holds %v (%T), expected a number", v.Name(), v.Value(), v.Value())
	}
	return f >= r.min && f <= r.max, nil
}

func (r *Range) Repair(src *Source, v *Variable) error { return redraw(r, src, v) }

func (r *Range) Describe(v *Variable) string { return formatValue(v.Value()) }

func (r *Range) wrap(mag float64) any {
	if r.hasUnit {
		return units.New(mag, r.unit)
	}
	return mag
}

// ChoiceCheck is invoked before every draw and validity check, typically to
// call UpdateChoices with options derived from other components.
type ChoiceCheck func(v *Variable, c *Choice) error

// Choice draws uniformly from a fixed set of values.
type Choice struct {
	choices []any
	check   ChoiceCheck
}

// NewChoice creates a choice generator over the given values.
func NewChoice(choices ...any) (*Choice, error) {
	c := &Choice{}
	if err := c.UpdateChoices(choices...); err != nil {
		return nil, err
	}
	return c, nil
}

// WithCheck installs the choices hook. It returns the receiver for chaining
// at construction.
func (c *Choice) WithCheck(check ChoiceCheck) *Choice {
	c.check = check
	return c
}

// UpdateChoices replaces the candidate values.
func (c *Choice) UpdateChoices(choices ...any) error {
	if len(choices) == 0 {
		return fmt.Errorf("choice generator needs at least one value")
	}
	c.choices = append(c.choices[:0], choices...)
	return nil
}

// Choices returns a copy of the current candidate values.
func (c *Choice) Choices() []any {
	return append([]any(nil), c.choices...)
}

func (c *Choice) runCheck(v *Variable) error {
	if c.check == nil {
		return nil
	}
	if err := c.check(v, c); err != nil {
		return fmt.Errorf("choice check for %s: %w", v.Name(), err)
	}
	return nil
}

func (c *Choice) Draw(src *Source, v *Variable) (any, error) {
	if err := c.runCheck(v); err != nil {
		return nil, err
	}
	return c.choices[src.IntN(len(c.choices))], nil
}

func (c *Choice) IsValid(v *Variable) (bool, error) {
	if err := c.runCheck(v); err != nil {
		return false, err
	}
	for _, choice := range c.choices {
		if sameValue(v.Value(), choice) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Choice) Repair(src *Source, v *Variable) error { return redraw(c, src, v) }

func (c *Choice) Describe(v *Variable) string { return formatValue(v.Value()) }

// Binary draws booleans. The first draw is random; every later draw flips the
// current value without consuming randomness, so mutating a binary variable
// always changes it.
type Binary struct{}

// NewBinary creates a binary generator.
func NewBinary() *Binary { return &Binary{} }

func (b *Binary) Draw(src *Source, v *Variable) (any, error) {
	current, ok := v.Value().(bool)
	if !ok {
		if v.Value() != nil {
			return nil, fmt.Errorf("variable %s holds %T, expected a bool", v.Name(), v.Value())
		}
		return src.IntN(2) == 1, nil
	}
	return !current, nil
}

func (b *Binary) IsValid(v *Variable) (bool, error) {
	_, ok := v.Value().(bool)
	return ok, nil
}

func (b *Binary) Repair(src *Source, v *Variable) error { return redraw(b, src, v) }

func (b *Binary) Describe(v *Variable) string { return formatValue(v.Value()) }

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sameValue compares generator values, treating quantities dimensionally and
// dimensionless quantities as equal to plain numbers.
func sameValue(a, b any) bool {
	qa, aok := a.(units.Quantity)
	qb, bok := b.(units.Quantity)
	switch {
	case aok && bok:
		return qa.Equal(qb)
	case aok:
		if f, ok := toFloat(b); ok {
			return qa.Equal(units.New(f, units.Dimensionless))
		}
		return false
	case bok:
		if f, ok := toFloat(a); ok {
			return qb.Equal(units.New(f, units.Dimensionless))
		}
		return false
	default:
		return a == b
	}
}

func formatValue(value any) string {
	if q, ok := value.(units.Quantity); ok {
		return q.String()
	}
	return fmt.Sprint(value)
}
