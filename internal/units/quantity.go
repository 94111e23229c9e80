package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity is a magnitude tagged with a unit. Arithmetic between quantities
// checks dimensions; mixed-unit operands of the same dimension are converted
// to the left operand's unit.
type Quantity struct {
	mag  float64
	unit Unit
}

// New builds a quantity from a magnitude and unit.
func New(mag float64, unit Unit) Quantity {
	return Quantity{mag: mag, unit: unit}
}

// Zero returns the zero quantity of the given unit.
func Zero(unit Unit) Quantity {
	return Quantity{unit: unit}
}

// Inf returns the positive infinite quantity of the given unit.
func Inf(unit Unit) Quantity {
	return Quantity{mag: math.Inf(1), unit: unit}
}

// Parse reads a quantity from text such as "5 kg", "0.25" or "12 EUR/h".
func Parse(text string) (Quantity, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Quantity{}, fmt.Errorf("parse quantity: empty input")
	}
	mag, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("parse quantity %q: %w", text, err)
	}
	unit, err := ParseUnit(strings.Join(fields[1:], ""))
	if err != nil {
		return Quantity{}, fmt.Errorf("parse quantity %q: %w", text, err)
	}
	return Quantity{mag: mag, unit: unit}, nil
}

// Mag returns the magnitude in the quantity's own unit.
func (q Quantity) Mag() float64 { return q.mag }

// Unit returns the quantity's unit.
func (q Quantity) Unit() Unit { return q.unit }

// BaseMag returns the magnitude converted to base-scale units.
func (q Quantity) BaseMag() float64 { return q.mag * q.unit.factor() }

// To converts the quantity to another unit of the same dimension.
func (q Quantity) To(unit Unit) (Quantity, error) {
	if q.unit.dim != unit.dim {
		return Quantity{}, fmt.Errorf("%w: cannot convert %q to %q", ErrDimensionMismatch, q.unit.name, unit.name)
	}
	return Quantity{mag: q.mag * q.unit.factor() / unit.factor(), unit: unit}, nil
}

// Add returns q + o, converting o to q's unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	conv, err := o.To(q.unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{mag: q.mag + conv.mag, unit: q.unit}, nil
}

// Sub returns q - o, converting o to q's unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	conv, err := o.To(q.unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{mag: q.mag - conv.mag, unit: q.unit}, nil
}

// MulScalar scales the quantity by a plain number.
func (q Quantity) MulScalar(f float64) Quantity {
	return Quantity{mag: q.mag * f, unit: q.unit}
}

// DivScalar divides the quantity by a plain number.
func (q Quantity) DivScalar(f float64) Quantity {
	return Quantity{mag: q.mag / f, unit: q.unit}
}

// Mul multiplies two quantities, combining their units.
func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{mag: q.mag * o.mag, unit: q.unit.mul(o.unit)}
}

// Div divides two quantities, combining their units.
func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{mag: q.mag / o.mag, unit: q.unit.div(o.unit)}
}

// Neg returns the quantity with negated magnitude.
func (q Quantity) Neg() Quantity {
	return Quantity{mag: -q.mag, unit: q.unit}
}

// Cmp compares two quantities of the same dimension, returning -1, 0 or 1.
func (q Quantity) Cmp(o Quantity) (int, error) {
	conv, err := o.To(q.unit)
	if err != nil {
		return 0, err
	}
	switch {
	case q.mag < conv.mag:
		return -1, nil
	case q.mag > conv.mag:
		return 1, nil
	default:
		return 0, nil
	}
}

// Equal reports whether two quantities denote the same physical value.
func (q Quantity) Equal(o Quantity) bool {
	if q.unit.dim != o.unit.dim {
		return false
	}
	return q.BaseMag() == o.BaseMag()
}

// String renders the quantity so that Parse recovers it exactly.
func (q Quantity) String() string {
	mag := strconv.FormatFloat(q.mag, 'g', -1, 64)
	if q.unit.name == "" {
		return mag
	}
	return mag + " " + q.unit.name
}

// MarshalYAML serialises the quantity as a string that the governing spec can
// parse back.
func (q Quantity) MarshalYAML() (any, error) {
	return q.String(), nil
}
