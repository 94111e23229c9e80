// Package units provides the compact unit-aware quantity type used by model
// components, generators and the sensitivity analyser. It supports the units
// the process model needs (mass, volume, time, money) plus the products,
// quotients and squares of those that arise in derived outputs.
package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Dim holds the exponents of a unit over the base dimensions.
type Dim struct {
	Mass   int8
	Volume int8
	Time   int8
	Money  int8
}

func (d Dim) add(o Dim) Dim {
	return Dim{d.Mass + o.Mass, d.Volume + o.Volume, d.Time + o.Time, d.Money + o.Money}
}

func (d Dim) sub(o Dim) Dim {
	return Dim{d.Mass - o.Mass, d.Volume - o.Volume, d.Time - o.Time, d.Money - o.Money}
}

func (d Dim) zero() bool {
	return d == Dim{}
}

// Unit is a named scale over a dimension vector. The zero value is the
// dimensionless unit.
type Unit struct {
	name  string
	dim   Dim
	scale float64
}

// Dimensionless is the unit of plain numbers.
var Dimensionless = Unit{}

var registry = map[string]Unit{
	"g":   {name: "g", dim: Dim{Mass: 1}, scale: 1},
	"kg":  {name: "kg", dim: Dim{Mass: 1}, scale: 1000},
	"mg":  {name: "mg", dim: Dim{Mass: 1}, scale: 1e-3},
	"ug":  {name: "ug", dim: Dim{Mass: 1}, scale: 1e-6},
	"L":   {name: "L", dim: Dim{Volume: 1}, scale: 1},
	"mL":  {name: "mL", dim: Dim{Volume: 1}, scale: 1e-3},
	"h":   {name: "h", dim: Dim{Time: 1}, scale: 1},
	"min": {name: "min", dim: Dim{Time: 1}, scale: 1.0 / 60},
	"day": {name: "day", dim: Dim{Time: 1}, scale: 24},
	"EUR": {name: "EUR", dim: Dim{Money: 1}, scale: 1},
}

// ParseUnit resolves a unit expression such as "kg", "EUR/h" or "g^2".
// Expressions are products and quotients of registered names, each with an
// optional positive integer exponent.
func ParseUnit(expr string) (Unit, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Dimensionless, nil
	}
	result := Unit{scale: 1}
	sign := int8(1)
	start := 0
	apply := func(token string, sign int8) error {
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("%w: empty term in %q", ErrUnknownUnit, expr)
		}
		exp := int8(1)
		if idx := strings.Index(token, "^"); idx >= 0 {
			n, err := strconv.Atoi(token[idx+1:])
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: bad exponent in %q", ErrUnknownUnit, token)
			}
			exp = int8(n)
			token = token[:idx]
		}
		base, ok := registry[token]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownUnit, token)
		}
		for i := int8(0); i < exp; i++ {
			if sign > 0 {
				result.dim = result.dim.add(base.dim)
				result.scale *= base.scale
			} else {
				result.dim = result.dim.sub(base.dim)
				result.scale /= base.scale
			}
		}
		return nil
	}
	for i, r := range expr {
		if r == '*' || r == '/' {
			if err := apply(expr[start:i], sign); err != nil {
				return Unit{}, err
			}
			if r == '*' {
				sign = 1
			} else {
				sign = -1
			}
			start = i + 1
		}
	}
	if err := apply(expr[start:], sign); err != nil {
		return Unit{}, err
	}
	result.name = expr
	if result.dim.zero() && result.scale == 1 {
		return Dimensionless, nil
	}
	return result, nil
}

// MustParseUnit is ParseUnit for statically-known unit names; it panics on
// failure, which indicates a misconfigured specification.
func MustParseUnit(expr string) Unit {
	u, err := ParseUnit(expr)
	if err != nil {
		panic(err)
	}
	return u
}

// Name returns the display name of the unit ("" for dimensionless).
func (u Unit) Name() string { return u.name }

// Dim returns the unit's dimension vector.
func (u Unit) Dim() Dim { return u.dim }

// IsDimensionless reports whether the unit carries no dimensions.
func (u Unit) IsDimensionless() bool { return u.dim.zero() }

// factor is the conversion scale to base units. The zero Unit reads as
// scale 1 so that zero-valued units and quantities stay usable.
func (u Unit) factor() float64 {
	if u.scale == 0 {
		return 1
	}
	return u.scale
}

// Squared returns the unit with doubled dimensions, e.g. for variances.
func (u Unit) Squared() Unit {
	if u.dim.zero() {
		return Dimensionless
	}
	name := u.name
	if strings.ContainsAny(name, "*/^") {
		name = "(" + name + ")^2"
	} else {
		name = name + "^2"
	}
	return Unit{name: name, dim: u.dim.add(u.dim), scale: u.factor() * u.factor()}
}

func (u Unit) mul(o Unit) Unit {
	name := composeName(u.name, o.name, "*")
	return Unit{name: name, dim: u.dim.add(o.dim), scale: u.factor() * o.factor()}
}

func (u Unit) div(o Unit) Unit {
	name := composeName(u.name, o.name, "/")
	return Unit{name: name, dim: u.dim.sub(o.dim), scale: u.factor() / o.factor()}
}

func composeName(a, b, op string) string {
	if strings.ContainsAny(b, "*/") {
		b = "(" + b + ")"
	}
	switch {
	case a == "" && b == "":
		return ""
	case b == "":
		return a
	case a == "":
		if op == "/" {
			return "1/" + b
		}
		return b
	default:
		return a + op + b
	}
}
