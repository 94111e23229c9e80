// Package spec defines the kinds of specification that can be attached to
// component inputs, outputs and parameters. Specs parse values from parameter
// files, validate assignments and coerce external form values.
package spec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"biopharma/internal/units"
)

// ErrViolated is wrapped by every specification violation.
var ErrViolated = errors.New("specification violated")

// Spec is the contract all specification kinds implement.
type Spec interface {
	// Describe returns the human-oriented description of the entry.
	Describe() string
	// Clone returns a copy suitable for use by another component.
	Clone() Spec
	// Parse converts an entry read from a parameter file into a valid value.
	Parse(value any) (any, error)
	// Validate checks a value, possibly adjusting it to conform exactly
	// (e.g. converting to the expected units).
	Validate(value any) (any, error)
	// Coerce makes a plain external value valid where possible.
	Coerce(value any) (any, error)
}

// Getter is implemented by specs whose value is computed rather than stored.
type Getter interface {
	Get() (any, error)
}

// Nester is implemented by specs that describe a nested set of entries.
type Nester interface {
	Nested() map[string]Spec
}

// Binder is implemented by specs that need a reference to their owning
// component before use.
type Binder interface {
	Bind(owner any)
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrViolated, fmt.Sprintf(format, args...))
}

// QuantitySpec requires values to be quantities with particular units.
type QuantitySpec struct {
	unit units.Unit
	desc string
}

// Q builds a quantity specification from a unit expression. It panics if the
// expression does not name known units, which indicates a misconfigured
// component.
func Q(unitExpr, desc string) *QuantitySpec {
	return &QuantitySpec{unit: units.MustParseUnit(unitExpr), desc: desc}
}

func (s *QuantitySpec) Describe() string { return s.desc }

func (s *QuantitySpec) Clone() Spec {
	clone := *s
	return &clone
}

// Unit returns the units values of this spec are expressed in.
func (s *QuantitySpec) Unit() units.Unit { return s.unit }

// Zero returns a zero value matching this specification.
func (s *QuantitySpec) Zero() units.Quantity { return units.Zero(s.unit) }

// Inf returns a positive infinite value matching this specification.
func (s *QuantitySpec) Inf() units.Quantity { return units.Inf(s.unit) }

// WithSameUnits derives a spec with the same units and a new description.
func (s *QuantitySpec) WithSameUnits(desc string) *QuantitySpec {
	return &QuantitySpec{unit: s.unit, desc: desc}
}

// WithSquaredUnits derives a spec with squared units, e.g. for the variance
// of values governed by this spec.
func (s *QuantitySpec) WithSquaredUnits(desc string) *QuantitySpec {
	return &QuantitySpec{unit: s.unit.Squared(), desc: desc}
}

func (s *QuantitySpec) Parse(value any) (any, error) {
	switch v := value.(type) {
	case units.Quantity:
		return s.Validate(v)
	case string:
		q, err := units.Parse(v)
		if err != nil {
			return nil, violation("failed to parse %q as a value with units: %v", v, err)
		}
		return s.Validate(q)
	default:
		if mag, ok := asFloat(value); ok {
			return s.Validate(mag)
		}
		return nil, violation("failed to parse %v as a value with units", value)
	}
}

func (s *QuantitySpec) Validate(value any) (any, error) {
	if mag, ok := asFloat(value); ok {
		if !s.unit.IsDimensionless() {
			return nil, violation("number %v provided but quantity with units %q required", value, s.unit.Name())
		}
		return units.New(mag, s.unit), nil
	}
	q, ok := value.(units.Quantity)
	if !ok {
		return nil, violation("value %v is not a quantity", value)
	}
	conv, err := q.To(s.unit)
	if err != nil {
		return nil, violation("value %q does not have units %q", q, s.unit.Name())
	}
	return conv, nil
}

func (s *QuantitySpec) Coerce(value any) (any, error) {
	if mag, ok := asFloat(value); ok {
		return units.New(mag, s.unit), nil
	}
	if v, ok := value.(string); ok {
		return s.Parse(v)
	}
	return s.Validate(value)
}

// Kind identifies the Go type a ScalarSpec requires.
type Kind int

const (
	Int Kind = iota
	Float
	Bool
	String
	List
	Any
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case List:
		return "list"
	default:
		return "any"
	}
}

// ScalarSpec requires values of a basic Go type.
type ScalarSpec struct {
	kind Kind
	desc string
}

// Value builds a scalar specification for the given kind.
func Value(kind Kind, desc string) *ScalarSpec {
	return &ScalarSpec{kind: kind, desc: desc}
}

func (s *ScalarSpec) Describe() string { return s.desc }

func (s *ScalarSpec) Clone() Spec {
	clone := *s
	return &clone
}

// Kind returns the required kind.
func (s *ScalarSpec) Kind() Kind { return s.kind }

func (s *ScalarSpec) Parse(value any) (any, error) {
	// Whole numbers in parameter files should be accepted as floats.
	if s.kind == Float {
		if i, ok := value.(int); ok {
			value = float64(i)
		}
	}
	return s.Validate(value)
}

func (s *ScalarSpec) Validate(value any) (any, error) {
	switch s.kind {
	case Int:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		}
	case Float:
		if v, ok := value.(float64); ok {
			return v, nil
		}
	case Bool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case String:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case List:
		if value != nil && reflect.ValueOf(value).Kind() == reflect.Slice {
			return value, nil
		}
	case Any:
		return value, nil
	}
	return nil, violation("value %v is not an instance of %s", value, s.kind)
}

func (s *ScalarSpec) Coerce(value any) (any, error) {
	switch s.kind {
	case Int:
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, violation("cannot coerce %q to int", v)
			}
			return n, nil
		}
	case Float:
		switch v := value.(type) {
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, violation("cannot coerce %q to float", v)
			}
			return f, nil
		default:
			if f, ok := asFloat(v); ok {
				return f, nil
			}
		}
	case Bool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, violation("cannot coerce %q to bool", v)
			}
			return b, nil
		}
	case String:
		return fmt.Sprint(value), nil
	default:
		return s.Validate(value)
	}
	return nil, violation("cannot coerce %v to %s", value, s.kind)
}

// ZeroOf returns the zero element for specs that define one, e.g. for
// resetting component inputs before a model run.
func ZeroOf(s Spec) (any, bool) {
	switch sp := s.(type) {
	case *QuantitySpec:
		return sp.Zero(), true
	case *ScalarSpec:
		switch sp.kind {
		case Int:
			return 0, true
		case Float:
			return 0.0, true
		case Bool:
			return false, true
		case String:
			return "", true
		}
	}
	return nil, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
