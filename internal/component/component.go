// Package component provides the collection/store abstraction shared by all
// model components: spec-validated inputs, outputs and parameters, plus the
// narrow interfaces the optimisation layer consumes.
package component

import (
	"context"
	"errors"
)

var (
	// ErrUnknownCollection is returned for collection names other than
	// inputs, outputs and parameters.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrNotFound is returned when a requested item has no value.
	ErrNotFound = errors.New("item not found")
)

// Collection names accepted by Component.Collection.
const (
	Inputs     = "inputs"
	Outputs    = "outputs"
	Parameters = "parameters"
)

// Component is the contract every model component satisfies.
type Component interface {
	// Name returns the user-friendly component name.
	Name() string
	// Collection returns the named key-value store.
	Collection(name string) (*Store, error)
	// Facility returns the facility this component belongs to.
	Facility() Component
	// LoadParameters resets parameters to their configured defaults,
	// overlaying the component's parameter file when one exists.
	LoadParameters() error
}

// Model is a component that can be evaluated, e.g. a facility or an analysis
// wrapping one. The optimiser treats Run as an opaque black box.
type Model interface {
	Component
	Run(ctx context.Context) error
}

// ProductContainer is implemented by facility-level components that hold
// products.
type ProductContainer interface {
	Products() []Component
}

// StepContainer is implemented by components that can locate process steps by
// name.
type StepContainer interface {
	FindStep(name string) (Component, error)
}
