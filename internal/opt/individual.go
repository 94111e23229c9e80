package opt

import (
	"errors"
	"fmt"
	"strings"

	"biopharma/internal/component"
)

// ErrVariableNotFound is returned when an individual has no variable matching
// the requested component, item and collection.
var ErrVariableNotFound = errors.New("variable not found")

// Individual is one candidate solution: a genome of variables applied to the
// shared facility, plus the fitness from evaluating the model in that state.
type Individual struct {
	optimiser *Optimiser
	facility  component.Component
	variables []*Variable

	// Fitness holds the objective values once the individual was evaluated.
	Fitness *Fitness
	// Err records why the model run failed for this genome, nil on success.
	Err error
}

func newIndividual(o *Optimiser, draw bool, src *Source) (*Individual, error) {
	ind := &Individual{
		optimiser: o,
		facility:  o.facility,
		Fitness:   NewFitness(o.weights),
	}
	for _, spec := range o.variables {
		v, err := newVariable(ind, spec)
		if err != nil {
			return nil, err
		}
		ind.variables = append(ind.variables, v)
	}
	if draw {
		if err := ind.Draw(src); err != nil {
			return nil, err
		}
	}
	return ind, nil
}

// Optimiser returns the optimiser this individual belongs to. Generator hooks
// use it to read shared tables from the optimiser's parameters.
func (ind *Individual) Optimiser() *Optimiser { return ind.optimiser }

// Variables returns the genome in declaration order.
func (ind *Individual) Variables() []*Variable { return ind.variables }

// Draw reloads facility parameters and draws every variable afresh.
func (ind *Individual) Draw(src *Source) error {
	if err := ind.facility.LoadParameters(); err != nil {
		return err
	}
	for _, v := range ind.variables {
		if err := v.Draw(src); err != nil {
			return err
		}
	}
	return nil
}

// ApplyToFacility reloads facility parameters and pushes every variable's
// value into its component, so the model reflects exactly this genome.
func (ind *Individual) ApplyToFacility() error {
	if err := ind.facility.LoadParameters(); err != nil {
		return err
	}
	for _, v := range ind.variables {
		if err := v.UpdateFacility(); err != nil {
			return err
		}
	}
	return nil
}

// IsValid reports whether every variable satisfies its generator's
// constraints. All variables are checked even after the first violation, so
// range hooks observe a consistent pass.
func (ind *Individual) IsValid() (bool, error) {
	valid := true
	for _, v := range ind.variables {
		ok, err := v.IsValid()
		if err != nil {
			return false, err
		}
		valid = valid && ok
	}
	return valid, nil
}

// Repair applies the genome to the facility and repairs each variable in
// declaration order. A single left-to-right pass keeps dependent ranges
// consistent with the variables repaired before them.
func (ind *Individual) Repair(src *Source) error {
	if err := ind.ApplyToFacility(); err != nil {
		return err
	}
	for _, v := range ind.variables {
		if err := v.Repair(src); err != nil {
			return err
		}
	}
	return nil
}

// HasVariable reports whether the genome contains the given gene.
func (ind *Individual) HasVariable(componentName, item, collection string) bool {
	_, err := ind.GetVariable(componentName, item, collection)
	return err == nil
}

// GetVariable returns the gene writing item into the named component's
// collection.
func (ind *Individual) GetVariable(componentName, item, collection string) (*Variable, error) {
	for _, v := range ind.variables {
		if v.item != item || v.collection != collection {
			continue
		}
		comp, err := v.Component()
		if err != nil {
			return nil, err
		}
		if comp.Name() == componentName {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s[%s] in %s", ErrVariableNotFound, componentName, item, collection)
}

// Equal reports whether two individuals carry the same genome.
func (ind *Individual) Equal(other *Individual) bool {
	if len(ind.variables) != len(other.variables) {
		return false
	}
	for i, v := range ind.variables {
		if !v.Equal(other.variables[i]) {
			return false
		}
	}
	return true
}

// Clone copies the individual for breeding. The optimiser and facility are
// shared; variables and fitness are copied.
func (ind *Individual) Clone() *Individual {
	cp := &Individual{
		optimiser: ind.optimiser,
		facility:  ind.facility,
		Fitness:   ind.Fitness.Clone(),
		Err:       ind.Err,
	}
	for _, v := range ind.variables {
		cp.variables = append(cp.variables, v.clone(cp))
	}
	return cp
}

func (ind *Individual) String() string {
	parts := make([]string, len(ind.variables))
	for i, v := range ind.variables {
		parts[i] = v.String()
	}
	return "<Individual: " + strings.Join(parts, ", ") + ">"
}
