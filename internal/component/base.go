package component

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"biopharma/internal/spec"
)

// Config describes how to build a component's stores.
type Config struct {
	// Name is the user-friendly component name.
	Name string
	// ParamFile overrides the parameter file name (defaults to Name). The
	// .yaml extension may be omitted.
	ParamFile string
	// Inputs, Outputs and Parameters are the specification maps.
	Inputs     map[string]spec.Spec
	Outputs    map[string]spec.Spec
	Parameters map[string]spec.Spec
	// Defaults are in-code parameter defaults applied on every
	// LoadParameters, before any parameter file overlay.
	Defaults map[string]any
}

type overrideKey struct {
	collection string
	item       string
}

// Base is the embeddable component implementation. Embedders that need
// recursive behaviour (facilities, products) shadow LoadParameters.
type Base struct {
	name       string
	paramFile  string
	inputs     *Store
	outputs    *Store
	parameters *Store
	facility   Component
	defaults   map[string]any
	overrides  map[overrideKey]any
}

// NewBase builds the three stores from the config. The self argument is the
// embedding component; it becomes the owner bound into computed specs.
func NewBase(self Component, cfg Config) *Base {
	if cfg.ParamFile == "" {
		cfg.ParamFile = cfg.Name
	}
	return &Base{
		name:       cfg.Name,
		paramFile:  cfg.ParamFile,
		inputs:     NewStore(cfg.Inputs, "input", self),
		outputs:    NewStore(cfg.Outputs, "output", self),
		parameters: NewStore(cfg.Parameters, "parameter", self),
		defaults:   cfg.Defaults,
		overrides:  make(map[overrideKey]any),
	}
}

func (b *Base) Name() string { return b.name }

// Inputs returns the input store.
func (b *Base) Inputs() *Store { return b.inputs }

// Outputs returns the output store.
func (b *Base) Outputs() *Store { return b.outputs }

// Parameters returns the parameter store.
func (b *Base) Parameters() *Store { return b.parameters }

func (b *Base) Collection(name string) (*Store, error) {
	switch name {
	case Inputs:
		return b.inputs, nil
	case Outputs:
		return b.outputs, nil
	case Parameters:
		return b.parameters, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
}

func (b *Base) Facility() Component { return b.facility }

// SetFacility records the facility this component belongs to.
func (b *Base) SetFacility(facility Component) { b.facility = facility }

// SetOverride registers a value applied (coerced through the item's spec)
// after every parameter load. External configuration uses this to adjust
// components without editing parameter files.
func (b *Base) SetOverride(collection, item string, value any) {
	b.overrides[overrideKey{collection, item}] = value
}

// LoadParameters resets parameters to the configured defaults, overlays the
// component's parameter file when present and applies overrides.
func (b *Base) LoadParameters() error {
	for item, value := range b.defaults {
		sp, err := b.parameters.ItemSpec(item)
		if err != nil {
			return fmt.Errorf("load parameters for %s: %w", b.name, err)
		}
		parsed, err := sp.Parse(value)
		if err != nil {
			return fmt.Errorf("load parameters for %s: %w", b.name, err)
		}
		if err := b.parameters.Set(item, parsed); err != nil {
			return fmt.Errorf("load parameters for %s: %w", b.name, err)
		}
	}
	if err := b.loadFile(b.paramFile, "parameters", b.parameters); err != nil {
		return fmt.Errorf("load parameters for %s: %w", b.name, err)
	}
	return b.applyOverrides()
}

// LoadInputs reads component inputs from a YAML file in the facility data
// directory.
func (b *Base) LoadInputs(filename string) error {
	if err := b.loadFile(filename, "inputs", b.inputs); err != nil {
		return fmt.Errorf("load inputs for %s: %w", b.name, err)
	}
	return nil
}

func (b *Base) applyOverrides() error {
	for key, value := range b.overrides {
		store, err := b.Collection(key.collection)
		if err != nil {
			return err
		}
		sp, err := store.ItemSpec(key.item)
		if err != nil {
			return fmt.Errorf("apply override for %s: %w", b.name, err)
		}
		coerced, err := sp.Coerce(value)
		if err != nil {
			return fmt.Errorf("apply override for %s: %w", b.name, err)
		}
		if err := store.Set(key.item, coerced); err != nil {
			return fmt.Errorf("apply override for %s: %w", b.name, err)
		}
	}
	return nil
}

func (b *Base) loadFile(filename, section string, target *Store) error {
	dir := b.dataPath()
	if dir == "" || filename == "" {
		return nil
	}
	if filepath.Ext(filename) == "" {
		filename += ".yaml"
	}
	path := filepath.Join(dir, filename)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for item, value := range doc[section] {
		sp, err := target.ItemSpec(item)
		if err != nil {
			return fmt.Errorf("%s: the name %q is not in %s", path, item, section)
		}
		parsed, err := sp.Parse(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := target.Set(item, parsed); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func (b *Base) dataPath() string {
	fac := b.facility
	if fac == nil {
		return ""
	}
	if dp, ok := fac.(interface{ DataPath() string }); ok {
		return dp.DataPath()
	}
	return ""
}

// Extract renders a collection as a plain map, including the component name.
func (b *Base) Extract(collection string) (map[string]any, error) {
	store, err := b.Collection(collection)
	if err != nil {
		return nil, err
	}
	result := map[string]any{"name": b.name}
	for name, value := range store.Extract() {
		result[name] = value
	}
	return result, nil
}
