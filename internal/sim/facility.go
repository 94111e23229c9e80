// Package sim implements the process-economics model of a bioprocessing
// facility: products manufactured through a sequence of process steps, each a
// component with spec-validated inputs, outputs and parameters. The
// optimisation layer drives this model solely through the component
// interfaces.
package sim

import (
	"context"
	"fmt"
	"os"

	"biopharma/internal/component"
)

// Facility handles the overall loading of parameters and running of
// production pipelines.
type Facility struct {
	*component.Base
	dataPath string
	products []*Product
}

// NewFacility creates a facility whose parameter files live in dataPath.
// An empty dataPath is allowed; components then rely on in-code defaults.
func NewFacility(dataPath string) (*Facility, error) {
	if dataPath != "" {
		info, err := os.Stat(dataPath)
		if err != nil {
			return nil, fmt.Errorf("facility data path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("facility data path %q is not a directory", dataPath)
		}
	}
	f := &Facility{dataPath: dataPath}
	f.Base = component.NewBase(f, component.Config{Name: "Facility"})
	f.SetFacility(f)
	return f, nil
}

// DataPath returns the folder containing parameter files and other facility
// configuration.
func (f *Facility) DataPath() string { return f.dataPath }

// Products returns the products manufactured in this facility.
func (f *Facility) Products() []component.Component {
	products := make([]component.Component, len(f.products))
	for i, p := range f.products {
		products[i] = p
	}
	return products
}

func (f *Facility) attach(p *Product) {
	f.products = append(f.products, p)
}

// Run evaluates the cost of producing each product. This is the main entry
// point for simulating production.
func (f *Facility) Run(ctx context.Context) error {
	for _, product := range f.products {
		if err := product.Evaluate(ctx); err != nil {
			return fmt.Errorf("evaluate product %s: %w", product.Name(), err)
		}
	}
	return nil
}

// LoadParameters loads parameters not just for the facility itself but for
// all model components.
func (f *Facility) LoadParameters() error {
	if err := f.Base.LoadParameters(); err != nil {
		return err
	}
	for _, product := range f.products {
		if err := product.LoadParameters(); err != nil {
			return err
		}
	}
	return nil
}

// Extract renders a collection of the facility and all its components as a
// plain nested map.
func (f *Facility) Extract(collection string) (map[string]any, error) {
	result, err := f.Base.Extract(collection)
	if err != nil {
		return nil, err
	}
	products := make([]any, 0, len(f.products))
	for _, product := range f.products {
		extracted, err := product.Extract(collection)
		if err != nil {
			return nil, err
		}
		products = append(products, extracted)
	}
	result["products"] = products
	return result, nil
}
