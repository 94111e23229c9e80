package sim

import "biopharma/internal/component"

// DemoFacility builds the built-in example model: one antibody product made
// by a bioreactor, capture chromatography and ultrafiltration sequence. The
// step defaults give a working model without any parameter files; files in
// dataPath overlay them.
func DemoFacility(dataPath string) (*Facility, *Product, error) {
	facility, err := NewFacility(dataPath)
	if err != nil {
		return nil, nil, err
	}
	product, err := NewProduct(facility, "Antibody",
		NewBioreactor(""),
		NewChromatography(""),
		NewUltrafiltration(""),
	)
	if err != nil {
		return nil, nil, err
	}
	product.SetOverride(component.Parameters, "requiredMass", "3 kg")
	return facility, product, nil
}
