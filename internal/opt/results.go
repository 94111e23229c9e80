package opt

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type resultsDocument struct {
	FinalPopulation     []individualDocument `yaml:"finalPopulation"`
	BestIndividuals     []individualDocument `yaml:"bestIndividuals"`
	BestObjectiveValues [][]float64          `yaml:"bestObjectiveValues"`
	Seed                Seed                 `yaml:"seed"`
}

type individualDocument struct {
	Error     *string            `yaml:"error"`
	Variables []variableDocument `yaml:"variables"`
	Fitness   []float64          `yaml:"fitness,flow"`
}

type variableDocument struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// SaveResults renders the outputs of the last run as a YAML document that
// LoadResults can restore on an identically configured optimiser.
func (o *Optimiser) SaveResults() ([]byte, error) {
	pop, err := o.FinalPopulation()
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	best, err := o.BestIndividuals()
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	values, err := o.BestObjectiveValues()
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	seed, err := o.StartSeed()
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	doc := resultsDocument{
		FinalPopulation:     make([]individualDocument, 0, len(pop)),
		BestIndividuals:     make([]individualDocument, 0, len(best)),
		BestObjectiveValues: values,
		Seed:                seed,
	}
	for _, ind := range pop {
		doc.FinalPopulation = append(doc.FinalPopulation, documentOf(ind))
	}
	for _, ind := range best {
		doc.BestIndividuals = append(doc.BestIndividuals, documentOf(ind))
	}
	return yaml.Marshal(doc)
}

func documentOf(ind *Individual) individualDocument {
	doc := individualDocument{
		Fitness: append([]float64(nil), ind.Fitness.Values()...),
	}
	if ind.Err != nil {
		msg := ind.Err.Error()
		doc.Error = &msg
	}
	for _, v := range ind.variables {
		doc.Variables = append(doc.Variables, variableDocument{Name: v.name, Value: v.value})
	}
	return doc
}

// LoadResults restores the outputs of a previous run. The optimiser must
// carry the same variables and objectives as the run that produced the
// document; a variable name mismatch is an error.
func (o *Optimiser) LoadResults(data []byte) error {
	if err := o.initialise(); err != nil {
		return err
	}
	var doc resultsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse results: %w", err)
	}
	outputs := o.Outputs()
	if err := outputs.Set("seed", doc.Seed); err != nil {
		return err
	}
	if err := outputs.Set("bestObjectiveValues", doc.BestObjectiveValues); err != nil {
		return err
	}
	pop := make([]*Individual, 0, len(doc.FinalPopulation))
	for i, indDoc := range doc.FinalPopulation {
		ind, err := o.loadIndividual(indDoc)
		if err != nil {
			return fmt.Errorf("results individual %d: %w", i, err)
		}
		pop = append(pop, ind)
	}
	if err := outputs.Set("finalPopulation", pop); err != nil {
		return err
	}
	// Best individuals are the same objects as their final-population
	// counterparts, matched by genome.
	best := make([]*Individual, 0, len(doc.BestIndividuals))
	for i, indDoc := range doc.BestIndividuals {
		template, err := o.loadIndividual(indDoc)
		if err != nil {
			return fmt.Errorf("results best individual %d: %w", i, err)
		}
		member := template
		for _, ind := range pop {
			if ind.Equal(template) {
				member = ind
				break
			}
		}
		best = append(best, member)
	}
	return outputs.Set("bestIndividuals", best)
}

func (o *Optimiser) loadIndividual(doc individualDocument) (*Individual, error) {
	ind, err := newIndividual(o, false, nil)
	if err != nil {
		return nil, err
	}
	if doc.Error != nil {
		ind.Err = errors.New(*doc.Error)
	}
	if len(doc.Fitness) > 0 {
		if err := ind.Fitness.SetValues(doc.Fitness); err != nil {
			return nil, err
		}
	}
	if len(doc.Variables) != len(ind.variables) {
		return nil, fmt.Errorf("expected %d variables, got %d", len(ind.variables), len(doc.Variables))
	}
	for i, v := range ind.variables {
		varDoc := doc.Variables[i]
		if varDoc.Name != v.name {
			return nil, fmt.Errorf("variable %d is named %q, expected %q", i, varDoc.Name, v.name)
		}
		comp, err := v.Component()
		if err != nil {
			return nil, err
		}
		store, err := comp.Collection(v.collection)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.name, err)
		}
		sp, err := store.ItemSpec(v.item)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.name, err)
		}
		parsed, err := sp.Parse(varDoc.Value)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.name, err)
		}
		v.value = parsed
	}
	return ind, nil
}
