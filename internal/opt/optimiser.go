package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"biopharma/internal/component"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

// Config holds the genetic-algorithm parameters and run collaborators. The
// numeric parameters seed the optimiser's parameter store, so an
// Optimiser.yaml in the facility data directory can override them.
type Config struct {
	// PopulationSize is the number of individuals per generation.
	PopulationSize int
	// MaxGenerations is the number of breeding cycles after the initial
	// population.
	MaxGenerations int
	// CrossoverProbability gates whether an adjacent offspring pair mates.
	CrossoverProbability float64
	// GeneCrossoverProbability is the per-variable swap probability within a
	// mating pair.
	GeneCrossoverProbability float64
	// MutationRate divided by the genome length gives the per-variable
	// redraw probability during mutation.
	MutationRate float64

	// Logger receives run progress; discarded when nil.
	Logger *zap.Logger
	// Evaluator runs model evaluations; SerialEvaluator when nil.
	Evaluator Evaluator
	// Source is the run's random source. When nil, one is created from Seed,
	// or from a fresh random seed if Seed is zero.
	Source *Source
	Seed   Seed
}

// ObjectiveSpec declares one optimisation objective read from a component
// collection after each model run.
type ObjectiveSpec struct {
	// Selector locates the component holding the objective value.
	Selector Selector
	// Item names the value; Path addresses nested stores instead when set.
	Item string
	Path []string
	// Collection is the collection read, outputs by default.
	Collection string
	// Exactly one of Minimise and Maximise must be set.
	Minimise bool
	Maximise bool
	// Weight scales this objective against the others, 1 by default.
	Weight float64
}

type objective struct {
	spec ObjectiveSpec
	// weight is signed: negative for minimised objectives, so selection
	// always maximises the weighted value.
	weight float64
	// failure is the weighted-worst value assigned when the model fails.
	failure float64
}

func (o objective) path() []string {
	if len(o.spec.Path) > 0 {
		return o.spec.Path
	}
	return []string{o.spec.Item}
}

func (o objective) name() string {
	return fmt.Sprintf("%s[%s]", o.spec.Selector, strings.Join(o.path(), "."))
}

// Optimiser evolves configurations of a model with a genetic algorithm. It is
// itself a component: GA parameters live in its parameter store and results
// in its output store.
type Optimiser struct {
	*component.Base
	base       component.Model
	facility   component.Component
	logger     *zap.Logger
	evaluator  Evaluator
	source     *Source
	variables  []VariableSpec
	objectives []objective
	weights    []float64
	parents    ParentSelector
	survivors  SurvivorSelector
	logbook    *Logbook
}

func optimiserParameterSpecs() map[string]spec.Spec {
	return map[string]spec.Spec{
		"populationSize":           spec.Value(spec.Int, "number of individuals per generation"),
		"maxGenerations":           spec.Value(spec.Int, "number of breeding cycles"),
		"crossoverProbability":     spec.Value(spec.Float, "probability that an offspring pair mates"),
		"geneCrossoverProbability": spec.Value(spec.Float, "per-variable swap probability when mating"),
		"mutationRate":             spec.Value(spec.Float, "expected number of redrawn variables per mutation"),
	}
}

func optimiserOutputSpecs() map[string]spec.Spec {
	return map[string]spec.Spec{
		"finalPopulation":     spec.Value(spec.List, "population after the last generation"),
		"bestIndividuals":     spec.Value(spec.List, "best distinct individual per objective"),
		"bestObjectiveValues": spec.Value(spec.List, "objective values of the best individuals"),
		"seed":                spec.Value(spec.Any, "random state the run started from"),
	}
}

// New creates an optimiser over the given model. The model's facility is
// reset and re-parameterised for every candidate evaluation. The optimiser's
// own parameters are loaded here, not in Run, so values set directly on the
// parameter store afterwards stay in effect for the run.
func New(base component.Model, cfg Config) (*Optimiser, error) {
	if base == nil {
		return nil, fmt.Errorf("a model to optimise is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.MaxGenerations < 0 {
		return nil, fmt.Errorf("max generations must be >= 0")
	}
	if cfg.CrossoverProbability < 0 || cfg.CrossoverProbability > 1 {
		return nil, fmt.Errorf("crossover probability must be in [0, 1]")
	}
	if cfg.GeneCrossoverProbability < 0 || cfg.GeneCrossoverProbability > 1 {
		return nil, fmt.Errorf("gene crossover probability must be in [0, 1]")
	}
	if cfg.MutationRate < 0 {
		return nil, fmt.Errorf("mutation rate must be >= 0")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = SerialEvaluator{}
	}
	if cfg.Source == nil {
		seed := cfg.Seed
		if seed.IsZero() {
			seed = RandomSeed()
		}
		cfg.Source = NewSource(seed)
	}
	facility := base.Facility()
	if facility == nil {
		return nil, fmt.Errorf("model %s has no facility", base.Name())
	}

	o := &Optimiser{
		base:      base,
		facility:  facility,
		logger:    cfg.Logger,
		evaluator: cfg.Evaluator,
		source:    cfg.Source,
		logbook:   &Logbook{},
	}
	o.Base = component.NewBase(o, component.Config{
		Name:       "Optimiser",
		Parameters: optimiserParameterSpecs(),
		Outputs:    optimiserOutputSpecs(),
		Defaults: map[string]any{
			"populationSize":           cfg.PopulationSize,
			"maxGenerations":           cfg.MaxGenerations,
			"crossoverProbability":     cfg.CrossoverProbability,
			"geneCrossoverProbability": cfg.GeneCrossoverProbability,
			"mutationRate":             cfg.MutationRate,
		},
	})
	o.SetFacility(facility)
	if err := o.LoadParameters(); err != nil {
		return nil, err
	}
	return o, nil
}

// Source returns the run's random source, e.g. for reuse by distributions in
// a surrounding analysis.
func (o *Optimiser) Source() *Source { return o.source }

// SetSeed rewinds the random source, e.g. to the seed recorded in the
// outputs, so the next Run reproduces a previous one exactly.
func (o *Optimiser) SetSeed(seed Seed) { o.source.Restore(seed) }

// Logbook returns the per-generation statistics of the last run.
func (o *Optimiser) Logbook() *Logbook { return o.logbook }

// AddVariable appends a gene to the genome. Declaration order is breeding
// order, which matters for dependent ranges repaired left to right.
func (o *Optimiser) AddVariable(v VariableSpec) error {
	if v.Generator == nil {
		return fmt.Errorf("variable generator is required")
	}
	if v.Selector == nil {
		return fmt.Errorf("variable selector is required")
	}
	if v.Item == "" {
		return fmt.Errorf("variable item is required")
	}
	if v.Collection == "" {
		v.Collection = component.Parameters
	}
	o.variables = append(o.variables, v)
	return nil
}

// AddObjective appends an optimisation objective.
func (o *Optimiser) AddObjective(obj ObjectiveSpec) error {
	if obj.Selector == nil {
		return fmt.Errorf("objective selector is required")
	}
	if obj.Item == "" && len(obj.Path) == 0 {
		return fmt.Errorf("objective item is required")
	}
	if obj.Minimise == obj.Maximise {
		return fmt.Errorf("exactly one of minimise and maximise is required")
	}
	if obj.Weight < 0 {
		return fmt.Errorf("objective weight must be > 0")
	}
	if obj.Weight == 0 {
		obj.Weight = 1
	}
	if obj.Collection == "" {
		obj.Collection = component.Outputs
	}
	weight := obj.Weight
	if obj.Minimise {
		weight = -weight
	}
	o.objectives = append(o.objectives, objective{
		spec:    obj,
		weight:  weight,
		failure: weight * math.Inf(-1),
	})
	return nil
}

func (o *Optimiser) initialise() error {
	if len(o.variables) == 0 {
		return fmt.Errorf("at least one variable is required")
	}
	if len(o.objectives) == 0 {
		return fmt.Errorf("at least one objective is required")
	}
	o.weights = make([]float64, len(o.objectives))
	for i, obj := range o.objectives {
		o.weights[i] = obj.weight
	}
	if len(o.objectives) == 1 {
		o.parents = Tournament{Size: 2}
		o.survivors = Best{}
	} else {
		o.parents = NSGA2Tournament{Size: 2}
		o.survivors = NSGA2{}
	}
	o.logbook = &Logbook{}
	return nil
}

type gaParameters struct {
	populationSize           int
	maxGenerations           int
	crossoverProbability     float64
	geneCrossoverProbability float64
	mutationRate             float64
}

// gaParameters reads the effective GA parameters from the parameter store,
// re-validating because a parameter file may have overridden the configured
// values.
func (o *Optimiser) gaParameters() (gaParameters, error) {
	params := o.Parameters()
	var p gaParameters
	var err error
	if p.populationSize, err = params.Int("populationSize"); err != nil {
		return p, err
	}
	if p.maxGenerations, err = params.Int("maxGenerations"); err != nil {
		return p, err
	}
	if p.crossoverProbability, err = params.Float("crossoverProbability"); err != nil {
		return p, err
	}
	if p.geneCrossoverProbability, err = params.Float("geneCrossoverProbability"); err != nil {
		return p, err
	}
	if p.mutationRate, err = params.Float("mutationRate"); err != nil {
		return p, err
	}
	if p.populationSize <= 0 {
		return p, fmt.Errorf("population size must be > 0")
	}
	if p.maxGenerations < 0 {
		return p, fmt.Errorf("max generations must be >= 0")
	}
	if p.crossoverProbability < 0 || p.crossoverProbability > 1 {
		return p, fmt.Errorf("crossover probability must be in [0, 1]")
	}
	if p.geneCrossoverProbability < 0 || p.geneCrossoverProbability > 1 {
		return p, fmt.Errorf("gene crossover probability must be in [0, 1]")
	}
	if p.mutationRate < 0 {
		return p, fmt.Errorf("mutation rate must be >= 0")
	}
	return p, nil
}

// Run evolves the population and records the results in the output store.
func (o *Optimiser) Run(ctx context.Context) error {
	if err := o.initialise(); err != nil {
		return err
	}
	if err := o.facility.LoadParameters(); err != nil {
		return fmt.Errorf("reset facility: %w", err)
	}
	p, err := o.gaParameters()
	if err != nil {
		return err
	}
	seed, err := o.source.Snapshot()
	if err != nil {
		return err
	}
	if err := o.Outputs().Set("seed", seed); err != nil {
		return err
	}

	o.logger.Info("starting optimisation",
		zap.Int("population_size", p.populationSize),
		zap.Int("max_generations", p.maxGenerations),
		zap.Int("variables", len(o.variables)),
		zap.Int("objectives", len(o.objectives)),
		zap.String("parent_selection", o.parents.Name()),
		zap.String("survivor_selection", o.survivors.Name()))

	pop := make([]*Individual, 0, p.populationSize)
	for i := 0; i < p.populationSize; i++ {
		ind, err := newIndividual(o, true, o.source)
		if err != nil {
			return fmt.Errorf("draw initial population: %w", err)
		}
		pop = append(pop, ind)
	}
	if err := o.evaluator.Map(ctx, o.evaluate, pop); err != nil {
		return err
	}

	for gen := 0; gen < p.maxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.record(gen, pop)

		parents, err := o.parents.Select(o.source, pop, len(pop))
		if err != nil {
			return err
		}
		offspring := make([]*Individual, len(parents))
		for i, ind := range parents {
			offspring[i] = ind.Clone()
		}

		for i := 0; i+1 < len(offspring); i += 2 {
			if o.source.Float64() >= p.crossoverProbability {
				continue
			}
			if err := o.crossover(offspring[i], offspring[i+1], p.geneCrossoverProbability); err != nil {
				return err
			}
		}
		for _, mutant := range offspring {
			if err := o.mutate(mutant, p.mutationRate); err != nil {
				return err
			}
		}

		invalid := make([]*Individual, 0, len(offspring))
		for _, ind := range offspring {
			if !ind.Fitness.Valid() {
				invalid = append(invalid, ind)
			}
		}
		if err := o.evaluator.Map(ctx, o.evaluate, invalid); err != nil {
			return err
		}

		combined := make([]*Individual, 0, len(pop)+len(offspring))
		combined = append(combined, pop...)
		combined = append(combined, offspring...)
		pop, err = o.survivors.Select(combined, len(pop))
		if err != nil {
			return err
		}
	}
	o.record(p.maxGenerations, pop)

	best := o.bestIndividuals(pop)
	values := make([][]float64, len(best))
	for i, ind := range best {
		values[i] = append([]float64(nil), ind.Fitness.Values()...)
	}
	outputs := o.Outputs()
	if err := outputs.Set("finalPopulation", pop); err != nil {
		return err
	}
	if err := outputs.Set("bestIndividuals", best); err != nil {
		return err
	}
	if err := outputs.Set("bestObjectiveValues", values); err != nil {
		return err
	}

	o.logger.Info("optimisation finished",
		zap.Int("generations", p.maxGenerations),
		zap.Int("best_individuals", len(best)))
	return nil
}

// crossover swaps variable values between a mating pair, then repairs both so
// dependent constraints hold again.
func (o *Optimiser) crossover(a, b *Individual, geneProb float64) error {
	for i := range a.variables {
		if o.source.Float64() < geneProb {
			a.variables[i].value, b.variables[i].value = b.variables[i].value, a.variables[i].value
		}
	}
	a.Fitness.Invalidate()
	b.Fitness.Invalidate()
	if err := a.Repair(o.source); err != nil {
		return err
	}
	return b.Repair(o.source)
}

// mutate redraws each variable with probability rate/len(genome). The genome
// is applied first so draws and hooks observe this individual's state.
func (o *Optimiser) mutate(ind *Individual, rate float64) error {
	geneProb := rate / float64(len(ind.variables))
	if err := ind.ApplyToFacility(); err != nil {
		return err
	}
	for _, v := range ind.variables {
		if o.source.Float64() < geneProb {
			if err := v.Draw(o.source); err != nil {
				return err
			}
		}
	}
	ind.Fitness.Invalidate()
	return ind.Repair(o.source)
}

// evaluate runs the model for one individual's genome and records the
// objective values. Model failures become worst-case fitness; cancellation
// aborts the whole run.
func (o *Optimiser) evaluate(ctx context.Context, ind *Individual) error {
	if err := ind.ApplyToFacility(); err != nil {
		return err
	}
	valid, err := ind.IsValid()
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("individual %s failed validity check before evaluation", ind)
	}
	ind.Err = nil
	if err := o.base.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ind.Err = err
			return err
		}
		ind.Err = err
		o.logger.Warn("model run failed",
			zap.String("individual", ind.String()),
			zap.Error(err))
		failures := make([]float64, len(o.objectives))
		for i, obj := range o.objectives {
			failures[i] = obj.failure
		}
		return ind.Fitness.SetValues(failures)
	}
	values := make([]float64, len(o.objectives))
	for i := range o.objectives {
		value, err := o.objectiveValue(&o.objectives[i])
		if err != nil {
			return err
		}
		values[i] = value
	}
	return ind.Fitness.SetValues(values)
}

func (o *Optimiser) objectiveValue(obj *objective) (float64, error) {
	comp, err := obj.spec.Selector.Resolve(o.base)
	if err != nil {
		return 0, fmt.Errorf("objective %s: %w", obj.name(), err)
	}
	store, err := comp.Collection(obj.spec.Collection)
	if err != nil {
		return 0, fmt.Errorf("objective %s: %w", obj.name(), err)
	}
	value, err := store.GetPath(obj.path()...)
	if err != nil {
		return 0, fmt.Errorf("objective %s: %w", obj.name(), err)
	}
	if q, ok := value.(units.Quantity); ok {
		return q.Mag(), nil
	}
	if f, ok := toFloat(value); ok {
		return f, nil
	}
	return 0, fmt.Errorf("objective %s value %v (%T) is not numeric", obj.name(), value, value)
}

// record captures population statistics for one generation.
func (o *Optimiser) record(gen int, pop []*Individual) {
	rec := Record{Generation: gen, Fitness: fitnessStats(pop, len(o.objectives))}
	for i, vs := range o.variables {
		if vs.Track == TrackNone || len(pop) == 0 {
			continue
		}
		name := pop[0].variables[i].name
		values := make([]any, 0, len(pop))
		for _, ind := range pop {
			values = append(values, ind.variables[i].value)
		}
		switch vs.Track {
		case TrackNumerical:
			if stats, ok := numericStats(values); ok {
				if rec.Numeric == nil {
					rec.Numeric = make(map[string]QuantityStats)
				}
				rec.Numeric[name] = stats
			}
		case TrackDiscrete:
			if rec.Counts == nil {
				rec.Counts = make(map[string]map[string]int)
			}
			rec.Counts[name] = discreteCounts(values)
		}
	}
	o.logbook.Add(rec)

	fields := make([]zap.Field, 0, 1+3*len(rec.Fitness))
	fields = append(fields, zap.Int("generation", gen))
	for i, fs := range rec.Fitness {
		fields = append(fields,
			zap.Float64(fmt.Sprintf("objective%d_min", i), fs.Min),
			zap.Float64(fmt.Sprintf("objective%d_mean", i), fs.Mean),
			zap.Float64(fmt.Sprintf("objective%d_max", i), fs.Max))
	}
	o.logger.Info("generation statistics", fields...)
}

// bestIndividuals picks, for each objective, the individual with the best
// weighted value, deduplicated by genome equality in population order.
func (o *Optimiser) bestIndividuals(pop []*Individual) []*Individual {
	if len(pop) == 0 {
		return nil
	}
	best := make([]*Individual, 0, len(o.objectives))
	for i, obj := range o.objectives {
		top := pop[0]
		for _, ind := range pop[1:] {
			if ind.Fitness.Values()[i]*obj.weight > top.Fitness.Values()[i]*obj.weight {
				top = ind
			}
		}
		best = append(best, top)
	}
	unique := make([]*Individual, 0, len(best))
	for _, ind := range pop {
		matches := false
		for _, b := range best {
			if ind.Equal(b) {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		dup := false
		for _, u := range unique {
			if ind.Equal(u) {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, ind)
		}
	}
	return unique
}

// FinalPopulation returns the population left by the last run.
func (o *Optimiser) FinalPopulation() ([]*Individual, error) {
	return o.individualsOutput("finalPopulation")
}

// BestIndividuals returns the best distinct individual per objective from the
// last run.
func (o *Optimiser) BestIndividuals() ([]*Individual, error) {
	return o.individualsOutput("bestIndividuals")
}

// BestObjectiveValues returns the objective values of the best individuals
// from the last run.
func (o *Optimiser) BestObjectiveValues() ([][]float64, error) {
	value, err := o.Outputs().Get("bestObjectiveValues")
	if err != nil {
		return nil, err
	}
	values, ok := value.([][]float64)
	if !ok {
		return nil, fmt.Errorf("output bestObjectiveValues holds %T", value)
	}
	return values, nil
}

// StartSeed returns the random state the last run started from.
func (o *Optimiser) StartSeed() (Seed, error) {
	value, err := o.Outputs().Get("seed")
	if err != nil {
		return Seed{}, err
	}
	seed, ok := value.(Seed)
	if !ok {
		return Seed{}, fmt.Errorf("output seed holds %T", value)
	}
	return seed, nil
}

func (o *Optimiser) individualsOutput(item string) ([]*Individual, error) {
	value, err := o.Outputs().Get(item)
	if err != nil {
		return nil, err
	}
	individuals, ok := value.([]*Individual)
	if !ok {
		return nil, fmt.Errorf("output %s holds %T", item, value)
	}
	return individuals, nil
}
