package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"biopharma/internal/component"
	"biopharma/internal/opt"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

// Config holds the analysis parameters and run collaborators. Samples seeds
// the analyser's parameter store, so a SensitivityAnalyser.yaml in the
// facility data directory can override it.
type Config struct {
	// Samples is the number of Monte-Carlo trials per run.
	Samples int

	// Logger receives run progress; discarded when nil.
	Logger *zap.Logger
	// Source is the run's random source. When nil, one is created from Seed,
	// or from a fresh random seed if Seed is zero. A surrounding optimisation
	// passes its own source here so nested runs stay reproducible.
	Source *opt.Source
	Seed   opt.Seed
}

// OutputSpec declares one model output whose sensitivity to the varied items
// is analysed.
type OutputSpec struct {
	// Name keys the statistics in the analyser's output store.
	Name string
	// Selector locates the component holding the output value.
	Selector opt.Selector
	// Item names the value within the component's collection.
	Item string
	// Collection is the collection read, outputs by default.
	Collection string
}

type outputDesc struct {
	spec     OutputSpec
	quantity *spec.QuantitySpec
}

// Stats holds the accumulated statistics of one tracked output, in the units
// of the output's specification. Var is the population variance.
type Stats struct {
	Min     units.Quantity
	Max     units.Quantity
	Avg     units.Quantity
	Var     units.Quantity
	Samples []units.Quantity
}

// Analyser runs Monte-Carlo trials of a model under uncertain inputs. It is
// itself a component: the trial count lives in its parameter store and the
// per-output statistics in its output store. It also implements
// component.Model, so an Optimiser can wrap it and optimise e.g. the variance
// of an output across trials.
type Analyser struct {
	*component.Base
	base      component.Model
	facility  component.Component
	logger    *zap.Logger
	source    *opt.Source
	variables []*Variable
	outputs   []outputDesc
}

// New creates an analyser over the given model. The analyser's own
// parameters are loaded here, not in Run, so values set directly on the
// parameter store afterwards stay in effect for the run.
func New(base component.Model, cfg Config) (*Analyser, error) {
	if base == nil {
		return nil, fmt.Errorf("a model to analyse is required")
	}
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("number of samples must be > 0")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Source == nil {
		seed := cfg.Seed
		if seed.IsZero() {
			seed = opt.RandomSeed()
		}
		cfg.Source = opt.NewSource(seed)
	}
	facility := base.Facility()
	if facility == nil {
		return nil, fmt.Errorf("model %s has no facility", base.Name())
	}

	a := &Analyser{
		base:     base,
		facility: facility,
		logger:   cfg.Logger,
		source:   cfg.Source,
	}
	a.Base = component.NewBase(a, component.Config{
		Name: "SensitivityAnalyser",
		Parameters: map[string]spec.Spec{
			"numberOfSamples": spec.Value(spec.Int, "how many Monte Carlo samples to take"),
		},
		Outputs: map[string]spec.Spec{
			"seed":        spec.Value(spec.Any, "the random state the analysis started from"),
			"failed_runs": spec.Value(spec.Int, "how many Monte Carlo runs failed to complete"),
		},
		Defaults: map[string]any{"numberOfSamples": cfg.Samples},
	})
	a.SetFacility(facility)
	if err := a.LoadParameters(); err != nil {
		return nil, err
	}
	return a, nil
}

// Source returns the run's random source.
func (a *Analyser) Source() *opt.Source { return a.source }

// SetSeed rewinds the random source, so the next Run reproduces a previous
// one exactly.
func (a *Analyser) SetSeed(seed opt.Seed) { a.source.Restore(seed) }

// AddVariable registers an uncertain aspect to vary across trials.
func (a *Analyser) AddVariable(v VariableSpec) error {
	if v.Distribution == nil {
		return fmt.Errorf("variable distribution is required")
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
	variable, err := newVariable(a.facility, v)
	if err != nil {
		return err
	}
	a.variables = append(a.variables, variable)
	return nil
}

// AddOutput registers a model output to track. The statistics specification
// is derived from the output item's own quantity spec, so min, max and mean
// share the output's units and the variance carries their square.
func (a *Analyser) AddOutput(out OutputSpec) error {
	if out.Name == "" {
		return fmt.Errorf("output name is required")
	}
	if out.Selector == nil {
		return fmt.Errorf("output selector is required")
	}
	if out.Item == "" {
		return fmt.Errorf("output item is required")
	}
	if out.Collection == "" {
		out.Collection = component.Outputs
	}
	if a.Outputs().Has(out.Name) {
		return fmt.Errorf("output %q is already registered", out.Name)
	}
	comp, err := out.Selector.Resolve(a.facility)
	if err != nil {
		return fmt.Errorf("output %q: %w", out.Name, err)
	}
	store, err := comp.Collection(out.Collection)
	if err != nil {
		return fmt.Errorf("output %q: %w", out.Name, err)
	}
	sp, err := store.ItemSpec(out.Item)
	if err != nil {
		return fmt.Errorf("output %q: %w", out.Name, err)
	}
	qs, ok := sp.(*spec.QuantitySpec)
	if !ok {
		return fmt.Errorf("output %q: item %s[%s] is not governed by a quantity spec", out.Name, comp.Name(), out.Item)
	}
	a.Outputs().MergeSpec(map[string]spec.Spec{
		out.Name: spec.Nested("sensitivity statistics for "+out.Name, map[string]spec.Spec{
			"min": qs.WithSameUnits("the minimum value for " + out.Name),
			"max": qs.WithSameUnits("the maximum value for " + out.Name),
			"avg": qs.WithSameUnits("the average value for " + out.Name),
			"var": qs.WithSquaredUnits("the variance for " + out.Name),
			"all": spec.Value(spec.List, "all the samples taken for "+out.Name),
		}),
	})
	a.outputs = append(a.outputs, outputDesc{spec: out, quantity: qs})
	return nil
}

// accumulator tracks one output's statistics online, in the magnitudes of
// the output's spec unit.
type accumulator struct {
	count    int
	min, max float64
	mean     float64
	variance float64
	samples  []units.Quantity
}

func (acc *accumulator) add(q units.Quantity) {
	mag := q.Mag()
	acc.min = math.Min(acc.min, mag)
	acc.max = math.Max(acc.max, mag)
	old := acc.mean
	acc.count++
	n := float64(acc.count)
	acc.mean = old + (mag-old)/n
	acc.variance = ((n-1)*acc.variance + (mag-old)*(mag-acc.mean)) / n
	acc.samples = append(acc.samples, q)
}

// Run executes the Monte-Carlo trials and records the statistics in the
// output store. The facility is taken as currently parameterised, so a
// surrounding optimisation's genome stays applied; only the registered
// variables change between trials. A run where every trial fails is an
// error; cancellation aborts immediately.
func (a *Analyser) Run(ctx context.Context) error {
	if len(a.outputs) == 0 {
		return fmt.Errorf("at least one output is required")
	}
	samples, err := a.Parameters().Int("numberOfSamples")
	if err != nil {
		return err
	}
	if samples <= 0 {
		return fmt.Errorf("number of samples must be > 0")
	}
	seed, err := a.source.Snapshot()
	if err != nil {
		return err
	}
	outputs := a.Outputs()
	if err := outputs.Set("seed", seed); err != nil {
		return err
	}
	if err := outputs.Set("failed_runs", 0); err != nil {
		return err
	}

	a.logger.Info("starting sensitivity analysis",
		zap.Int("samples", samples),
		zap.Int("variables", len(a.variables)),
		zap.Int("outputs", len(a.outputs)))

	accs := make([]accumulator, len(a.outputs))
	for i := range accs {
		accs[i] = accumulator{min: math.Inf(1), max: math.Inf(-1)}
	}
	failed := 0
	for trial := 1; trial <= samples; trial++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, v := range a.variables {
			v.Draw(a.source)
			if err := v.UpdateFacility(); err != nil {
				return err
			}
		}
		if err := a.base.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			failed++
			a.logger.Debug("trial failed", zap.Int("trial", trial), zap.Error(err))
			continue
		}
		for i := range a.outputs {
			value, err := a.outputValue(&a.outputs[i])
			if err != nil {
				return err
			}
			accs[i].add(value)
		}
		a.logger.Debug("trial finished", zap.Int("trial", trial))
	}

	if err := outputs.Set("failed_runs", failed); err != nil {
		return err
	}
	if failed == samples {
		return fmt.Errorf("all %d Monte Carlo runs failed", samples)
	}
	for i, out := range a.outputs {
		if err := a.flush(out, &accs[i]); err != nil {
			return err
		}
	}
	a.logger.Info("sensitivity analysis finished",
		zap.Int("samples", samples),
		zap.Int("failed_runs", failed))
	return nil
}

// outputValue reads one tracked output from the facility, converted to the
// units of its governing spec.
func (a *Analyser) outputValue(out *outputDesc) (units.Quantity, error) {
	comp, err := out.spec.Selector.Resolve(a.facility)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("output %q: %w", out.spec.Name, err)
	}
	store, err := comp.Collection(out.spec.Collection)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("output %q: %w", out.spec.Name, err)
	}
	q, err := store.Quantity(out.spec.Item)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("output %q: %w", out.spec.Name, err)
	}
	conv, err := q.To(out.quantity.Unit())
	if err != nil {
		return units.Quantity{}, fmt.Errorf("output %q: %w", out.spec.Name, err)
	}
	return conv, nil
}

func (a *Analyser) flush(out outputDesc, acc *accumulator) error {
	store, err := a.statsStore(out.spec.Name)
	if err != nil {
		return err
	}
	unit := out.quantity.Unit()
	if err := store.Set("min", units.New(acc.min, unit)); err != nil {
		return err
	}
	if err := store.Set("max", units.New(acc.max, unit)); err != nil {
		return err
	}
	if err := store.Set("avg", units.New(acc.mean, unit)); err != nil {
		return err
	}
	if err := store.Set("var", units.New(acc.variance, unit.Squared())); err != nil {
		return err
	}
	return store.Set("all", append([]units.Quantity(nil), acc.samples...))
}

// Stats returns the accumulated statistics of one tracked output after a
// run.
func (a *Analyser) Stats(name string) (Stats, error) {
	store, err := a.statsStore(name)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if stats.Min, err = store.Quantity("min"); err != nil {
		return Stats{}, err
	}
	if stats.Max, err = store.Quantity("max"); err != nil {
		return Stats{}, err
	}
	if stats.Avg, err = store.Quantity("avg"); err != nil {
		return Stats{}, err
	}
	if stats.Var, err = store.Quantity("var"); err != nil {
		return Stats{}, err
	}
	all, err := store.Get("all")
	if err != nil {
		return Stats{}, err
	}
	samples, ok := all.([]units.Quantity)
	if !ok {
		return Stats{}, fmt.Errorf("output %q samples hold %T", name, all)
	}
	stats.Samples = samples
	return stats, nil
}

// FailedRuns returns how many trials of the last run failed.
func (a *Analyser) FailedRuns() (int, error) {
	return a.Outputs().Int("failed_runs")
}

// StartSeed returns the random state the last run started from.
func (a *Analyser) StartSeed() (opt.Seed, error) {
	value, err := a.Outputs().Get("seed")
	if err != nil {
		return opt.Seed{}, err
	}
	seed, ok := value.(opt.Seed)
	if !ok {
		return opt.Seed{}, fmt.Errorf("output seed holds %T", value)
	}
	return seed, nil
}

func (a *Analyser) statsStore(name string) (*component.Store, error) {
	value, err := a.Outputs().Get(name)
	if err != nil {
		return nil, err
	}
	store, ok := value.(*component.Store)
	if !ok {
		return nil, fmt.Errorf("output %q is not a statistics collection", name)
	}
	return store, nil
}
