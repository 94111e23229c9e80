// Package biopharma is the public facade over the process model, the genetic
// optimiser and the Monte-Carlo sensitivity analyser. A Client builds the
// built-in facility model, configures a run from a declarative request,
// executes it and records the outcome in the experiment store.
package biopharma

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"biopharma/internal/model"
	"biopharma/internal/opt"
	"biopharma/internal/sensitivity"
	"biopharma/internal/sim"
	"biopharma/internal/storage"
	"biopharma/internal/units"
)

const defaultDBPath = "biopharma.db"

type Options struct {
	// StoreKind selects the experiment store backend: memory or sqlite.
	StoreKind string
	// DBPath is the sqlite database path.
	DBPath string
	// DataPath is the facility data directory holding parameter files;
	// empty means in-code defaults only.
	DataPath string
	// Logger receives run progress; discarded when nil.
	Logger *zap.Logger
}

type Client struct {
	store    storage.Store
	logger   *zap.Logger
	dataPath string
}

// VariableRequest declares one gene of the genome. Exactly one of the value
// sources applies: Min/Max for a range, Choices for an enumeration, Binary
// for a flag.
type VariableRequest struct {
	// Step names the process step holding the item; empty targets the
	// product.
	Step string
	// Product indexes the product holding the step, the first by default.
	Product int
	// Item names the value within the component's collection.
	Item string
	// Collection is inputs, outputs or parameters; parameters by default.
	Collection string

	// Min and Max bound a range, e.g. "0.5" or "20 L". Continuous switches
	// the range to real-valued draws.
	Min        string
	Max        string
	Continuous bool
	// Choices enumerates the allowed values.
	Choices []string
	// Binary draws a flag that flips on every redraw.
	Binary bool

	// Track adds the variable to the per-generation statistics: "numeric"
	// or "discrete".
	Track string
}

// ObjectiveRequest declares one optimisation objective.
type ObjectiveRequest struct {
	// Step names the process step read; empty reads the product.
	Step string
	// Product indexes the product, the first by default.
	Product int
	// Item names the value; Path addresses nested stores instead when set.
	Item string
	Path []string
	// Collection is the collection read, outputs by default.
	Collection string
	// Direction is "minimise" or "maximise".
	Direction string
	// Weight scales this objective against the others, 1 by default.
	Weight float64
}

type OptimisationRequest struct {
	Population               int
	Generations              int
	CrossoverProbability     float64
	GeneCrossoverProbability float64
	MutationRate             float64
	// Seed is the [hi, lo] random state to start from; zero picks a fresh
	// random seed.
	Seed       [2]uint64
	Variables  []VariableRequest
	Objectives []ObjectiveRequest
}

type OptimisationSummary struct {
	ExperimentID        string
	Seed                [2]uint64
	BestObjectiveValues [][]float64
	// ResultsYAML is the full results document, loadable through an
	// identically configured optimiser.
	ResultsYAML []byte
}

// DistributionRequest declares the distribution of one uncertain item.
// Uniform and triangular take Min/Max; gaussian takes Mean/Std.
type DistributionRequest struct {
	// Kind is "uniform", "gaussian" or "triangular".
	Kind string
	Min  string
	Max  string
	Mean string
	Std  string
}

type SensitivityVariableRequest struct {
	Step         string
	Product      int
	Item         string
	Collection   string
	Distribution DistributionRequest
}

type SensitivityOutputRequest struct {
	// Name keys the statistics in the results.
	Name       string
	Step       string
	Product    int
	Item       string
	Collection string
}

type SensitivityRequest struct {
	Samples   int
	Seed      [2]uint64
	Variables []SensitivityVariableRequest
	Outputs   []SensitivityOutputRequest
}

type SensitivitySummary struct {
	ExperimentID string
	Seed         [2]uint64
	FailedRuns   int
	Outputs      map[string]model.OutputStatsRecord
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:    store,
		logger:   logger,
		dataPath: opts.DataPath,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// RunOptimisation evolves the built-in facility model towards the requested
// objectives and records the outcome as an experiment.
func (c *Client) RunOptimisation(ctx context.Context, req OptimisationRequest) (OptimisationSummary, error) {
	if req.Population <= 0 {
		req.Population = 20
	}
	if req.Generations <= 0 {
		req.Generations = 10
	}
	if req.CrossoverProbability <= 0 {
		req.CrossoverProbability = 0.7
	}
	if req.GeneCrossoverProbability <= 0 {
		req.GeneCrossoverProbability = 0.5
	}
	if req.MutationRate <= 0 {
		req.MutationRate = 1
	}
	if len(req.Variables) == 0 {
		return OptimisationSummary{}, errors.New("at least one variable is required")
	}
	if len(req.Objectives) == 0 {
		return OptimisationSummary{}, errors.New("at least one objective is required")
	}

	facility, _, err := sim.DemoFacility(c.dataPath)
	if err != nil {
		return OptimisationSummary{}, err
	}
	optimiser, err := opt.New(facility, opt.Config{
		PopulationSize:           req.Population,
		MaxGenerations:           req.Generations,
		CrossoverProbability:     req.CrossoverProbability,
		GeneCrossoverProbability: req.GeneCrossoverProbability,
		MutationRate:             req.MutationRate,
		Logger:                   c.logger,
		Seed:                     opt.Seed{Hi: req.Seed[0], Lo: req.Seed[1]},
	})
	if err != nil {
		return OptimisationSummary{}, err
	}

	for i, v := range req.Variables {
		spec, err := variableSpecFrom(v)
		if err != nil {
			return OptimisationSummary{}, fmt.Errorf("variable %d: %w", i, err)
		}
		if err := optimiser.AddVariable(spec); err != nil {
			return OptimisationSummary{}, fmt.Errorf("variable %d: %w", i, err)
		}
	}
	objectives := make([]model.ObjectiveRecord, 0, len(req.Objectives))
	for i, o := range req.Objectives {
		spec, err := objectiveSpecFrom(o)
		if err != nil {
			return OptimisationSummary{}, fmt.Errorf("objective %d: %w", i, err)
		}
		if err := optimiser.AddObjective(spec); err != nil {
			return OptimisationSummary{}, fmt.Errorf("objective %d: %w", i, err)
		}
		objectives = append(objectives, model.ObjectiveRecord{
			Target:    objectiveTarget(o),
			Direction: o.Direction,
			Weight:    spec.Weight,
		})
	}

	if err := optimiser.Run(ctx); err != nil {
		return OptimisationSummary{}, err
	}

	seed, err := optimiser.StartSeed()
	if err != nil {
		return OptimisationSummary{}, err
	}
	values, err := optimiser.BestObjectiveValues()
	if err != nil {
		return OptimisationSummary{}, err
	}
	results, err := optimiser.SaveResults()
	if err != nil {
		return OptimisationSummary{}, err
	}

	record := model.ExperimentRecord{
		VersionedRecord:     versioned(),
		ID:                  uuid.NewString(),
		Kind:                model.KindOptimisation,
		CreatedAtUTC:        time.Now().UTC().Format(time.RFC3339),
		Seed:                [2]uint64{seed.Hi, seed.Lo},
		PopulationSize:      req.Population,
		Generations:         req.Generations,
		Objectives:          objectives,
		BestObjectiveValues: values,
		ResultsYAML:         results,
	}
	if err := c.store.SaveExperiment(ctx, record); err != nil {
		return OptimisationSummary{}, fmt.Errorf("save experiment: %w", err)
	}

	return OptimisationSummary{
		ExperimentID:        record.ID,
		Seed:                record.Seed,
		BestObjectiveValues: values,
		ResultsYAML:         results,
	}, nil
}

// RunSensitivity sweeps the built-in facility model under uncertain inputs
// and records the output statistics as an experiment.
func (c *Client) RunSensitivity(ctx context.Context, req SensitivityRequest) (SensitivitySummary, error) {
	if req.Samples <= 0 {
		req.Samples = 100
	}
	if len(req.Variables) == 0 {
		return SensitivitySummary{}, errors.New("at least one variable is required")
	}
	if len(req.Outputs) == 0 {
		return SensitivitySummary{}, errors.New("at least one output is required")
	}

	facility, _, err := sim.DemoFacility(c.dataPath)
	if err != nil {
		return SensitivitySummary{}, err
	}
	// The analyser samples the facility as currently parameterised, so the
	// baseline parameters must be in place before the sweep starts.
	if err := facility.LoadParameters(); err != nil {
		return SensitivitySummary{}, fmt.Errorf("load facility parameters: %w", err)
	}
	analyser, err := sensitivity.New(facility, sensitivity.Config{
		Samples: req.Samples,
		Logger:  c.logger,
		Seed:    opt.Seed{Hi: req.Seed[0], Lo: req.Seed[1]},
	})
	if err != nil {
		return SensitivitySummary{}, err
	}

	for i, v := range req.Variables {
		dist, err := distributionFrom(v.Distribution)
		if err != nil {
			return SensitivitySummary{}, fmt.Errorf("variable %d: %w", i, err)
		}
		err = analyser.AddVariable(sensitivity.VariableSpec{
			Distribution: dist,
			Selector:     selectorFor(v.Step, v.Product),
			Item:         v.Item,
			Collection:   v.Collection,
		})
		if err != nil {
			return SensitivitySummary{}, fmt.Errorf("variable %d: %w", i, err)
		}
	}
	for i, o := range req.Outputs {
		err := analyser.AddOutput(sensitivity.OutputSpec{
			Name:       o.Name,
			Selector:   selectorFor(o.Step, o.Product),
			Item:       o.Item,
			Collection: o.Collection,
		})
		if err != nil {
			return SensitivitySummary{}, fmt.Errorf("output %d: %w", i, err)
		}
	}

	if err := analyser.Run(ctx); err != nil {
		return SensitivitySummary{}, err
	}

	seed, err := analyser.StartSeed()
	if err != nil {
		return SensitivitySummary{}, err
	}
	failed, err := analyser.FailedRuns()
	if err != nil {
		return SensitivitySummary{}, err
	}
	outputs := make(map[string]model.OutputStatsRecord, len(req.Outputs))
	for _, o := range req.Outputs {
		stats, err := analyser.Stats(o.Name)
		if err != nil {
			return SensitivitySummary{}, err
		}
		outputs[o.Name] = model.OutputStatsRecord{
			Unit:     stats.Avg.Unit().Name(),
			Min:      stats.Min.Mag(),
			Max:      stats.Max.Mag(),
			Avg:      stats.Avg.Mag(),
			Var:      stats.Var.Mag(),
			NSamples: len(stats.Samples),
		}
	}

	record := model.ExperimentRecord{
		VersionedRecord: versioned(),
		ID:              uuid.NewString(),
		Kind:            model.KindSensitivity,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		Seed:            [2]uint64{seed.Hi, seed.Lo},
		Samples:         req.Samples,
		FailedRuns:      failed,
		Outputs:         outputs,
	}
	if err := c.store.SaveExperiment(ctx, record); err != nil {
		return SensitivitySummary{}, fmt.Errorf("save experiment: %w", err)
	}

	return SensitivitySummary{
		ExperimentID: record.ID,
		Seed:         record.Seed,
		FailedRuns:   failed,
		Outputs:      outputs,
	}, nil
}

// Experiment reads one recorded experiment back from the store.
func (c *Client) Experiment(ctx context.Context, id string) (model.ExperimentRecord, bool, error) {
	return c.store.GetExperiment(ctx, id)
}

// Experiments lists all recorded experiments in creation order.
func (c *Client) Experiments(ctx context.Context) ([]model.ExperimentRecord, error) {
	return c.store.ListExperiments(ctx)
}

func versioned() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}

// selectorFor maps the step/product addressing of a request onto a component
// selector.
func selectorFor(step string, product int) opt.Selector {
	if step == "" {
		return opt.ProductAt{Index: product}
	}
	return opt.StepNamed{Step: step, ProductIndex: product}
}

func objectiveTarget(o ObjectiveRequest) string {
	target := "product"
	if o.Step != "" {
		target = o.Step
	}
	item := o.Item
	if len(o.Path) > 0 {
		item = o.Path[0]
		for _, p := range o.Path[1:] {
			item += "." + p
		}
	}
	return fmt.Sprintf("%s[%s]", target, item)
}

func variableSpecFrom(v VariableRequest) (opt.VariableSpec, error) {
	gen, err := generatorFrom(v)
	if err != nil {
		return opt.VariableSpec{}, err
	}
	track, err := trackFrom(v.Track)
	if err != nil {
		return opt.VariableSpec{}, err
	}
	return opt.VariableSpec{
		Generator:  gen,
		Selector:   selectorFor(v.Step, v.Product),
		Item:       v.Item,
		Collection: v.Collection,
		Track:      track,
	}, nil
}

func generatorFrom(v VariableRequest) (opt.Generator, error) {
	ranged := v.Min != "" || v.Max != ""
	sources := 0
	for _, used := range []bool{ranged, len(v.Choices) > 0, v.Binary} {
		if used {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("exactly one of min/max, choices and binary is required")
	}
	switch {
	case v.Binary:
		return opt.NewBinary(), nil
	case len(v.Choices) > 0:
		choices := make([]any, len(v.Choices))
		for i, c := range v.Choices {
			choices[i] = parseValue(c)
		}
		return opt.NewChoice(choices...)
	default:
		if v.Min == "" || v.Max == "" {
			return nil, errors.New("a range needs both min and max")
		}
		r, err := opt.NewRange(parseValue(v.Min), parseValue(v.Max))
		if err != nil {
			return nil, err
		}
		if v.Continuous {
			r.Continuous()
		}
		return r, nil
	}
}

func trackFrom(name string) (opt.Tracking, error) {
	switch name {
	case "":
		return opt.TrackNone, nil
	case "numeric":
		return opt.TrackNumerical, nil
	case "discrete":
		return opt.TrackDiscrete, nil
	default:
		return opt.TrackNone, fmt.Errorf("unsupported tracking mode: %s", name)
	}
}

func objectiveSpecFrom(o ObjectiveRequest) (opt.ObjectiveSpec, error) {
	spec := opt.ObjectiveSpec{
		Selector:   selectorFor(o.Step, o.Product),
		Item:       o.Item,
		Path:       o.Path,
		Collection: o.Collection,
		Weight:     o.Weight,
	}
	switch o.Direction {
	case "minimise":
		spec.Minimise = true
	case "maximise":
		spec.Maximise = true
	default:
		return opt.ObjectiveSpec{}, fmt.Errorf("objective direction must be minimise or maximise, got %q", o.Direction)
	}
	if spec.Weight == 0 {
		spec.Weight = 1
	}
	return spec, nil
}

func distributionFrom(d DistributionRequest) (sensitivity.Distribution, error) {
	switch d.Kind {
	case "uniform":
		min, max, err := parseBounds(d.Min, d.Max)
		if err != nil {
			return nil, err
		}
		return sensitivity.NewUniform(min, max)
	case "triangular":
		min, max, err := parseBounds(d.Min, d.Max)
		if err != nil {
			return nil, err
		}
		return sensitivity.NewTriangular(min, max)
	case "gaussian":
		mean, err := units.Parse(d.Mean)
		if err != nil {
			return nil, fmt.Errorf("gaussian mean: %w", err)
		}
		std, err := units.Parse(d.Std)
		if err != nil {
			return nil, fmt.Errorf("gaussian std: %w", err)
		}
		return sensitivity.NewGaussian(mean, std)
	default:
		return nil, fmt.Errorf("unsupported distribution: %s", d.Kind)
	}
}

func parseBounds(minText, maxText string) (min, max units.Quantity, err error) {
	if min, err = units.Parse(minText); err != nil {
		return units.Quantity{}, units.Quantity{}, fmt.Errorf("lower bound: %w", err)
	}
	if max, err = units.Parse(maxText); err != nil {
		return units.Quantity{}, units.Quantity{}, fmt.Errorf("upper bound: %w", err)
	}
	return min, max, nil
}

// parseValue reads a request value as a plain number, a quantity or a bare
// string, in that order. The item's spec validates the result on assignment,
// so a mistyped value fails loudly at setup.
func parseValue(text string) any {
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	if q, err := units.Parse(text); err == nil {
		return q
	}
	if b, err := strconv.ParseBool(text); err == nil {
		return b
	}
	return text
}
