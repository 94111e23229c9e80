package opt

import (
	"context"
	"fmt"
	"math"
	"testing"

	"biopharma/internal/component"
	"biopharma/internal/spec"
)

// quadratic computes a second-degree polynomial of its input and pretends to
// be its own facility, which is all the optimiser requires of a model.
type quadratic struct {
	*component.Base
}

func newQuadratic(t *testing.T, a, b, c float64) *quadratic {
	t.Helper()
	q := &quadratic{}
	q.Base = component.NewBase(q, component.Config{
		Name: "QuadraticComponent",
		Inputs: map[string]spec.Spec{
			"x": spec.Value(spec.Float, "the input variable"),
		},
		Outputs: map[string]spec.Spec{
			"y": spec.Value(spec.Float, "the function output"),
		},
		Parameters: map[string]spec.Spec{
			"a": spec.Value(spec.Float, "the second-degree coefficient"),
			"b": spec.Value(spec.Float, "the first-degree coefficient"),
			"c": spec.Value(spec.Float, "the constant term"),
		},
		Defaults: map[string]any{"a": a, "b": b, "c": c},
	})
	q.SetFacility(q)
	if err := q.LoadParameters(); err != nil {
		t.Fatalf("load parameters: %v", err)
	}
	return q
}

func (q *quadratic) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := q.Parameters()
	a, err := params.Float("a")
	if err != nil {
		return err
	}
	b, err := params.Float("b")
	if err != nil {
		return err
	}
	c, err := params.Float("c")
	if err != nil {
		return err
	}
	x, err := q.Inputs().Float("x")
	if err != nil {
		return err
	}
	return q.Outputs().Set("y", a*x*x+b*x+c)
}

func (q *quadratic) trueOptimum(t *testing.T) float64 {
	t.Helper()
	a, err := q.Parameters().Float("a")
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	b, err := q.Parameters().Float("b")
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if a == 0 {
		t.Fatal("degenerate quadratic")
	}
	return -b / (2 * a)
}

// optimumRange brackets the true optimum so every run can reach it.
func optimumRange(t *testing.T, q *quadratic, width float64) *Range {
	t.Helper()
	optimum := q.trueOptimum(t)
	r, err := NewRange(optimum-width, optimum+width)
	if err != nil {
		t.Fatalf("build range: %v", err)
	}
	return r
}

// multiQuadratic combines independent quadratics behind inputs x1, x2, ...
// and outputs y1, y2, ...
type multiQuadratic struct {
	*component.Base
	parts []*quadratic
}

func newMultiQuadratic(parts ...*quadratic) *multiQuadratic {
	m := &multiQuadratic{parts: parts}
	inputs := make(map[string]spec.Spec, len(parts))
	outputs := make(map[string]spec.Spec, len(parts))
	for i := range parts {
		inputs[fmt.Sprintf("x%d", i+1)] = spec.Value(spec.Float, "an input variable")
		outputs[fmt.Sprintf("y%d", i+1)] = spec.Value(spec.Float, "an output variable")
	}
	m.Base = component.NewBase(m, component.Config{
		Name:    "MultiComponent",
		Inputs:  inputs,
		Outputs: outputs,
	})
	m.SetFacility(m)
	return m
}

func (m *multiQuadratic) Run(ctx context.Context) error {
	for i, part := range m.parts {
		x, err := m.Inputs().Float(fmt.Sprintf("x%d", i+1))
		if err != nil {
			return err
		}
		if err := part.Inputs().Set("x", x); err != nil {
			return err
		}
		if err := part.Run(ctx); err != nil {
			return err
		}
		y, err := part.Outputs().Float("y")
		if err != nil {
			return err
		}
		if err := m.Outputs().Set(fmt.Sprintf("y%d", i+1), y); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiQuadratic) LoadParameters() error {
	if err := m.Base.LoadParameters(); err != nil {
		return err
	}
	for _, part := range m.parts {
		if err := part.LoadParameters(); err != nil {
			return err
		}
	}
	return nil
}

func testConfig(seed Seed) Config {
	return Config{
		PopulationSize:           20,
		MaxGenerations:           20,
		CrossoverProbability:     0.7,
		GeneCrossoverProbability: 0.5,
		MutationRate:             1.0,
		Seed:                     seed,
	}
}

func TestOptimisationFindsQuadraticMinimum(t *testing.T) {
	q := newQuadratic(t, 1, 0, 2)
	optimiser, err := New(q, testConfig(Seed{Hi: 42, Lo: 7}))
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{
		Selector: FacilityOf{},
		Item:     "y",
		Minimise: true,
	}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	best, err := optimiser.BestIndividuals()
	if err != nil {
		t.Fatalf("best individuals: %v", err)
	}
	if len(best) != 1 {
		t.Fatalf("expected one best individual, got %d", len(best))
	}
	v, err := best[0].GetVariable("QuadraticComponent", "x", component.Inputs)
	if err != nil {
		t.Fatalf("get variable: %v", err)
	}
	if got := v.Value().(float64); got != q.trueOptimum(t) {
		t.Fatalf("best x = %v, want %v", got, q.trueOptimum(t))
	}
	if got := best[0].Fitness.Values()[0]; got != 2 {
		t.Fatalf("best y = %v, want 2", got)
	}

	seed, err := optimiser.StartSeed()
	if err != nil {
		t.Fatalf("start seed: %v", err)
	}
	if seed != (Seed{Hi: 42, Lo: 7}) {
		t.Fatalf("start seed = %+v, want the configured seed", seed)
	}
	if records := optimiser.Logbook().Records(); len(records) != 21 {
		t.Fatalf("expected 21 logbook records, got %d", len(records))
	}
}

func TestMultiObjectiveOptimisation(t *testing.T) {
	q1 := newQuadratic(t, 1, 0, 0)
	q2 := newQuadratic(t, -1, 6, -9)
	m := newMultiQuadratic(q1, q2)

	cfg := testConfig(Seed{Hi: 3, Lo: 11})
	cfg.PopulationSize = 30
	cfg.MaxGenerations = 30
	optimiser, err := New(m, cfg)
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q1, 5),
		Selector:   FacilityOf{},
		Item:       "x1",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable x1: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q2, 5),
		Selector:   FacilityOf{},
		Item:       "x2",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable x2: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y1", Minimise: true}); err != nil {
		t.Fatalf("add objective y1: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y2", Maximise: true}); err != nil {
		t.Fatalf("add objective y2: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	best, err := optimiser.BestIndividuals()
	if err != nil {
		t.Fatalf("best individuals: %v", err)
	}
	if len(best) == 0 || len(best) > 2 {
		t.Fatalf("expected one or two best individuals, got %d", len(best))
	}
	x1, err := best[0].GetVariable("MultiComponent", "x1", component.Inputs)
	if err != nil {
		t.Fatalf("get x1: %v", err)
	}
	x2, err := best[0].GetVariable("MultiComponent", "x2", component.Inputs)
	if err != nil {
		t.Fatalf("get x2: %v", err)
	}
	if got := x1.Value().(float64); got != 0 {
		t.Fatalf("best x1 = %v, want 0", got)
	}
	if got := x2.Value().(float64); got != 3 {
		t.Fatalf("best x2 = %v, want 3", got)
	}
}

// failing always reports a model error, so every individual must end up with
// worst-case fitness and a recorded error.
type failing struct {
	*component.Base
}

func newFailing(t *testing.T) *failing {
	t.Helper()
	f := &failing{}
	f.Base = component.NewBase(f, component.Config{
		Name: "Failing",
		Inputs: map[string]spec.Spec{
			"x": spec.Value(spec.Float, "ignored"),
		},
		Outputs: map[string]spec.Spec{
			"y": spec.Value(spec.Float, "never produced"),
		},
	})
	f.SetFacility(f)
	return f
}

func (f *failing) Run(context.Context) error {
	return fmt.Errorf("deliberate model failure")
}

func TestModelFailureGetsWorstFitness(t *testing.T) {
	f := newFailing(t)
	cfg := testConfig(Seed{Hi: 1, Lo: 2})
	cfg.PopulationSize = 4
	cfg.MaxGenerations = 2
	optimiser, err := New(f, cfg)
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	r, err := NewRange(0, 5)
	if err != nil {
		t.Fatalf("build range: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  r,
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	pop, err := optimiser.FinalPopulation()
	if err != nil {
		t.Fatalf("final population: %v", err)
	}
	for i, ind := range pop {
		if ind.Err == nil {
			t.Fatalf("individual %d has no recorded error", i)
		}
		if got := ind.Fitness.Values()[0]; !math.IsInf(got, 1) {
			t.Fatalf("individual %d fitness = %v, want +Inf for a failed minimisation", i, got)
		}
	}
}

func TestCancelledContextAbortsRun(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	optimiser, err := New(q, testConfig(Seed{Hi: 9, Lo: 9}))
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := optimiser.Run(ctx); err != context.Canceled {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}
}

func TestRunReproducibleFromRecordedSeed(t *testing.T) {
	q := newQuadratic(t, 1, -4, 1)
	cfg := testConfig(Seed{Hi: 77, Lo: 13})
	cfg.MaxGenerations = 3
	optimiser, err := New(q, cfg)
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := optimiser.FinalPopulation()
	if err != nil {
		t.Fatalf("final population: %v", err)
	}
	firstValues, err := optimiser.BestObjectiveValues()
	if err != nil {
		t.Fatalf("best objective values: %v", err)
	}

	seed, err := optimiser.StartSeed()
	if err != nil {
		t.Fatalf("start seed: %v", err)
	}
	optimiser.SetSeed(seed)
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := optimiser.FinalPopulation()
	if err != nil {
		t.Fatalf("final population: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("population sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] == second[i] {
			t.Fatalf("individual %d was not rebuilt", i)
		}
		if !first[i].Equal(second[i]) {
			t.Fatalf("individual %d differs between runs: %v vs %v", i, first[i], second[i])
		}
	}
	secondValues, err := optimiser.BestObjectiveValues()
	if err != nil {
		t.Fatalf("best objective values: %v", err)
	}
	if len(firstValues) != len(secondValues) {
		t.Fatalf("best objective values differ in length")
	}
	for i := range firstValues {
		for j := range firstValues[i] {
			if firstValues[i][j] != secondValues[i][j] {
				t.Fatalf("best objective values differ: %v vs %v", firstValues, secondValues)
			}
		}
	}
}

func TestParameterStoreOverridesConfiguredGenerations(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	optimiser, err := New(q, testConfig(Seed{Hi: 5, Lo: 5}))
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.Parameters().Set("maxGenerations", 1); err != nil {
		t.Fatalf("set maxGenerations: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if records := optimiser.Logbook().Records(); len(records) != 2 {
		t.Fatalf("expected 2 logbook records for one generation, got %d", len(records))
	}
}

func TestDependentRangeHonouredAcrossGenerations(t *testing.T) {
	q1 := newQuadratic(t, 1, 0, 0)
	q2 := newQuadratic(t, 1, 0, 0)
	m := newMultiQuadratic(q1, q2)

	cfg := testConfig(Seed{Hi: 21, Lo: 34})
	cfg.MaxGenerations = 10
	optimiser, err := New(m, cfg)
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	base, err := NewRange(-5.0, 5.0)
	if err != nil {
		t.Fatalf("build range: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  base,
		Selector:   FacilityOf{},
		Item:       "x1",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable x1: %v", err)
	}
	// x2 must stay within [x1, x1+3] whatever crossover and mutation do.
	dependent := NewDependentRange(func(v *Variable, r *Range) error {
		other, err := v.Individual().GetVariable("MultiComponent", "x1", component.Inputs)
		if err != nil {
			return err
		}
		x1 := other.Value().(float64)
		return r.UpdateRange(x1, x1+3)
	})
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  dependent,
		Selector:   FacilityOf{},
		Item:       "x2",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable x2: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y1", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	pop, err := optimiser.FinalPopulation()
	if err != nil {
		t.Fatalf("final population: %v", err)
	}
	for i, ind := range pop {
		x1v, err := ind.GetVariable("MultiComponent", "x1", component.Inputs)
		if err != nil {
			t.Fatalf("get x1: %v", err)
		}
		x2v, err := ind.GetVariable("MultiComponent", "x2", component.Inputs)
		if err != nil {
			t.Fatalf("get x2: %v", err)
		}
		x1, x2 := x1v.Value().(float64), x2v.Value().(float64)
		if x2 < x1 || x2 > x1+3 {
			t.Fatalf("individual %d: x2=%v outside [%v, %v]", i, x2, x1, x1+3)
		}
	}
}

func TestTrackedVariableStatistics(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	cfg := testConfig(Seed{Hi: 19, Lo: 23})
	cfg.MaxGenerations = 2
	optimiser, err := New(q, cfg)
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
		Track:      TrackNumerical,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true}); err != nil {
		t.Fatalf("add objective: %v", err)
	}
	if err := optimiser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, rec := range optimiser.Logbook().Records() {
		stats, ok := rec.Numeric["QuadraticComponent[x]"]
		if !ok {
			t.Fatalf("record %d has no statistics for the tracked variable", i)
		}
		if stats.Min.Mag() < -5 || stats.Max.Mag() > 5 {
			t.Fatalf("record %d statistics outside the variable range: %+v", i, stats)
		}
		if len(rec.Fitness) != 1 {
			t.Fatalf("record %d: expected one objective summary, got %d", i, len(rec.Fitness))
		}
		if rec.Fitness[0].Min > rec.Fitness[0].Max {
			t.Fatalf("record %d: min exceeds max", i)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{"zero population", func(c *Config) { c.PopulationSize = 0 }},
		{"negative generations", func(c *Config) { c.MaxGenerations = -1 }},
		{"crossover above one", func(c *Config) { c.CrossoverProbability = 1.5 }},
		{"negative gene crossover", func(c *Config) { c.GeneCrossoverProbability = -0.1 }},
		{"negative mutation", func(c *Config) { c.MutationRate = -1 }},
	}
	for _, tc := range cases {
		cfg := testConfig(Seed{Hi: 1, Lo: 1})
		tc.mod(&cfg)
		if _, err := New(q, cfg); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
	if _, err := New(nil, testConfig(Seed{Hi: 1, Lo: 1})); err == nil {
		t.Fatal("nil model: expected an error")
	}
}

func TestAddObjectiveValidation(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	optimiser, err := New(q, testConfig(Seed{Hi: 1, Lo: 1}))
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y"}); err == nil {
		t.Fatal("expected an error when no direction is set")
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Item: "y", Minimise: true, Maximise: true}); err == nil {
		t.Fatal("expected an error when both directions are set")
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Item: "y", Minimise: true}); err == nil {
		t.Fatal("expected an error for a missing selector")
	}
	if err := optimiser.AddObjective(ObjectiveSpec{Selector: FacilityOf{}, Minimise: true}); err == nil {
		t.Fatal("expected an error for a missing item")
	}
	if err := optimiser.AddVariable(VariableSpec{Selector: FacilityOf{}, Item: "x"}); err == nil {
		t.Fatal("expected an error for a missing generator")
	}
}

func TestRunRequiresVariablesAndObjectives(t *testing.T) {
	q := newQuadratic(t, 1, 0, 0)
	optimiser, err := New(q, testConfig(Seed{Hi: 1, Lo: 1}))
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	if err := optimiser.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a run without variables")
	}
	if err := optimiser.AddVariable(VariableSpec{
		Generator:  optimumRange(t, q, 5),
		Selector:   FacilityOf{},
		Item:       "x",
		Collection: component.Inputs,
	}); err != nil {
		t.Fatalf("add variable: %v", err)
	}
	if err := optimiser.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a run without objectives")
	}
}
