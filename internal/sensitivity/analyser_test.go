package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"biopharma/internal/component"
	"biopharma/internal/opt"
	"biopharma/internal/spec"
	"biopharma/internal/units"
)

// amplifier scales its uncertain input by a gain parameter and pretends to be
// its own facility, which is all the analyser requires of a model.
type amplifier struct {
	*component.Base
	failEvery int
	runs      int
}

func newAmplifier(t *testing.T, gain float64) *amplifier {
	t.Helper()
	a := &amplifier{}
	a.Base = component.NewBase(a, component.Config{
		Name: "Amplifier",
		Inputs: map[string]spec.Spec{
			"u": spec.Q("g", "the uncertain input"),
		},
		Outputs: map[string]spec.Spec{
			"y": spec.Q("g", "the amplified output"),
		},
		Parameters: map[string]spec.Spec{
			"gain": spec.Value(spec.Float, "the amplification factor"),
		},
		Defaults: map[string]any{"gain": gain},
	})
	a.SetFacility(a)
	if err := a.LoadParameters(); err != nil {
		t.Fatalf("load parameters: %v", err)
	}
	return a
}

func (a *amplifier) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.runs++
	if a.failEvery > 0 && a.runs%a.failEvery == 0 {
		return fmt.Errorf("amplifier broke on run %d", a.runs)
	}
	gain, err := a.Parameters().Float("gain")
	if err != nil {
		return err
	}
	u, err := a.Inputs().Quantity("u")
	if err != nil {
		return err
	}
	return a.Outputs().Set("y", u.MulScalar(gain))
}

func newTestAnalyser(t *testing.T, model *amplifier, samples int, seed opt.Seed) *Analyser {
	t.Helper()
	analyser, err := New(model, Config{Samples: samples, Seed: seed})
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	g := units.MustParseUnit("g")
	dist, err := NewUniform(units.New(2, g), units.New(6, g))
	if err != nil {
		t.Fatalf("new uniform: %v", err)
	}
	err = analyser.AddVariable(VariableSpec{
		Distribution: dist,
		Selector:     opt.FacilityOf{},
		Item:         "u",
		Collection:   component.Inputs,
	})
	if err != nil {
		t.Fatalf("add variable: %v", err)
	}
	err = analyser.AddOutput(OutputSpec{
		Name:     "y",
		Selector: opt.FacilityOf{},
		Item:     "y",
	})
	if err != nil {
		t.Fatalf("add output: %v", err)
	}
	return analyser
}

func TestAnalyserStreamingStatsMatchDirectStats(t *testing.T) {
	model := newAmplifier(t, 2)
	analyser := newTestAnalyser(t, model, 500, opt.Seed{Hi: 3, Lo: 5})
	if err := analyser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	stats, err := analyser.Stats("y")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats.Samples) != 500 {
		t.Fatalf("recorded %d samples, want 500", len(stats.Samples))
	}
	mags := make([]float64, len(stats.Samples))
	for i, q := range stats.Samples {
		mags[i] = q.Mag()
		// u in [2 g, 6 g] and gain 2, so y in [4 g, 12 g].
		if mags[i] < 4 || mags[i] > 12 {
			t.Fatalf("sample %d is %s, outside [4 g, 12 g]", i, q)
		}
	}
	mean := stat.Mean(mags, nil)
	variance := stat.Variance(mags, nil) * float64(len(mags)-1) / float64(len(mags))
	if math.Abs(stats.Avg.Mag()-mean) > 1e-9 {
		t.Errorf("streaming mean %g, direct mean %g", stats.Avg.Mag(), mean)
	}
	if math.Abs(stats.Var.Mag()-variance) > 1e-9*variance {
		t.Errorf("streaming variance %g, direct variance %g", stats.Var.Mag(), variance)
	}
	min, max := mags[0], mags[0]
	for _, mag := range mags[1:] {
		min = math.Min(min, mag)
		max = math.Max(max, mag)
	}
	if stats.Min.Mag() != min || stats.Max.Mag() != max {
		t.Errorf("streaming min/max %g/%g, direct %g/%g", stats.Min.Mag(), stats.Max.Mag(), min, max)
	}
	if stats.Var.Unit().Name() != "g^2" {
		t.Errorf("variance carries unit %q, want %q", stats.Var.Unit().Name(), "g^2")
	}

	failed, err := analyser.FailedRuns()
	if err != nil {
		t.Fatalf("failed runs: %v", err)
	}
	if failed != 0 {
		t.Errorf("recorded %d failed runs, want 0", failed)
	}
}

func TestAnalyserReplaysFromRecordedSeed(t *testing.T) {
	model := newAmplifier(t, 2)
	analyser := newTestAnalyser(t, model, 100, opt.Seed{Hi: 21, Lo: 42})
	if err := analyser.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := analyser.Stats("y")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	seed, err := analyser.StartSeed()
	if err != nil {
		t.Fatalf("start seed: %v", err)
	}

	analyser.SetSeed(seed)
	if err := analyser.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := analyser.Stats("y")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if first.Avg.Mag() != second.Avg.Mag() || first.Var.Mag() != second.Var.Mag() {
		t.Errorf("replay differs: avg %g vs %g, var %g vs %g",
			first.Avg.Mag(), second.Avg.Mag(), first.Var.Mag(), second.Var.Mag())
	}
}

func TestAnalyserSkipsFailedTrials(t *testing.T) {
	model := newAmplifier(t, 2)
	model.failEvery = 5
	analyser := newTestAnalyser(t, model, 100, opt.Seed{Hi: 1, Lo: 1})
	if err := analyser.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	failed, err := analyser.FailedRuns()
	if err != nil {
		t.Fatalf("failed runs: %v", err)
	}
	if failed != 20 {
		t.Errorf("recorded %d failed runs, want 20", failed)
	}
	stats, err := analyser.Stats("y")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats.Samples) != 80 {
		t.Errorf("recorded %d samples, want 80", len(stats.Samples))
	}
}

func TestAnalyserAllTrialsFailingIsAnError(t *testing.T) {
	model := newAmplifier(t, 2)
	model.failEvery = 1
	analyser := newTestAnalyser(t, model, 20, opt.Seed{Hi: 1, Lo: 2})
	err := analyser.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error when every trial fails")
	}
	failed, ferr := analyser.FailedRuns()
	if ferr != nil {
		t.Fatalf("failed runs: %v", ferr)
	}
	if failed != 20 {
		t.Errorf("recorded %d failed runs, want 20", failed)
	}
}

func TestAnalyserPropagatesCancellation(t *testing.T) {
	model := newAmplifier(t, 2)
	analyser := newTestAnalyser(t, model, 100, opt.Seed{Hi: 4, Lo: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := analyser.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}

func TestAnalyserRequiresAnOutput(t *testing.T) {
	model := newAmplifier(t, 2)
	analyser, err := New(model, Config{Samples: 10})
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	if err := analyser.Run(context.Background()); err == nil {
		t.Fatal("expected an error without registered outputs")
	}
}

func TestAnalyserRejectsNonQuantityOutputs(t *testing.T) {
	model := newAmplifier(t, 2)
	analyser, err := New(model, Config{Samples: 10})
	if err != nil {
		t.Fatalf("new analyser: %v", err)
	}
	err = analyser.AddOutput(OutputSpec{
		Name:       "gain",
		Selector:   opt.FacilityOf{},
		Item:       "gain",
		Collection: component.Parameters,
	})
	if err == nil {
		t.Fatal("expected an error for a plain-number item")
	}
}

// TestOptimiserOverAnalyser nests the two engines: the GA varies the gain
// while each fitness evaluation runs a full Monte-Carlo sweep, minimising the
// variance of the output. Var(y) grows with the square of the gain, so the
// best gain should settle near the bottom of its range.
func TestOptimiserOverAnalyser(t *testing.T) {
	model := newAmplifier(t, 1)
	analyser := newTestAnalyser(t, model, 50, opt.Seed{Hi: 9, Lo: 27})

	optimiser, err := opt.New(analyser, opt.Config{
		PopulationSize:           12,
		MaxGenerations:           8,
		CrossoverProbability:     0.7,
		GeneCrossoverProbability: 0.5,
		MutationRate:             1,
		Source:                   analyser.Source(),
	})
	if err != nil {
		t.Fatalf("new optimiser: %v", err)
	}
	gainRange, err := opt.NewRange(0.5, 2.0)
	if err != nil {
		t.Fatalf("new range: %v", err)
	}
	err = optimiser.AddVariable(opt.VariableSpec{
		Generator: gainRange.Continuous(),
		Selector:  opt.FacilityOf{},
		Item:      "gain",
	})
	if err != nil {
		t.Fatalf("add variable: %v", err)
	}
	err = optimiser.AddObjective(opt.ObjectiveSpec{
		Selector: opt.SelfOf{},
		Path:     []string{"y", "var"},
		Minimise: true,
	})
	if err != nil {
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
		t.Fatalf("got %d best individuals, want 1", len(best))
	}
	gene, err := best[0].GetVariable("Amplifier", "gain", component.Parameters)
	if err != nil {
		t.Fatalf("get variable: %v", err)
	}
	gain, ok := gene.Value().(float64)
	if !ok {
		t.Fatalf("gain holds %T, want float64", gene.Value())
	}
	if gain > 1.0 {
		t.Errorf("best gain %g did not move towards the low-variance end", gain)
	}
}
