package sensitivity

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"biopharma/internal/opt"
	"biopharma/internal/units"
)

const momentDraws = 10000

func drawMags(t *testing.T, dist Distribution, unit units.Unit) []float64 {
	t.Helper()
	src := opt.NewSource(opt.Seed{Hi: 11, Lo: 13})
	mags := make([]float64, momentDraws)
	for i := range mags {
		q := dist.Draw(src)
		conv, err := q.To(unit)
		if err != nil {
			t.Fatalf("draw %d has units %q, expected %q", i, q.Unit().Name(), unit.Name())
		}
		mags[i] = conv.Mag()
	}
	return mags
}

func checkMoments(t *testing.T, mags []float64, wantMean, wantVar float64) {
	t.Helper()
	mean := stat.Mean(mags, nil)
	variance := stat.Variance(mags, nil)
	scale := math.Sqrt(wantVar)
	if math.Abs(mean-wantMean) > 0.05*scale {
		t.Errorf("sample mean %g, want %g within %g", mean, wantMean, 0.05*scale)
	}
	if math.Abs(variance-wantVar) > 0.1*wantVar {
		t.Errorf("sample variance %g, want %g within 10%%", variance, wantVar)
	}
}

func TestUniformMoments(t *testing.T) {
	g := units.MustParseUnit("g")
	dist, err := NewUniform(units.New(2, g), units.New(8, g))
	if err != nil {
		t.Fatalf("new uniform: %v", err)
	}
	mags := drawMags(t, dist, g)
	for i, mag := range mags {
		if mag < 2 || mag > 8 {
			t.Fatalf("draw %d is %g, outside [2, 8]", i, mag)
		}
	}
	checkMoments(t, mags, 5, 36.0/12)
}

func TestUniformConvertsBounds(t *testing.T) {
	g := units.MustParseUnit("g")
	kg := units.MustParseUnit("kg")
	dist, err := NewUniform(units.New(500, g), units.New(1, kg))
	if err != nil {
		t.Fatalf("new uniform: %v", err)
	}
	src := opt.NewSource(opt.Seed{Hi: 1, Lo: 2})
	for i := 0; i < 100; i++ {
		q := dist.Draw(src)
		if q.Unit() != g {
			t.Fatalf("draw carries unit %q, want %q", q.Unit().Name(), "g")
		}
		if q.Mag() < 500 || q.Mag() > 1000 {
			t.Fatalf("draw %d is %s, outside [500 g, 1 kg]", i, q)
		}
	}
}

func TestUniformRejectsBadBounds(t *testing.T) {
	g := units.MustParseUnit("g")
	h := units.MustParseUnit("h")
	if _, err := NewUniform(units.New(5, g), units.New(5, g)); err == nil {
		t.Error("expected error for an empty interval")
	}
	if _, err := NewUniform(units.New(1, g), units.New(2, h)); err == nil {
		t.Error("expected error for mismatched dimensions")
	}
}

func TestGaussianMoments(t *testing.T) {
	h := units.MustParseUnit("h")
	dist, err := NewGaussian(units.New(40, h), units.New(3, h))
	if err != nil {
		t.Fatalf("new gaussian: %v", err)
	}
	checkMoments(t, drawMags(t, dist, h), 40, 9)
}

func TestGaussianRejectsNonPositiveDeviation(t *testing.T) {
	h := units.MustParseUnit("h")
	if _, err := NewGaussian(units.New(40, h), units.New(0, h)); err == nil {
		t.Error("expected error for zero deviation")
	}
}

func TestTriangularMoments(t *testing.T) {
	eur := units.MustParseUnit("EUR")
	dist, err := NewTriangular(units.New(10, eur), units.New(22, eur))
	if err != nil {
		t.Fatalf("new triangular: %v", err)
	}
	mags := drawMags(t, dist, eur)
	for i, mag := range mags {
		if mag < 10 || mag > 22 {
			t.Fatalf("draw %d is %g, outside [10, 22]", i, mag)
		}
	}
	// Symmetric triangular: mean at the midpoint, variance (max-min)^2/24.
	checkMoments(t, mags, 16, 144.0/24)
}

func TestDistributionsReplayFromSeed(t *testing.T) {
	g := units.MustParseUnit("g")
	dist, err := NewGaussian(units.New(100, g), units.New(10, g))
	if err != nil {
		t.Fatalf("new gaussian: %v", err)
	}
	seed := opt.Seed{Hi: 7, Lo: 9}
	first := drawSequence(dist, seed, 50)
	second := drawSequence(dist, seed, 50)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draw %d differs between replays: %g vs %g", i, first[i], second[i])
		}
	}
}

func drawSequence(dist Distribution, seed opt.Seed, n int) []float64 {
	src := opt.NewSource(seed)
	mags := make([]float64, n)
	for i := range mags {
		mags[i] = dist.Draw(src).Mag()
	}
	return mags
}
