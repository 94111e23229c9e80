// Package sensitivity implements Monte-Carlo sensitivity analysis over the
// process model. An Analyser redraws uncertain component items from
// distributions for every trial, runs the model and accumulates streaming
// statistics of tracked outputs.
package sensitivity

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"biopharma/internal/opt"
	"biopharma/internal/units"
)

// Distribution draws random quantities for an uncertain model item. Draws
// consume randomness from the run's source, so an analysis replays exactly
// from a recorded seed.
type Distribution interface {
	Draw(src *opt.Source) units.Quantity
	String() string
}

// stream adapts the run's source to the interface gonum's distributions
// sample from. Reseeding goes through opt.Seed, never through here.
type stream struct{ src *opt.Source }

func (s stream) Uint64() uint64 { return s.src.Uint64() }
func (s stream) Seed(uint64)    {}

var _ rand.Source = stream{}

// Uniform draws uniformly over an interval of quantities.
type Uniform struct {
	min, max units.Quantity
}

// NewUniform creates a uniform distribution over [min, max). The bounds must
// be dimensionally compatible; max is converted to min's unit.
func NewUniform(min, max units.Quantity) (*Uniform, error) {
	conv, err := max.To(min.Unit())
	if err != nil {
		return nil, fmt.Errorf("uniform bounds: %w", err)
	}
	if min.Mag() >= conv.Mag() {
		return nil, fmt.Errorf("uniform bounds [%s, %s] leave no interval", min, max)
	}
	return &Uniform{min: min, max: conv}, nil
}

func (u *Uniform) Draw(src *opt.Source) units.Quantity {
	dist := distuv.Uniform{Min: u.min.Mag(), Max: u.max.Mag(), Src: stream{src}}
	return units.New(dist.Rand(), u.min.Unit())
}

func (u *Uniform) String() string {
	return fmt.Sprintf("uniform[%s, %s]", u.min, u.max)
}

// Gaussian draws normally distributed quantities.
type Gaussian struct {
	mean, std units.Quantity
}

// NewGaussian creates a normal distribution with the given mean and standard
// deviation. The deviation must be positive and dimensionally compatible with
// the mean.
func NewGaussian(mean, std units.Quantity) (*Gaussian, error) {
	conv, err := std.To(mean.Unit())
	if err != nil {
		return nil, fmt.Errorf("gaussian deviation: %w", err)
	}
	if conv.Mag() <= 0 {
		return nil, fmt.Errorf("gaussian deviation %s must be positive", std)
	}
	return &Gaussian{mean: mean, std: conv}, nil
}

func (g *Gaussian) Draw(src *opt.Source) units.Quantity {
	dist := distuv.Normal{Mu: g.mean.Mag(), Sigma: g.std.Mag(), Src: stream{src}}
	return units.New(dist.Rand(), g.mean.Unit())
}

func (g *Gaussian) String() string {
	return fmt.Sprintf("gaussian[mean %s, std %s]", g.mean, g.std)
}

// Triangular draws from a symmetric triangular distribution over an interval,
// with the mode at the midpoint.
type Triangular struct {
	min, max units.Quantity
}

// NewTriangular creates a symmetric triangular distribution over [min, max].
// The bounds must be dimensionally compatible; max is converted to min's unit.
func NewTriangular(min, max units.Quantity) (*Triangular, error) {
	conv, err := max.To(min.Unit())
	if err != nil {
		return nil, fmt.Errorf("triangular bounds: %w", err)
	}
	if min.Mag() >= conv.Mag() {
		return nil, fmt.Errorf("triangular bounds [%s, %s] leave no interval", min, max)
	}
	return &Triangular{min: min, max: conv}, nil
}

func (t *Triangular) Draw(src *opt.Source) units.Quantity {
	mode := (t.min.Mag() + t.max.Mag()) / 2
	dist := distuv.NewTriangle(t.min.Mag(), t.max.Mag(), mode, stream{src})
	return units.New(dist.Rand(), t.min.Unit())
}

func (t *Triangular) String() string {
	return fmt.Sprintf("triangular[%s, %s]", t.min, t.max)
}
