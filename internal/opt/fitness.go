package opt

import "fmt"

// Fitness holds the objective values of an individual together with the
// weights the optimiser applies when comparing them. Weights are positive
// for maximised objectives and negative for minimised ones, so comparisons
// always maximise the weighted values.
type Fitness struct {
	weights []float64
	values  []float64
	valid   bool
}

// NewFitness creates an invalid fitness for the given objective weights.
// The weights slice is shared, not copied.
func NewFitness(weights []float64) *Fitness {
	return &Fitness{weights: weights}
}

// SetValues records objective values and marks the fitness valid.
func (f *Fitness) SetValues(values []float64) error {
	if len(values) != len(f.weights) {
		return fmt.Errorf("fitness expects %d objective values, got %d", len(f.weights), len(values))
	}
	f.values = append(f.values[:0], values...)
	f.valid = true
	return nil
}

// Values returns the recorded objective values.
func (f *Fitness) Values() []float64 { return f.values }

// Weights returns the objective weights.
func (f *Fitness) Weights() []float64 { return f.weights }

// Weighted returns the objective values multiplied by their weights.
func (f *Fitness) Weighted() []float64 {
	weighted := make([]float64, len(f.values))
	for i, v := range f.values {
		weighted[i] = v * f.weights[i]
	}
	return weighted
}

// Valid reports whether objective values have been recorded since the last
// invalidation.
func (f *Fitness) Valid() bool { return f.valid }

// Invalidate discards the recorded values. The optimiser invalidates the
// fitness of every individual touched by crossover or mutation so it gets
// re-evaluated.
func (f *Fitness) Invalidate() {
	f.values = f.values[:0]
	f.valid = false
}

// Less compares weighted values lexicographically. A fitness that is Less
// than another is strictly worse on the first objective where they differ.
func (f *Fitness) Less(other *Fitness) bool {
	fw, ow := f.Weighted(), other.Weighted()
	n := len(fw)
	if len(ow) < n {
		n = len(ow)
	}
	for i := 0; i < n; i++ {
		if fw[i] != ow[i] {
			return fw[i] < ow[i]
		}
	}
	return len(fw) < len(ow)
}

// Dominates reports Pareto dominance on the weighted values: no objective
// worse, at least one strictly better.
func (f *Fitness) Dominates(other *Fitness) bool {
	fw, ow := f.Weighted(), other.Weighted()
	better := false
	for i := range fw {
		if fw[i] > ow[i] {
			better = true
		} else if fw[i] < ow[i] {
			return false
		}
	}
	return better
}

// Clone returns an independent copy sharing only the weights.
func (f *Fitness) Clone() *Fitness {
	cp := &Fitness{weights: f.weights, valid: f.valid}
	cp.values = append(cp.values, f.values...)
	return cp
}
