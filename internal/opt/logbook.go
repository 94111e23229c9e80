package opt

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"biopharma/internal/units"
)

// FitnessStats summarises one objective across a population. Std is the
// sample standard deviation, NaN for a single individual.
type FitnessStats struct {
	Min  float64
	Max  float64
	Mean float64
	Std  float64
}

// QuantityStats summarises a tracked numerical variable, in the unit of the
// first observed value.
type QuantityStats struct {
	Min  units.Quantity
	Max  units.Quantity
	Mean units.Quantity
	Std  units.Quantity
}

// Record is the logbook entry for one generation.
type Record struct {
	Generation int
	// Fitness holds per-objective statistics in objective order.
	Fitness []FitnessStats
	// Numeric holds statistics per numerically tracked variable name.
	Numeric map[string]QuantityStats
	// Counts holds value counts per discretely tracked variable name.
	Counts map[string]map[string]int
}

// Logbook accumulates per-generation statistics over a run.
type Logbook struct {
	records []Record
}

// Add appends a generation record.
func (l *Logbook) Add(r Record) {
	l.records = append(l.records, r)
}

// Records returns all recorded generations in order.
func (l *Logbook) Records() []Record { return l.records }

// Last returns the most recent record.
func (l *Logbook) Last() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

func fitnessStats(pop []*Individual, objectives int) []FitnessStats {
	stats := make([]FitnessStats, objectives)
	if len(pop) == 0 {
		return stats
	}
	buf := make([]float64, 0, len(pop))
	for i := range stats {
		buf = buf[:0]
		for _, ind := range pop {
			buf = append(buf, ind.Fitness.Values()[i])
		}
		stats[i] = FitnessStats{
			Min:  floats.Min(buf),
			Max:  floats.Max(buf),
			Mean: stat.Mean(buf, nil),
			Std:  stat.StdDev(buf, nil),
		}
	}
	return stats
}

// numericStats converts all values to the first value's unit and summarises
// them. It reports false when a value is not numeric or not convertible.
func numericStats(values []any) (QuantityStats, bool) {
	if len(values) == 0 {
		return QuantityStats{}, false
	}
	first, ok := asQuantity(values[0])
	if !ok {
		return QuantityStats{}, false
	}
	unit := first.Unit()
	mags := make([]float64, 0, len(values))
	for _, value := range values {
		q, ok := asQuantity(value)
		if !ok {
			return QuantityStats{}, false
		}
		conv, err := q.To(unit)
		if err != nil {
			return QuantityStats{}, false
		}
		mags = append(mags, conv.Mag())
	}
	return QuantityStats{
		Min:  units.New(floats.Min(mags), unit),
		Max:  units.New(floats.Max(mags), unit),
		Mean: units.New(stat.Mean(mags, nil), unit),
		Std:  units.New(stat.StdDev(mags, nil), unit),
	}, true
}

func discreteCounts(values []any) map[string]int {
	counts := make(map[string]int, len(values))
	for _, value := range values {
		counts[formatValue(value)]++
	}
	return counts
}

// asQuantity views numbers as dimensionless quantities so tracked plain
// floats and unit-carrying values share one statistics path.
func asQuantity(value any) (units.Quantity, bool) {
	if q, ok := value.(units.Quantity); ok {
		return q, true
	}
	if f, ok := toFloat(value); ok {
		return units.New(f, units.Dimensionless), true
	}
	return units.Quantity{}, false
}
