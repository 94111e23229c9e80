package opt

import (
	"fmt"
	"sort"
)

// ParentSelector picks k breeding candidates from the evaluated population.
// Selection is with replacement; the optimiser clones the result before
// touching it.
type ParentSelector interface {
	Name() string
	Select(src *Source, pop []*Individual, k int) ([]*Individual, error)
}

// SurvivorSelector reduces parents plus offspring to the next population.
type SurvivorSelector interface {
	Name() string
	Select(pop []*Individual, k int) ([]*Individual, error)
}

// Tournament draws Size aspirants with replacement per pick and keeps the one
// with the best fitness. Ties keep the earlier aspirant.
type Tournament struct {
	Size int
}

func (Tournament) Name() string {
	return "tournament"
}

func (t Tournament) Select(src *Source, pop []*Individual, k int) ([]*Individual, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(pop) == 0 {
		return nil, fmt.Errorf("cannot select from an empty population")
	}
	size := t.Size
	if size <= 0 {
		size = 2
	}
	chosen := make([]*Individual, 0, k)
	for i := 0; i < k; i++ {
		best := pop[src.IntN(len(pop))]
		for j := 1; j < size; j++ {
			aspirant := pop[src.IntN(len(pop))]
			if best.Fitness.Less(aspirant.Fitness) {
				best = aspirant
			}
		}
		chosen = append(chosen, best)
	}
	return chosen, nil
}

// Best keeps the k fittest individuals. The sort is stable, so equally fit
// individuals survive in population order.
type Best struct{}

func (Best) Name() string {
	return "best"
}

func (Best) Select(pop []*Individual, k int) ([]*Individual, error) {
	if k < 0 || k > len(pop) {
		return nil, fmt.Errorf("invalid selection count %d for population of %d", k, len(pop))
	}
	ranked := make([]*Individual, len(pop))
	copy(ranked, pop)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[j].Fitness.Less(ranked[i].Fitness)
	})
	return ranked[:k], nil
}
