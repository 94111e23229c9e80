package opt

import (
	"fmt"
	"math"
	"sort"
)

// NSGA2 is the multi-objective survivor selection: non-dominated sorting with
// crowding-distance truncation of the last front.
type NSGA2 struct{}

func (NSGA2) Name() string {
	return "nsga2"
}

func (NSGA2) Select(pop []*Individual, k int) ([]*Individual, error) {
	if k < 0 {
		return nil, fmt.Errorf("invalid selection count %d", k)
	}
	chosen := make([]*Individual, 0, k)
	for _, front := range sortNondominated(pop, k) {
		if len(chosen)+len(front) <= k {
			chosen = append(chosen, front...)
			continue
		}
		dist := crowdingDistances(front)
		order := make([]int, len(front))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dist[order[a]] > dist[order[b]]
		})
		for _, i := range order[:k-len(chosen)] {
			chosen = append(chosen, front[i])
		}
		break
	}
	return chosen, nil
}

// NSGA2Tournament picks parents by running dominance-and-crowding selection
// over Size aspirants drawn with replacement.
type NSGA2Tournament struct {
	Size int
}

func (NSGA2Tournament) Name() string {
	return "nsga2_tournament"
}

func (t NSGA2Tournament) Select(src *Source, pop []*Individual, k int) ([]*Individual, error) {
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
	aspirants := make([]*Individual, size)
	for i := 0; i < k; i++ {
		for j := range aspirants {
			aspirants[j] = pop[src.IntN(len(pop))]
		}
		winners, err := NSGA2{}.Select(aspirants, 1)
		if err != nil {
			return nil, err
		}
		chosen = append(chosen, winners[0])
	}
	return chosen, nil
}

// sortNondominated splits the population into Pareto fronts, best first,
// stopping once at least k individuals are sorted. Dominance compares
// weighted fitness values.
func sortNondominated(pop []*Individual, k int) [][]*Individual {
	if k > len(pop) {
		k = len(pop)
	}
	if k == 0 {
		return nil
	}
	n := len(pop)
	dominated := make([][]int, n)
	domCount := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case pop[i].Fitness.Dominates(pop[j].Fitness):
				dominated[i] = append(dominated[i], j)
				domCount[j]++
			case pop[j].Fitness.Dominates(pop[i].Fitness):
				dominated[j] = append(dominated[j], i)
				domCount[i]++
			}
		}
	}
	var current []int
	for i := 0; i < n; i++ {
		if domCount[i] == 0 {
			current = append(current, i)
		}
	}
	var fronts [][]*Individual
	sorted := 0
	for len(current) > 0 && sorted < k {
		front := make([]*Individual, 0, len(current))
		for _, i := range current {
			front = append(front, pop[i])
		}
		fronts = append(fronts, front)
		sorted += len(front)
		var next []int
		for _, i := range current {
			for _, j := range dominated[i] {
				domCount[j]--
				if domCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		current = next
	}
	return fronts
}

// crowdingDistances measures how isolated each front member is in objective
// space. Boundary individuals get +Inf so truncation keeps the extremes.
// Distances use raw objective values, normalised per objective.
func crowdingDistances(front []*Individual) []float64 {
	n := len(front)
	dist := make([]float64, n)
	if n == 0 {
		return dist
	}
	nobj := len(front[0].Fitness.Values())
	order := make([]int, n)
	for obj := 0; obj < nobj; obj++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return front[order[a]].Fitness.Values()[obj] < front[order[b]].Fitness.Values()[obj]
		})
		dist[order[0]] = math.Inf(1)
		dist[order[n-1]] = math.Inf(1)
		lo := front[order[0]].Fitness.Values()[obj]
		hi := front[order[n-1]].Fitness.Values()[obj]
		if hi == lo {
			continue
		}
		norm := float64(nobj) * (hi - lo)
		for i := 1; i < n-1; i++ {
			prev := front[order[i-1]].Fitness.Values()[obj]
			next := front[order[i+1]].Fitness.Values()[obj]
			// An infinite neighbour makes the gap Inf or NaN; count the
			// individual as isolated so truncation stays deterministic.
			if math.IsInf(prev, 0) || math.IsInf(next, 0) {
				dist[order[i]] = math.Inf(1)
				continue
			}
			dist[order[i]] += (next - prev) / norm
		}
	}
	return dist
}
