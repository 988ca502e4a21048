package alloc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/pierreba/era/core/model"
)

// The multi-objective search optimizes five objectives at once. Internally
// every objective is minimized; maximized quantities are negated.
//
// Objectives: response time (min), capability coverage (max), total rescue
// capacity (max), cost (min), risk (min). Team count is deliberately not an
// objective: minimizing it fights capacity sufficiency.
const numObjectives = 5

type individual struct {
	genes    []bool
	objs     [numObjectives]float64
	feasible bool
	rank     int
	crowding float64
}

func (ind *individual) selectedCount() int {
	n := 0
	for _, g := range ind.genes {
		if g {
			n++
		}
	}
	return n
}

// optimizeNSGA runs an NSGA-II search over candidate-subset encodings and
// returns the feasible non-dominated front as allocation solutions.
func (o *Optimizer) optimizeNSGA(ctx context.Context, reqs []model.Requirement, candidates []model.ResourceCandidate, affected int) ([]model.AllocationSolution, error) {
	required := model.UnionCapabilities(reqs)
	seed := o.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	deadline := time.Now().Add(o.cfg.Timeout(len(candidates)))

	pop := o.initialPopulation(rng, len(candidates))
	for i := range pop {
		o.evaluate(&pop[i], candidates, required, affected)
	}
	assignRanks(pop)

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			if anyFeasible(pop) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrOptimizerTimeout, err)
		}
		if time.Now().After(deadline) {
			if anyFeasible(pop) {
				break
			}
			return nil, ErrOptimizerTimeout
		}

		offspring := o.makeOffspring(rng, pop)
		for i := range offspring {
			o.evaluate(&offspring[i], candidates, required, affected)
		}
		pop = o.environmentalSelection(append(pop, offspring...))
	}

	front := feasibleFront(pop)
	if len(front) == 0 {
		return nil, ErrNonConvergence
	}
	return o.frontSolutions(front, candidates, required, affected), nil
}

// initialPopulation seeds random subset genomes with varying selection bias
// so both small and large subsets are represented from the start.
func (o *Optimizer) initialPopulation(rng *rand.Rand, genomeLen int) []individual {
	pop := make([]individual, o.cfg.Population)
	for i := range pop {
		bias := 0.2 + 0.6*float64(i)/float64(len(pop))
		genes := make([]bool, genomeLen)
		for g := range genes {
			genes[g] = rng.Float64() < bias
		}
		pop[i] = individual{genes: genes}
	}
	return pop
}

// evaluate fills the objective vector and the feasibility flag. Feasibility
// requires a non-empty selection and, when people are affected, a capacity
// coverage rate of at least the configured floor. The same floor is applied
// again by the hard-rule filter downstream.
func (o *Optimizer) evaluate(ind *individual, candidates []model.ResourceCandidate, required []model.CapabilityCode, affected int) {
	if ind.selectedCount() == 0 {
		ind.feasible = false
		for i := range ind.objs {
			ind.objs[i] = math.Inf(1)
		}
		return
	}
	sol := buildSolution(o.subset(ind.genes, candidates), required, affected)
	ind.objs = [numObjectives]float64{
		sol.Objectives.ResponseTime,
		-sol.Objectives.CoverageRate,
		-float64(sol.TotalRescueCapacity),
		sol.Objectives.Cost,
		sol.Objectives.Risk,
	}
	ind.feasible = affected == 0 || sol.CapacityCoverageRate >= o.cfg.MinCoverageRate
}

func (o *Optimizer) subset(genes []bool, candidates []model.ResourceCandidate) []model.ResourceCandidate {
	var out []model.ResourceCandidate
	for i, g := range genes {
		if g {
			out = append(out, candidates[i])
		}
	}
	return out
}

// makeOffspring produces a full generation via binary tournament selection,
// single-point crossover and bit-flip mutation.
func (o *Optimizer) makeOffspring(rng *rand.Rand, pop []individual) []individual {
	offspring := make([]individual, 0, len(pop))
	for len(offspring) < len(pop) {
		a := tournament(rng, pop)
		b := tournament(rng, pop)
		childA, childB := o.crossover(rng, a, b)
		o.mutate(rng, childA.genes)
		o.mutate(rng, childB.genes)
		offspring = append(offspring, childA)
		if len(offspring) < len(pop) {
			offspring = append(offspring, childB)
		}
	}
	return offspring
}

func tournament(rng *rand.Rand, pop []individual) individual {
	a := pop[rng.Intn(len(pop))]
	b := pop[rng.Intn(len(pop))]
	if better(a, b) {
		return a
	}
	return b
}

// better implements the NSGA-II crowded-comparison operator, preferring
// feasible individuals first.
func better(a, b individual) bool {
	if a.feasible != b.feasible {
		return a.feasible
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.crowding > b.crowding
}

func (o *Optimizer) crossover(rng *rand.Rand, a, b individual) (individual, individual) {
	genesA := append([]bool(nil), a.genes...)
	genesB := append([]bool(nil), b.genes...)
	if rng.Float64() < o.cfg.CrossoverRate && len(genesA) > 1 {
		point := 1 + rng.Intn(len(genesA)-1)
		for i := point; i < len(genesA); i++ {
			genesA[i], genesB[i] = genesB[i], genesA[i]
		}
	}
	return individual{genes: genesA}, individual{genes: genesB}
}

func (o *Optimizer) mutate(rng *rand.Rand, genes []bool) {
	for i := range genes {
		if rng.Float64() < o.cfg.MutationRate {
			genes[i] = !genes[i]
		}
	}
}

// environmentalSelection keeps the best Population individuals from the
// combined parent+offspring pool, front by front, trimming the last front by
// crowding distance.
func (o *Optimizer) environmentalSelection(pool []individual) []individual {
	assignRanks(pool)
	sort.SliceStable(pool, func(i, j int) bool { return better(pool[i], pool[j]) })
	next := pool[:o.cfg.Population]
	out := make([]individual, len(next))
	copy(out, next)
	return out
}

// assignRanks runs fast non-dominated sorting and crowding-distance
// computation over the whole population.
func assignRanks(pop []individual) {
	n := len(pop)
	dominatedBy := make([][]int, n)
	domCount := make([]int, n)
	var current []int

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if dominates(pop[i], pop[j]) {
				dominatedBy[i] = append(dominatedBy[i], j)
			} else if dominates(pop[j], pop[i]) {
				domCount[i]++
			}
		}
		if domCount[i] == 0 {
			pop[i].rank = 0
			current = append(current, i)
		}
	}

	rank := 0
	for len(current) > 0 {
		crowdingDistance(pop, current)
		var next []int
		for _, i := range current {
			for _, j := range dominatedBy[i] {
				domCount[j]--
				if domCount[j] == 0 {
					pop[j].rank = rank + 1
					next = append(next, j)
				}
			}
		}
		current = next
		rank++
	}
}

// dominates reports whether a is no worse than b in every objective and
// strictly better in at least one. All objectives are minimized internally.
func dominates(a, b individual) bool {
	strictly := false
	for i := 0; i < numObjectives; i++ {
		if a.objs[i] > b.objs[i] {
			return false
		}
		if a.objs[i] < b.objs[i] {
			strictly = true
		}
	}
	return strictly
}

// crowdingDistance assigns the diversity measure within one front.
func crowdingDistance(pop []individual, front []int) {
	for _, i := range front {
		pop[i].crowding = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			pop[i].crowding = math.Inf(1)
		}
		return
	}
	column := make([]float64, len(front))
	idx := make([]int, len(front))
	for m := 0; m < numObjectives; m++ {
		for k, i := range front {
			column[k] = pop[i].objs[m]
			idx[k] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return pop[idx[a]].objs[m] < pop[idx[b]].objs[m] })
		span := floats.Max(column) - floats.Min(column)
		pop[idx[0]].crowding = math.Inf(1)
		pop[idx[len(idx)-1]].crowding = math.Inf(1)
		if span == 0 {
			continue
		}
		for k := 1; k < len(idx)-1; k++ {
			gap := pop[idx[k+1]].objs[m] - pop[idx[k-1]].objs[m]
			pop[idx[k]].crowding += gap / span
		}
	}
}

func anyFeasible(pop []individual) bool {
	for i := range pop {
		if pop[i].feasible {
			return true
		}
	}
	return false
}

// feasibleFront returns the rank-0 feasible individuals.
func feasibleFront(pop []individual) []individual {
	assignRanks(pop)
	var front []individual
	for i := range pop {
		if pop[i].feasible && pop[i].rank == 0 {
			front = append(front, pop[i])
		}
	}
	if len(front) > 0 {
		return front
	}
	// Feasible individuals may all sit behind infeasible rank-0 ones; fall
	// back to the non-dominated subset of the feasible pool.
	var feasible []individual
	for i := range pop {
		if pop[i].feasible {
			feasible = append(feasible, pop[i])
		}
	}
	if len(feasible) == 0 {
		return nil
	}
	assignRanks(feasible)
	var out []individual
	for i := range feasible {
		if feasible[i].rank == 0 {
			out = append(out, feasible[i])
		}
	}
	return out
}

// frontSolutions converts the front into deduplicated solutions with a
// stable order.
func (o *Optimizer) frontSolutions(front []individual, candidates []model.ResourceCandidate, required []model.CapabilityCode, affected int) []model.AllocationSolution {
	seen := make(map[string]struct{})
	var out []model.AllocationSolution
	for i := range front {
		sol := buildSolution(o.subset(front[i].genes, candidates), required, affected)
		key := sol.ResourceSetKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if sol.Objectives.CoverageRate < 1 {
			sol.Violations = append(sol.Violations, model.Violation{
				Code:     "capability_coverage_incomplete",
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("only %.0f%% of required capabilities are covered by the candidate pool", sol.Objectives.CoverageRate*100),
			})
		}
		if affected > 0 && sol.CapacityCoverageRate < o.cfg.CoverageThreshold {
			sol.CapacityWarning = fmt.Sprintf(
				"rescue capacity %d covers %.1f%% of %d affected (target %.0f%%)",
				sol.TotalRescueCapacity, sol.CapacityCoverageRate*100, affected, o.cfg.CoverageThreshold*100)
		}
		out = append(out, sol)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ResourceSetKey() < out[j].ResourceSetKey()
	})
	return out
}
