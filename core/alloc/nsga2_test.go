package alloc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pierreba/era/core/model"
)

func largePool(n int) []model.ResourceCandidate {
	caps := [][]model.CapabilityCode{
		{"water_rescue"},
		{"medical_triage"},
		{"boat_ops"},
		{"water_rescue", "medical_triage"},
	}
	pool := make([]model.ResourceCandidate, n)
	for i := range pool {
		pool[i] = model.ResourceCandidate{
			ID:             fmt.Sprintf("r%02d", i),
			Status:         model.StatusAvailable,
			Capabilities:   caps[i%len(caps)],
			RescueCapacity: 80 + 10*(i%7),
			ETAMinutes:     float64(5 + 3*(i%9)),
			CostPerHour:    100 + float64(20*(i%5)),
			RiskFactor:     0.01 * float64(i%6),
		}
	}
	return pool
}

func TestNSGA_ReturnsFeasibleParetoFront(t *testing.T) {
	o := newTestOptimizer(t, Config{Seed: 42, Population: 30, Generations: 25})
	reqs := rescueRequirements()
	affected := 600

	sols, err := o.Optimize(context.Background(), reqs, largePool(16), affected, ModeMultiObjective)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(sols) == 0 {
		t.Fatalf("empty front")
	}
	for _, sol := range sols {
		if sol.CapacityCoverageRate < o.Config().MinCoverageRate {
			t.Errorf("solution %s below the feasibility floor: %v", sol.ID, sol.CapacityCoverageRate)
		}
		if len(sol.SelectedResources) == 0 {
			t.Errorf("solution %s selects nothing", sol.ID)
		}
	}
}

func TestNSGA_FrontIsNonDominated(t *testing.T) {
	o := newTestOptimizer(t, Config{Seed: 7, Population: 24, Generations: 20})
	sols, err := o.Optimize(context.Background(), rescueRequirements(), largePool(14), 500, ModeMultiObjective)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	worse := func(a, b model.AllocationSolution) bool {
		// b dominates a when no objective is worse and at least one is
		// strictly better.
		noWorse := b.Objectives.ResponseTime <= a.Objectives.ResponseTime &&
			b.Objectives.CoverageRate >= a.Objectives.CoverageRate &&
			b.TotalRescueCapacity >= a.TotalRescueCapacity &&
			b.Objectives.Cost <= a.Objectives.Cost &&
			b.Objectives.Risk <= a.Objectives.Risk
		strictly := b.Objectives.ResponseTime < a.Objectives.ResponseTime ||
			b.Objectives.CoverageRate > a.Objectives.CoverageRate ||
			b.TotalRescueCapacity > a.TotalRescueCapacity ||
			b.Objectives.Cost < a.Objectives.Cost ||
			b.Objectives.Risk < a.Objectives.Risk
		return noWorse && strictly
	}
	for i := range sols {
		for j := range sols {
			if i != j && worse(sols[i], sols[j]) {
				t.Fatalf("solution %d is dominated by %d", i, j)
			}
		}
	}
}

func TestNSGA_DeterministicWithSeed(t *testing.T) {
	run := func() []string {
		o := newTestOptimizer(t, Config{Seed: 99, Population: 20, Generations: 15})
		sols, err := o.Optimize(context.Background(), rescueRequirements(), largePool(12), 400, ModeMultiObjective)
		if err != nil {
			t.Fatalf("optimize: %v", err)
		}
		keys := make([]string, len(sols))
		for i, s := range sols {
			keys[i] = s.ResourceSetKey()
		}
		return keys
	}
	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("front size differs between seeded runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("front differs at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestNSGA_IncompleteCoverageIsAnnotated(t *testing.T) {
	// No candidate offers boat_ops, so every front solution covers at most
	// two of the three required capabilities and must say so, the same way
	// the greedy path does.
	pool := []model.ResourceCandidate{
		{ID: "w1", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"water_rescue"}, RescueCapacity: 120},
		{ID: "w2", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"water_rescue"}, RescueCapacity: 100},
		{ID: "m1", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"medical_triage"}, RescueCapacity: 110},
		{ID: "m2", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"medical_triage"}, RescueCapacity: 90},
	}
	o := newTestOptimizer(t, Config{Seed: 11, Population: 16, Generations: 10})
	sols, err := o.Optimize(context.Background(), rescueRequirements(), pool, 200, ModeMultiObjective)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(sols) == 0 {
		t.Fatalf("empty front")
	}
	for _, sol := range sols {
		if sol.Objectives.CoverageRate >= 1 {
			t.Fatalf("solution %s reports full coverage from a pool without boat_ops", sol.ID)
		}
		annotated := false
		for _, v := range sol.Violations {
			if v.Code == "capability_coverage_incomplete" {
				annotated = true
			}
		}
		if !annotated {
			t.Errorf("solution %s covers %.0f%% of capabilities but records no coverage violation",
				sol.ID, sol.Objectives.CoverageRate*100)
		}
	}
}

func TestNSGA_NonConvergenceWhenCapacityUnreachable(t *testing.T) {
	// Total pool capacity is 30 against 10000 affected: no individual can
	// reach the 50% floor, so the optimizer must raise instead of returning
	// an unvalidated answer.
	pool := []model.ResourceCandidate{
		{ID: "a", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"water_rescue"}, RescueCapacity: 10},
		{ID: "b", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"medical_triage"}, RescueCapacity: 10},
		{ID: "c", Status: model.StatusAvailable, Capabilities: []model.CapabilityCode{"boat_ops"}, RescueCapacity: 10},
	}
	o := newTestOptimizer(t, Config{Seed: 3, Population: 10, Generations: 5})
	_, err := o.Optimize(context.Background(), rescueRequirements(), pool, 10000, ModeMultiObjective)
	if !errors.Is(err, ErrNonConvergence) {
		t.Fatalf("expected ErrNonConvergence, got %v", err)
	}
}

func TestNSGA_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOptimizer(t, Config{Seed: 5, Population: 10, Generations: 50})
	_, err := o.Optimize(ctx, rescueRequirements(), largePool(4), 1000000, ModeMultiObjective)
	if !errors.Is(err, ErrOptimizerTimeout) {
		t.Fatalf("expected ErrOptimizerTimeout on canceled context, got %v", err)
	}
}
