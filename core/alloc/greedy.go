package alloc

import (
	"fmt"
	"math"
	"sort"

	"github.com/pierreba/era/core/model"
)

// candidate pairs a resource with its greedy match score.
type candidate struct {
	r     model.ResourceCandidate
	score float64
}

// matchScore combines capability overlap, availability and proximity.
func matchScore(r model.ResourceCandidate, required []model.CapabilityCode) float64 {
	overlap := 1.0
	if len(required) > 0 {
		hit := 0
		for _, c := range required {
			if r.HasCapability(c) {
				hit++
			}
		}
		overlap = float64(hit) / float64(len(required))
	}
	avail := 0.0
	switch r.Status {
	case model.StatusAvailable:
		avail = 1.0
	case model.StatusStandby:
		avail = 0.7
	}
	proximity := math.Exp(-r.ETAMinutes / 60.0)
	return overlap * avail * proximity
}

// optimizeGreedy iterates candidates by descending match score and keeps
// adding resources until required capabilities are covered AND the capacity
// target is reached. Capability coverage alone never terminates the loop:
// when people are affected, capacity has to follow. An affected count of
// zero (pure capability-driven work) short-circuits the capacity condition.
func (o *Optimizer) optimizeGreedy(reqs []model.Requirement, candidates []model.ResourceCandidate, affected int) (model.AllocationSolution, error) {
	required := model.UnionCapabilities(reqs)

	list := make([]candidate, 0, len(candidates))
	for _, r := range candidates {
		list = append(list, candidate{r: r, score: matchScore(r, required)})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		if list[i].r.ETAMinutes != list[j].r.ETAMinutes {
			return list[i].r.ETAMinutes < list[j].r.ETAMinutes
		}
		return list[i].r.ID < list[j].r.ID
	})

	capacityTarget := o.cfg.CoverageThreshold * float64(affected)
	covered := make(map[model.CapabilityCode]struct{})
	var selected []model.ResourceCandidate
	totalCapacity := 0

	for _, c := range list {
		selected = append(selected, c.r)
		totalCapacity += c.r.RescueCapacity
		for _, capab := range c.r.Capabilities {
			covered[capab] = struct{}{}
		}
		if !coversAll(covered, required) {
			continue
		}
		if affected == 0 || float64(totalCapacity) >= capacityTarget {
			break
		}
	}

	sol := buildSolution(selected, required, affected)

	if !coversAll(covered, required) {
		sol.Violations = append(sol.Violations, model.Violation{
			Code:     "capability_coverage_incomplete",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("only %.0f%% of required capabilities are covered by the candidate pool", sol.Objectives.CoverageRate*100),
		})
	}
	if affected > 0 && float64(totalCapacity) < capacityTarget {
		// All candidates are exhausted; the solution is still returned,
		// explicitly annotated as under-resourced.
		sol.CapacityWarning = fmt.Sprintf(
			"rescue capacity %d covers %.1f%% of %d affected (target %.0f%%); pool exhausted",
			totalCapacity, sol.CapacityCoverageRate*100, affected, o.cfg.CoverageThreshold*100)
		sol.Violations = append(sol.Violations, model.Violation{
			Code:     "insufficient_capacity",
			Severity: model.SeverityWarning,
			Message:  sol.CapacityWarning,
		})
	}
	return sol, nil
}

func coversAll(covered map[model.CapabilityCode]struct{}, required []model.CapabilityCode) bool {
	for _, c := range required {
		if _, ok := covered[c]; !ok {
			return false
		}
	}
	return true
}
