package alloc

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/pierreba/era/core/model"
)

// buildSolution assembles an AllocationSolution from a selected candidate
// subset, computing covered capabilities, total capacity, coverage rates and
// the raw objective values.
func buildSolution(selected []model.ResourceCandidate, required []model.CapabilityCode, affected int) model.AllocationSolution {
	covered := make(map[model.CapabilityCode]struct{})
	var coveredList []model.CapabilityCode
	ids := make([]string, 0, len(selected))
	totalCapacity := 0
	maxETA := 0.0
	totalCost := 0.0
	risks := make([]float64, 0, len(selected))

	for _, c := range selected {
		ids = append(ids, c.ID)
		totalCapacity += c.RescueCapacity
		if c.ETAMinutes > maxETA {
			maxETA = c.ETAMinutes
		}
		totalCost += c.CostPerHour
		risks = append(risks, c.RiskFactor)
		for _, capab := range c.Capabilities {
			if _, ok := covered[capab]; ok {
				continue
			}
			covered[capab] = struct{}{}
			coveredList = append(coveredList, capab)
		}
	}

	coverage := capabilityCoverage(covered, required)
	meanRisk := 0.0
	if len(risks) > 0 {
		meanRisk = stat.Mean(risks, nil)
	}

	return model.AllocationSolution{
		ID:                   uuid.NewString(),
		SelectedResources:    ids,
		CoveredCapabilities:  coveredList,
		TotalRescueCapacity:  totalCapacity,
		CapacityCoverageRate: float64(totalCapacity) / float64(max(affected, 1)),
		Objectives: model.ObjectiveValues{
			ResponseTime: maxETA,
			CoverageRate: coverage,
			Cost:         totalCost,
			Risk:         meanRisk,
		},
	}
}

func capabilityCoverage(covered map[model.CapabilityCode]struct{}, required []model.CapabilityCode) float64 {
	if len(required) == 0 {
		return 1
	}
	hit := 0
	for _, c := range required {
		if _, ok := covered[c]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(required))
}
