package catalog

import (
	"math"

	"github.com/pierreba/era/core/model"
)

// Rescue-capacity coefficients per resource type, applied when the source
// does not supply a capacity figure. A medical team processes roughly five
// persons per member within the operational window; engineering units do not
// rescue people directly.
var capacityCoefficients = map[model.ResourceType]float64{
	model.ResourceMedical:     5,
	model.ResourceFire:        2,
	model.ResourceStructural:  2,
	model.ResourceSearch:      1.5,
	model.ResourceEngineering: 0,
}

const defaultCapacityCoefficient = 1

// EstimateCapacity returns the rescue capacity for a candidate, estimating
// from personnel and resource type when the source value is absent.
func EstimateCapacity(c model.ResourceCandidate) int {
	if c.RescueCapacity > 0 {
		return c.RescueCapacity
	}
	coef, ok := capacityCoefficients[c.Type]
	if !ok {
		coef = defaultCapacityCoefficient
	}
	return int(math.Round(float64(c.AvailablePersonnel) * coef))
}

// ApplyEstimates fills the rescue capacity of every candidate in place.
// It must run before any allocation decision so capacity is never nil-like.
func ApplyEstimates(candidates []model.ResourceCandidate) []model.ResourceCandidate {
	for i := range candidates {
		candidates[i].RescueCapacity = EstimateCapacity(candidates[i])
	}
	return candidates
}
