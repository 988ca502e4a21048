package model

// ObjectiveValues holds the raw objective measurements of a solution. Lower
// is better for ResponseTime, Cost and Risk; higher is better for
// CoverageRate.
type ObjectiveValues struct {
	ResponseTime float64 `json:"response_time"` // minutes until the slowest selected resource arrives
	CoverageRate float64 `json:"coverage_rate"` // fraction of required capabilities covered
	Cost         float64 `json:"cost"`          // summed hourly cost of selected resources
	Risk         float64 `json:"risk"`          // mean risk factor of selected resources
}

// AllocationSolution is one feasible assignment of resources to an event.
type AllocationSolution struct {
	ID                  string           `json:"id"`
	SelectedResources   []string         `json:"selected_resources"`
	CoveredCapabilities []CapabilityCode `json:"covered_capabilities"`
	TotalRescueCapacity int              `json:"total_rescue_capacity"`

	// CapacityCoverageRate is TotalRescueCapacity / max(estimated affected, 1)
	// and is always populated when an affected-count estimate exists.
	CapacityCoverageRate float64 `json:"capacity_coverage_rate"`

	Objectives ObjectiveValues `json:"objectives"`
	Violations []Violation     `json:"violations,omitempty"`

	// CapacityWarning is non-empty when the candidate pool was exhausted
	// before the capacity target was reached.
	CapacityWarning string `json:"capacity_warning,omitempty"`

	// RequiresHumanReview flags solutions that must pass the external
	// review gate before commit.
	RequiresHumanReview bool `json:"requires_human_review,omitempty"`
}

// Covers reports whether the solution covers every given capability.
func (s AllocationSolution) Covers(required []CapabilityCode) bool {
	set := make(map[CapabilityCode]struct{}, len(s.CoveredCapabilities))
	for _, c := range s.CoveredCapabilities {
		set[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

// ResourceSetKey returns a stable identity for the selected resource set,
// used to deduplicate solutions.
func (s AllocationSolution) ResourceSetKey() string {
	key := ""
	for _, id := range s.SelectedResources {
		key += id + "|"
	}
	return key
}
