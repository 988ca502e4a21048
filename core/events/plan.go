package events

import "time"

// PlanCommitted is published once a plan holds its locks and is committed.
// Notification sinks forward it to external push mechanisms.
type PlanCommitted struct {
	RunID                string    `json:"run_id"`
	PlanID               string    `json:"plan_id"`
	EventID              string    `json:"event_id"`
	Resources            []string  `json:"resources"`
	TotalRescueCapacity  int       `json:"total_rescue_capacity"`
	CapacityCoverageRate float64   `json:"capacity_coverage_rate"`
	CapacityWarning      string    `json:"capacity_warning,omitempty"`
	SolutionsConsidered  int       `json:"solutions_considered"`
	CommittedAt          time.Time `json:"committed_at"`
}
