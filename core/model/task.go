package model

// TaskNode is one task in the decomposed execution sequence. Nodes are built
// per run from the template library and never mutated afterwards.
type TaskNode struct {
	Code      string   `json:"code"`
	DependsOn []string `json:"depends_on,omitempty"`

	// Strict marks the incoming dependencies as mandatory: an unsatisfied
	// strict dependency flags the run with a violation instead of a warning.
	Strict bool `json:"strict"`

	// GoldenHourMinutes is the time-critical window for this task type.
	// Zero means no golden-hour constraint.
	GoldenHourMinutes int `json:"golden_hour_minutes,omitempty"`
}

// ViolationSeverity distinguishes blocking violations from warnings.
type ViolationSeverity string

const (
	SeverityError   ViolationSeverity = "error"
	SeverityWarning ViolationSeverity = "warning"
)

// Violation records a constraint or dependency breach detected during a run.
// Violations are surfaced on the result, never silently dropped.
type Violation struct {
	Code     string            `json:"code"`
	Severity ViolationSeverity `json:"severity"`
	Message  string            `json:"message"`
	TaskCode string            `json:"task_code,omitempty"`
}
