package events

// RunStarted is published when a pipeline run begins.
type RunStarted struct {
	RunID   string
	EventID string
}

// RulesMatched is published after rule evaluation.
type RulesMatched struct {
	RunID   string
	Matched int
	RuleIDs []string
}

// SequencePlanned is published after task decomposition.
type SequencePlanned struct {
	RunID      string
	Tasks      int
	Violations int
}

// OptimizerEvent reports optimizer strategy decisions. Action can be
// "multi_objective_attempt", "multi_objective_failure" or "greedy_fallback".
type OptimizerEvent struct {
	RunID  string
	Mode   string
	Action string
	Err    error
}

// RunFailed is published when a run aborts with an error.
type RunFailed struct {
	RunID string
	Stage string
	Err   error
}
