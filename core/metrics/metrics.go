package metrics

import "time"

// RunRecord summarizes one finished pipeline run.
type RunRecord struct {
	RunID                string
	EventID              string
	Status               string
	Mode                 string
	SolutionsConsidered  int
	CapacityCoverageRate float64
	Duration             time.Duration
	Time                 time.Time
}

// MetricsSink records allocation runs for observability purposes.
type MetricsSink interface {
	RecordRun(rec RunRecord) error
}

// StageLatency measures one pipeline stage of a run.
type StageLatency struct {
	RunID   string
	Stage   string
	Latency time.Duration
}

// StageRecorder is implemented by sinks able to record per-stage latency.
type StageRecorder interface {
	RecordStageLatency(rec StageLatency) error
}

// LockConflictRecorder counts failed lock acquisitions.
type LockConflictRecorder interface {
	RecordLockConflict(runID string) error
}

// CandidatePoolRecorder records the candidate pool size seen by a run.
type CandidatePoolRecorder interface {
	RecordCandidatePool(size int) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunRecord) error             { return nil }
func (NopSink) RecordStageLatency(StageLatency) error { return nil }
func (NopSink) RecordLockConflict(string) error       { return nil }
func (NopSink) RecordCandidatePool(int) error         { return nil }
