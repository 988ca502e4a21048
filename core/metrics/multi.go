package metrics

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordRun(rec RunRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordStageLatency forwards stage latencies to capable sinks.
func (m *MultiSink) RecordStageLatency(rec StageLatency) error {
	for _, s := range m.Sinks {
		if r, ok := s.(StageRecorder); ok {
			if err := r.RecordStageLatency(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLockConflict forwards lock conflicts to capable sinks.
func (m *MultiSink) RecordLockConflict(runID string) error {
	for _, s := range m.Sinks {
		if r, ok := s.(LockConflictRecorder); ok {
			if err := r.RecordLockConflict(runID); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCandidatePool forwards pool sizes to capable sinks.
func (m *MultiSink) RecordCandidatePool(size int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(CandidatePoolRecorder); ok {
			if err := r.RecordCandidatePool(size); err != nil {
				return err
			}
		}
	}
	return nil
}
