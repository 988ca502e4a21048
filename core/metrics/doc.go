package metrics

// Package metrics defines interfaces and implementations for collecting
// allocation metrics. Sinks like PromSink and InfluxSink record run
// outcomes, stage latencies and lock conflicts and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
