package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/pierreba/era/core/metrics"
	"github.com/pierreba/era/infra/logger"
)

// InfluxSink writes allocation runs to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes the run summary as a single point.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("status", rec.Status).
		AddTag("mode", rec.Mode).
		AddTag("event_id", rec.EventID).
		AddTag("component", "allocation_pipeline").
		AddField("run_id", rec.RunID).
		AddField("solutions_considered", rec.SolutionsConsidered).
		AddField("capacity_coverage_rate", rec.CapacityCoverageRate).
		AddField("duration_ms", rec.Duration.Milliseconds()).
		SetTime(ts)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStageLatency writes a per-stage latency point.
func (s *InfluxSink) RecordStageLatency(rec coremetrics.StageLatency) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_stage").
		AddTag("stage", rec.Stage).
		AddField("run_id", rec.RunID).
		AddField("latency_ms", rec.Latency.Milliseconds()).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLockConflict writes a lock conflict point.
func (s *InfluxSink) RecordLockConflict(runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("allocation_lock_conflict").
		AddField("run_id", runID).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
