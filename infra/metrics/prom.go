package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/pierreba/era/core/metrics"
)

// PromSink records allocation runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	conflicts prometheus.Counter
	coverage  prometheus.Gauge
	pool      prometheus.Gauge
}

// NewPromSink registers allocation metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_runs_total",
		Help: "Total number of allocation pipeline runs",
	}, []string{"status", "mode"})
	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocation_stage_seconds",
		Help:    "Latency of each pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_lock_conflicts_total",
		Help: "Number of failed lock acquisitions",
	})
	coverage := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_capacity_coverage_rate",
		Help: "Capacity coverage rate of the last committed plan",
	})
	pool := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_candidate_pool_size",
		Help: "Number of candidates returned by the last catalog query",
	})

	collectors := []prometheus.Collector{runs, stages, conflicts, coverage, pool}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				collectors[i] = are.ExistingCollector
			} else {
				return nil, err
			}
		}
	}
	return &PromSink{
		runs:      collectors[0].(*prometheus.CounterVec),
		stages:    collectors[1].(*prometheus.HistogramVec),
		conflicts: collectors[2].(prometheus.Counter),
		coverage:  collectors[3].(prometheus.Gauge),
		pool:      collectors[4].(prometheus.Gauge),
	}, nil
}

// RecordRun increments the run counter and updates the coverage gauge.
func (s *PromSink) RecordRun(rec coremetrics.RunRecord) error {
	s.runs.WithLabelValues(rec.Status, rec.Mode).Inc()
	s.coverage.Set(rec.CapacityCoverageRate)
	return nil
}

// RecordStageLatency observes the stage latency histogram.
func (s *PromSink) RecordStageLatency(rec coremetrics.StageLatency) error {
	s.stages.WithLabelValues(rec.Stage).Observe(rec.Latency.Seconds())
	return nil
}

// RecordLockConflict counts a failed lock acquisition.
func (s *PromSink) RecordLockConflict(string) error {
	s.conflicts.Inc()
	return nil
}

// RecordCandidatePool updates the pool-size gauge.
func (s *PromSink) RecordCandidatePool(size int) error {
	s.pool.Set(float64(size))
	return nil
}

// StartPromServer exposes /metrics until the context is canceled.
func StartPromServer(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
