package metrics

import (
	"context"
	"time"

	"github.com/pierreba/era/core/events"
	coremetrics "github.com/pierreba/era/core/metrics"
	"github.com/pierreba/era/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// allocation events. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.PlanCommitted:
					_ = sink.RecordRun(coremetrics.RunRecord{
						RunID:                e.RunID,
						EventID:              e.EventID,
						Status:               "committed",
						SolutionsConsidered:  e.SolutionsConsidered,
						CapacityCoverageRate: e.CapacityCoverageRate,
						Time:                 e.CommittedAt,
					})
				case events.RunFailed:
					_ = sink.RecordRun(coremetrics.RunRecord{
						RunID:  e.RunID,
						Status: "failed",
						Time:   time.Now(),
					})
				}
			}
		}
	}()
}
