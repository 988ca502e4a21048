// Package notify defines the outbound notification interface used to push
// committed allocation plans to field systems.
package notify

import (
	"context"

	"github.com/pierreba/era/core/events"
)

// Sink pushes committed plans to an external channel.
type Sink interface {
	PublishPlan(ctx context.Context, plan events.PlanCommitted) error
	Close() error
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) PublishPlan(context.Context, events.PlanCommitted) error { return nil }
func (NopSink) Close() error                                            { return nil }
