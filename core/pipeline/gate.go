package pipeline

import (
	"context"

	"github.com/pierreba/era/core/constraint"
	"github.com/pierreba/era/core/model"
)

// ReviewGate decides whether a flagged solution may be committed. High-risk
// plans are routed through it before any lock is taken.
type ReviewGate interface {
	Review(ctx context.Context, ev model.EventContext, sol constraint.ScoredSolution) (bool, error)
}

// AutoApproveGate approves every solution. It is the default gate when no
// human review channel is configured.
type AutoApproveGate struct{}

func (AutoApproveGate) Review(context.Context, model.EventContext, constraint.ScoredSolution) (bool, error) {
	return true, nil
}
