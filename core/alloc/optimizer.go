package alloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/pierreba/era/core/logger"
	"github.com/pierreba/era/core/model"
)

// Mode selects the optimization strategy.
type Mode int

const (
	// ModeGreedy is the deterministic capacity-aware baseline.
	ModeGreedy Mode = iota
	// ModeMultiObjective runs the NSGA-II Pareto search.
	ModeMultiObjective
)

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeGreedy:
		return "greedy"
	case ModeMultiObjective:
		return "multi_objective"
	default:
		return "unknown"
	}
}

// ErrNoCandidates indicates the catalog produced no usable candidates.
var ErrNoCandidates = errors.New("no candidate resources to allocate")

// ErrOptimizerTimeout indicates the multi-objective search hit its wall-clock
// budget without producing a feasible individual. The caller may retry in
// greedy mode; the optimizer never falls back on its own.
var ErrOptimizerTimeout = errors.New("optimizer timed out without a feasible solution")

// ErrNonConvergence indicates the search finished its generation budget
// without a single feasible individual.
var ErrNonConvergence = errors.New("optimizer did not converge to a feasible solution")

// Optimizer produces allocation solutions from requirements and a candidate
// snapshot.
type Optimizer struct {
	cfg Config
	log logger.Logger
}

// New builds an optimizer, validating the configuration.
func New(cfg Config, log logger.Logger) (*Optimizer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}
	return &Optimizer{cfg: cfg, log: log}, nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Optimize runs the selected mode. Candidates must already carry estimated
// rescue capacities. Greedy mode returns exactly one solution; the
// multi-objective mode returns a Pareto set.
func (o *Optimizer) Optimize(ctx context.Context, reqs []model.Requirement, candidates []model.ResourceCandidate, affected int, mode Mode) ([]model.AllocationSolution, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	switch mode {
	case ModeMultiObjective:
		return o.optimizeNSGA(ctx, reqs, candidates, affected)
	default:
		sol, err := o.optimizeGreedy(reqs, candidates, affected)
		if err != nil {
			return nil, err
		}
		return []model.AllocationSolution{sol}, nil
	}
}
