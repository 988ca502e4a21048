package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pierreba/era/core/alloc"
	"github.com/pierreba/era/core/audit"
	"github.com/pierreba/era/core/catalog"
	"github.com/pierreba/era/core/constraint"
	"github.com/pierreba/era/core/events"
	"github.com/pierreba/era/core/lock"
	"github.com/pierreba/era/core/logger"
	"github.com/pierreba/era/core/metrics"
	"github.com/pierreba/era/core/model"
	"github.com/pierreba/era/core/notify"
	"github.com/pierreba/era/core/rules"
	"github.com/pierreba/era/core/tasks"
	"github.com/pierreba/era/internal/eventbus"
)

// ErrNoFeasibleSolution indicates that no solution survived hard filtering
// and lock acquisition.
var ErrNoFeasibleSolution = errors.New("no feasible allocation solution")

// Terminal statuses of a pipeline run.
const (
	StatusCommitted  = "committed"
	StatusNoFeasible = "no_feasible"
	StatusRejected   = "rejected"
	StatusFailed     = "failed"
)

// Config holds pipeline-level settings.
type Config struct {
	// DefaultMaxResults bounds catalog queries. It must be positive; the
	// catalog refuses unbounded queries.
	DefaultMaxResults int `json:"default_max_results"`
	// FallbackGreedy re-runs the greedy baseline when the multi-objective
	// search fails. Off by default: a silent quality downgrade must be an
	// explicit operator choice.
	FallbackGreedy bool `json:"fallback_greedy"`
	// LockTTLSeconds overrides the lock manager default when positive.
	LockTTLSeconds int `json:"lock_ttl_seconds"`
}

// SetDefaults fills unset fields with sensible values.
func (c *Config) SetDefaults() {
	if c.DefaultMaxResults == 0 {
		c.DefaultMaxResults = 200
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultMaxResults <= 0 {
		return fmt.Errorf("default_max_results must be positive")
	}
	if c.LockTTLSeconds < 0 {
		return fmt.Errorf("lock_ttl_seconds must not be negative")
	}
	return nil
}

// Request asks for an allocation plan for one emergency event.
type Request struct {
	Event model.EventContext
}

// Result reports the outcome of one run.
type Result struct {
	RunID      string
	Status     string
	RuleIDs    []string
	Considered int
	Plan       *events.PlanCommitted
	Solution   *constraint.ScoredSolution
	Sequence   []model.TaskNode
	Rejections []constraint.Rejection
	Violations []model.Violation
	Timings    map[string]time.Duration
	Err        error
}

// Pipeline chains rule evaluation, task decomposition, candidate lookup,
// optimization, constraint filtering and lock-guarded commit.
type Pipeline struct {
	cfg       Config
	engine    *rules.Engine
	decomp    *tasks.Decomposer
	catalog   catalog.Catalog
	optimizer *alloc.Optimizer
	filter    *constraint.Filter
	locks     *lock.Manager
	gate      ReviewGate
	store     audit.Store
	sink      metrics.MetricsSink
	notifier  notify.Sink
	bus       eventbus.EventBus
	log       logger.Logger
}

// New assembles a pipeline. The gate, store, sink, notifier and bus may be
// nil; no-op implementations are substituted.
func New(cfg Config, engine *rules.Engine, decomp *tasks.Decomposer, cat catalog.Catalog,
	opt *alloc.Optimizer, filter *constraint.Filter, locks *lock.Manager,
	gate ReviewGate, store audit.Store, sink metrics.MetricsSink,
	notifier notify.Sink, bus eventbus.EventBus, log logger.Logger) (*Pipeline, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if engine == nil || decomp == nil || cat == nil || opt == nil || filter == nil || locks == nil {
		return nil, fmt.Errorf("pipeline: missing component")
	}
	if gate == nil {
		gate = AutoApproveGate{}
	}
	if store == nil {
		store = audit.NopStore{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	return &Pipeline{
		cfg:       cfg,
		engine:    engine,
		decomp:    decomp,
		catalog:   cat,
		optimizer: opt,
		filter:    filter,
		locks:     locks,
		gate:      gate,
		store:     store,
		sink:      sink,
		notifier:  notifier,
		bus:       bus,
		log:       log,
	}, nil
}

// Run consumes requests until the context is canceled or the channel closes.
func (p *Pipeline) Run(ctx context.Context, requests <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			res := p.Allocate(ctx, req)
			if res.Err != nil {
				p.log.Errorf("run %s ended with status %s: %v", res.RunID, res.Status, res.Err)
			}
		}
	}
}

// Allocate executes one full pipeline run for the event.
func (p *Pipeline) Allocate(ctx context.Context, req Request) Result {
	runID := uuid.New().String()
	started := time.Now()
	res := Result{RunID: runID, Timings: make(map[string]time.Duration)}
	p.publish(events.RunStarted{RunID: runID, EventID: req.Event.ID})

	stage := func(name string, since time.Time) {
		d := time.Since(since)
		res.Timings[name] = d
		if r, ok := p.sink.(metrics.StageRecorder); ok {
			_ = r.RecordStageLatency(metrics.StageLatency{RunID: runID, Stage: name, Latency: d})
		}
	}

	// Rule evaluation.
	t := time.Now()
	matches := p.engine.Evaluate(req.Event)
	stage("rules", t)
	ruleIDs := make([]string, len(matches))
	for i, m := range matches {
		ruleIDs[i] = m.Rule.ID
	}
	res.RuleIDs = ruleIDs
	p.publish(events.RulesMatched{RunID: runID, Matched: len(matches), RuleIDs: ruleIDs})
	if len(matches) == 0 {
		return p.finish(ctx, req, res, StatusNoFeasible, started, "",
			fmt.Errorf("%w: no rules matched event %s", ErrNoFeasibleSolution, req.Event.ID))
	}
	reqs := rules.Requirements(matches)

	// Task decomposition.
	t = time.Now()
	plan, err := p.decomp.Decompose(reqs, req.Event.SceneCodes)
	stage("decompose", t)
	if err != nil {
		p.publish(events.RunFailed{RunID: runID, Stage: "decompose", Err: err})
		return p.finish(ctx, req, res, StatusFailed, started, "", err)
	}
	res.Sequence = plan.Sequence
	res.Violations = append(res.Violations, plan.Violations...)
	p.publish(events.SequencePlanned{RunID: runID, Tasks: len(plan.Sequence), Violations: len(plan.Violations)})

	// Candidate lookup.
	t = time.Now()
	candidates, err := p.catalog.Query(ctx, catalog.QueryRequest{
		Capabilities: model.UnionCapabilities(reqs),
		Area:         req.Event.Area,
		MaxResults:   p.cfg.DefaultMaxResults,
	})
	stage("catalog", t)
	if err != nil {
		p.publish(events.RunFailed{RunID: runID, Stage: "catalog", Err: err})
		return p.finish(ctx, req, res, StatusFailed, started, "", err)
	}
	if r, ok := p.sink.(metrics.CandidatePoolRecorder); ok {
		_ = r.RecordCandidatePool(len(candidates))
	}
	candidates = catalog.ApplyEstimates(candidates)

	// Optimization.
	mode := alloc.ModeGreedy
	if len(candidates) > p.optimizer.Config().MultiObjectiveThreshold {
		mode = alloc.ModeMultiObjective
		p.publish(events.OptimizerEvent{RunID: runID, Mode: mode.String(), Action: "multi_objective_attempt"})
	}
	t = time.Now()
	solutions, err := p.optimizer.Optimize(ctx, reqs, candidates, req.Event.EstimatedAffected, mode)
	if err != nil && mode == alloc.ModeMultiObjective && p.cfg.FallbackGreedy {
		p.publish(events.OptimizerEvent{RunID: runID, Mode: mode.String(), Action: "multi_objective_failure", Err: err})
		p.log.Warnf("run %s: multi-objective search failed (%v), falling back to greedy", runID, err)
		mode = alloc.ModeGreedy
		p.publish(events.OptimizerEvent{RunID: runID, Mode: mode.String(), Action: "greedy_fallback"})
		solutions, err = p.optimizer.Optimize(ctx, reqs, candidates, req.Event.EstimatedAffected, mode)
	}
	stage("optimize", t)
	if err != nil {
		if errors.Is(err, alloc.ErrNoCandidates) {
			return p.finish(ctx, req, res, StatusNoFeasible, started, mode.String(),
				fmt.Errorf("%w: %v", ErrNoFeasibleSolution, err))
		}
		p.publish(events.RunFailed{RunID: runID, Stage: "optimize", Err: err})
		return p.finish(ctx, req, res, StatusFailed, started, mode.String(), err)
	}

	// Constraint filtering and scoring.
	t = time.Now()
	env := constraint.Env{
		GoldenHourMinutes: tightestGoldenHour(plan.Sequence),
		EstimatedAffected: req.Event.EstimatedAffected,
	}
	feasible, rejections := p.filter.Apply(solutions, env)
	res.Considered = len(solutions)
	res.Rejections = rejections
	scored := p.filter.Score(feasible, reqs, candidates)
	stage("filter", t)
	if len(scored) == 0 {
		return p.finish(ctx, req, res, StatusNoFeasible, started, mode.String(), ErrNoFeasibleSolution)
	}

	// Review, lock and commit, walking the ranking until one solution
	// holds its locks.
	t = time.Now()
	result := p.commitFirst(ctx, req, &res, scored, mode)
	stage("commit", t)
	return p.finish(ctx, req, res, result.status, started, mode.String(), result.err)
}

type commitOutcome struct {
	status string
	err    error
}

func (p *Pipeline) commitFirst(ctx context.Context, req Request, res *Result, scored []constraint.ScoredSolution, mode alloc.Mode) commitOutcome {
	rejectedByGate := false
	for i := range scored {
		sol := scored[i]
		if sol.Solution.RequiresHumanReview {
			approved, err := p.gate.Review(ctx, req.Event, sol)
			if err != nil {
				p.publish(events.RunFailed{RunID: res.RunID, Stage: "review", Err: err})
				return commitOutcome{status: StatusFailed, err: err}
			}
			if !approved {
				rejectedByGate = true
				res.Rejections = append(res.Rejections, constraint.Rejection{
					Solution: sol.Solution,
					RuleCode: "human_review",
					Reason:   "rejected by review gate",
				})
				continue
			}
		}

		ttl := time.Duration(p.cfg.LockTTLSeconds) * time.Second
		handle, err := p.locks.Acquire(res.RunID, sol.Solution.SelectedResources, ttl)
		if err != nil {
			var conflict *lock.ConflictError
			if errors.As(err, &conflict) {
				if r, ok := p.sink.(metrics.LockConflictRecorder); ok {
					_ = r.RecordLockConflict(res.RunID)
				}
				p.log.Warnf("run %s: lock conflict on %v, trying next solution", res.RunID, conflict.ResourceIDs)
				continue
			}
			return commitOutcome{status: StatusFailed, err: err}
		}
		if !p.locks.Validate(handle) {
			p.locks.Release(handle)
			continue
		}

		if err := p.commit(ctx, req, res, sol, mode); err != nil {
			p.locks.Release(handle)
			p.publish(events.RunFailed{RunID: res.RunID, Stage: "commit", Err: err})
			return commitOutcome{status: StatusFailed, err: err}
		}
		res.Solution = &scored[i]
		res.Violations = append(res.Violations, sol.Solution.Violations...)
		return commitOutcome{status: StatusCommitted}
	}
	if rejectedByGate {
		return commitOutcome{status: StatusRejected, err: fmt.Errorf("%w: all reviewable solutions rejected", ErrNoFeasibleSolution)}
	}
	return commitOutcome{status: StatusNoFeasible, err: ErrNoFeasibleSolution}
}

// commit finalizes the solution while its locks are held. Any error rolls
// the run back; the caller releases the locks.
func (p *Pipeline) commit(ctx context.Context, req Request, res *Result, sol constraint.ScoredSolution, mode alloc.Mode) error {
	plan := events.PlanCommitted{
		RunID:                res.RunID,
		PlanID:               sol.Solution.ID,
		EventID:              req.Event.ID,
		Resources:            append([]string(nil), sol.Solution.SelectedResources...),
		TotalRescueCapacity:  sol.Solution.TotalRescueCapacity,
		CapacityCoverageRate: sol.Solution.CapacityCoverageRate,
		CapacityWarning:      sol.Solution.CapacityWarning,
		SolutionsConsidered:  res.Considered,
		CommittedAt:          time.Now().UTC(),
	}

	rec := p.record(req, *res, StatusCommitted, mode.String(), nil)
	rec.Committed = plan.Resources
	if err := p.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	if c, ok := p.catalog.(catalog.Committer); ok {
		if err := c.MarkUnavailable(ctx, plan.Resources); err != nil {
			return fmt.Errorf("mark unavailable: %w", err)
		}
	}
	if err := p.notifier.PublishPlan(ctx, plan); err != nil {
		// The plan stays committed; delivery is retried out of band.
		p.log.Errorf("run %s: plan notification failed: %v", res.RunID, err)
	}
	p.publish(plan)
	res.Plan = &plan
	return nil
}

// finish records metrics and audit state for terminal statuses and fills
// the result.
func (p *Pipeline) finish(ctx context.Context, req Request, res Result, status string, started time.Time, mode string, err error) Result {
	res.Status = status
	res.Err = err
	_ = p.sink.RecordRun(metrics.RunRecord{
		RunID:                res.RunID,
		EventID:              req.Event.ID,
		Status:               status,
		Mode:                 mode,
		SolutionsConsidered:  res.Considered,
		CapacityCoverageRate: coverageOf(res.Plan),
		Duration:             time.Since(started),
		Time:                 time.Now(),
	})
	if status != StatusCommitted {
		if aerr := p.store.Append(ctx, p.record(req, res, status, mode, err)); aerr != nil {
			p.log.Warnf("run %s: audit append failed: %v", res.RunID, aerr)
		}
	}
	return res
}

// record builds the audit record for the run.
func (p *Pipeline) record(req Request, res Result, status, mode string, err error) audit.Record {
	rec := audit.Record{
		RunID:          res.RunID,
		Timestamp:      time.Now().UTC(),
		Event:          req.Event,
		MatchedRuleIDs: res.RuleIDs,
		Sequence:       res.Sequence,
		Mode:           mode,
		Solutions:      res.Considered,
		Violations:     res.Violations,
		Timings:        res.Timings,
		Status:         status,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func (p *Pipeline) publish(ev eventbus.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}

// tightestGoldenHour returns the smallest positive golden-hour window in the
// sequence, or zero when none is set.
func tightestGoldenHour(sequence []model.TaskNode) float64 {
	best := 0
	for _, n := range sequence {
		if n.GoldenHourMinutes > 0 && (best == 0 || n.GoldenHourMinutes < best) {
			best = n.GoldenHourMinutes
		}
	}
	return float64(best)
}

func coverageOf(plan *events.PlanCommitted) float64 {
	if plan == nil {
		return 0
	}
	return plan.CapacityCoverageRate
}
