package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pierreba/era/core/alloc"
	coreaudit "github.com/pierreba/era/core/audit"
	"github.com/pierreba/era/core/constraint"
	"github.com/pierreba/era/core/events"
	"github.com/pierreba/era/core/lock"
	"github.com/pierreba/era/core/metrics"
	"github.com/pierreba/era/core/model"
	"github.com/pierreba/era/core/rules"
	"github.com/pierreba/era/core/tasks"
	infracatalog "github.com/pierreba/era/infra/catalog"
	"github.com/pierreba/era/infra/logger"
	"github.com/pierreba/era/internal/eventbus"
)

type memoryStore struct {
	mu   sync.Mutex
	recs []coreaudit.Record
	fail bool
}

func (s *memoryStore) Append(_ context.Context, rec coreaudit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memoryStore) Query(_ context.Context, q coreaudit.Query) ([]coreaudit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []coreaudit.Record
	for _, r := range s.recs {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

type memoryNotify struct {
	mu    sync.Mutex
	plans []events.PlanCommitted
}

func (n *memoryNotify) PublishPlan(_ context.Context, plan events.PlanCommitted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.plans = append(n.plans, plan)
	return nil
}

func (n *memoryNotify) Close() error { return nil }

type conflictSink struct {
	metrics.NopSink
	mu        sync.Mutex
	conflicts int
	runs      []metrics.RunRecord
}

func (s *conflictSink) RecordRun(rec metrics.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

func (s *conflictSink) RecordLockConflict(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts++
	return nil
}

type rejectGate struct{}

func (rejectGate) Review(context.Context, model.EventContext, constraint.ScoredSolution) (bool, error) {
	return false, nil
}

func testRules(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine([]rules.Rule{{
		ID:     "eq-structural",
		Name:   "earthquake structural response",
		Weight: 1,
		When:   rules.Condition{Field: "disaster_type", Op: "eq", Value: "earthquake"},
		Action: rules.Action{
			TaskTypes:    []string{"structural_rescue"},
			Capabilities: []model.CapabilityCode{"structural_rescue", "medical_triage"},
			Priority:     "high",
		},
	}})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func testDecomposer(t *testing.T) *tasks.Decomposer {
	t.Helper()
	lib, err := tasks.NewLibrary([]tasks.ChainTemplate{{
		Scene: "building_collapse",
		Tasks: []tasks.TaskSpec{
			{Code: "recon"},
			{Code: "structural_rescue", DependsOn: []string{"recon"}, Strict: true, GoldenHourMinutes: 120},
			{Code: "medical_triage", DependsOn: []string{"recon"}},
		},
	}})
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	return tasks.NewDecomposer(lib)
}

func testTeam(id string, capacity int, risk float64) model.ResourceCandidate {
	return model.ResourceCandidate{
		ID:                 id,
		Name:               "team " + id,
		Type:               model.ResourceFire,
		Capabilities:       []model.CapabilityCode{"structural_rescue", "medical_triage"},
		AvailablePersonnel: 20,
		RescueCapacity:     capacity,
		Status:             model.StatusAvailable,
		ETAMinutes:         30,
		CostPerHour:        800,
		RiskFactor:         risk,
	}
}

type fixture struct {
	pipeline *Pipeline
	catalog  *infracatalog.MemoryCatalog
	locks    *lock.Manager
	store    *memoryStore
	notify   *memoryNotify
	sink     *conflictSink
	bus      *eventbus.Bus
}

func newFixture(t *testing.T, mutate func(*fixture) (ReviewGate, coreaudit.Store)) *fixture {
	t.Helper()
	f := &fixture{
		catalog: infracatalog.NewMemoryCatalog(testTeam("team-1", 200, 0.02), testTeam("team-2", 150, 0.03)),
		locks:   lock.NewManager(time.Minute),
		store:   &memoryStore{},
		notify:  &memoryNotify{},
		sink:    &conflictSink{},
		bus:     eventbus.New(),
	}
	opt, err := alloc.New(alloc.Config{}, logger.NopLogger{})
	if err != nil {
		t.Fatalf("optimizer: %v", err)
	}
	filter, err := constraint.NewFilter(constraint.Config{})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	var gate ReviewGate
	var store coreaudit.Store = f.store
	if mutate != nil {
		g, s := mutate(f)
		gate = g
		if s != nil {
			store = s
		}
	}
	p, err := New(Config{}, testRules(t), testDecomposer(t), f.catalog, opt, filter,
		f.locks, gate, store, f.sink, f.notify, f.bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	f.pipeline = p
	return f
}

func quakeEvent(affected int) model.EventContext {
	return model.EventContext{
		ID:                "ev-1",
		DisasterType:      "earthquake",
		SceneCodes:        []model.SceneCode{"building_collapse"},
		Severity:          4,
		EstimatedAffected: affected,
		OccurredAt:        time.Now().UTC(),
	}
}

func TestPipeline_CommitsPlan(t *testing.T) {
	f := newFixture(t, nil)
	res := f.pipeline.Allocate(context.Background(), Request{Event: quakeEvent(100)})
	if res.Status != StatusCommitted {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if res.Plan == nil || len(res.Plan.Resources) == 0 {
		t.Fatalf("missing plan: %+v", res)
	}
	for _, id := range res.Plan.Resources {
		if !f.locks.Held(id) {
			t.Fatalf("resource %s not locked after commit", id)
		}
		r, ok := f.catalog.Get(id)
		if !ok || r.Status != model.StatusDeployed {
			t.Fatalf("resource %s not marked deployed: %+v", id, r)
		}
	}
	recs, err := f.store.Query(context.Background(), coreaudit.Query{Status: StatusCommitted})
	if err != nil || len(recs) != 1 {
		t.Fatalf("audit records = %v, err = %v", recs, err)
	}
	if len(recs[0].MatchedRuleIDs) != 1 || recs[0].MatchedRuleIDs[0] != "eq-structural" {
		t.Fatalf("matched rules not recorded: %+v", recs[0])
	}
	if len(f.notify.plans) != 1 || f.notify.plans[0].PlanID != res.Plan.PlanID {
		t.Fatalf("plan not pushed: %+v", f.notify.plans)
	}
	if len(res.Sequence) != 3 || res.Sequence[0].Code != "recon" {
		t.Fatalf("unexpected sequence: %+v", res.Sequence)
	}
}

func TestPipeline_NoRulesMatched(t *testing.T) {
	f := newFixture(t, nil)
	ev := quakeEvent(100)
	ev.DisasterType = "heatwave"
	res := f.pipeline.Allocate(context.Background(), Request{Event: ev})
	if res.Status != StatusNoFeasible {
		t.Fatalf("status = %s", res.Status)
	}
	if !errors.Is(res.Err, ErrNoFeasibleSolution) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestPipeline_ReleasesLocksOnAuditFailure(t *testing.T) {
	f := newFixture(t, func(f *fixture) (ReviewGate, coreaudit.Store) {
		return nil, &memoryStore{fail: true}
	})
	res := f.pipeline.Allocate(context.Background(), Request{Event: quakeEvent(100)})
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	for _, id := range []string{"team-1", "team-2"} {
		if f.locks.Held(id) {
			t.Fatalf("lock on %s leaked after failed commit", id)
		}
	}
	if res.Plan != nil {
		t.Fatalf("plan should not be committed: %+v", res.Plan)
	}
}

func TestPipeline_GateRejectsFlaggedSolution(t *testing.T) {
	f := &fixture{
		catalog: infracatalog.NewMemoryCatalog(testTeam("team-1", 200, 0.05)),
		locks:   lock.NewManager(time.Minute),
		store:   &memoryStore{},
		notify:  &memoryNotify{},
		sink:    &conflictSink{},
		bus:     eventbus.New(),
	}
	opt, err := alloc.New(alloc.Config{}, logger.NopLogger{})
	if err != nil {
		t.Fatalf("optimizer: %v", err)
	}
	// Review threshold below the team risk so every solution is flagged.
	filter, err := constraint.NewFilter(constraint.Config{ReviewRiskThreshold: 0.01})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	p, err := New(Config{}, testRules(t), testDecomposer(t), f.catalog, opt, filter,
		f.locks, rejectGate{}, f.store, f.sink, f.notify, f.bus, logger.NopLogger{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	res := p.Allocate(context.Background(), Request{Event: quakeEvent(100)})
	if res.Status != StatusRejected {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	found := false
	for _, rej := range res.Rejections {
		if rej.RuleCode == "human_review" {
			found = true
		}
	}
	if !found {
		t.Fatalf("gate rejection not recorded: %+v", res.Rejections)
	}
	if f.locks.Held("team-1") {
		t.Fatal("rejected solution must not hold locks")
	}
}

func TestPipeline_LockConflictRecorded(t *testing.T) {
	f := newFixture(t, nil)
	// Another run already holds the strongest team; greedy picks it and the
	// acquisition must conflict, leaving the run without a feasible plan.
	if _, err := f.pipeline.locks.Acquire("other-run", []string{"team-1"}, time.Minute); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	res := f.pipeline.Allocate(context.Background(), Request{Event: quakeEvent(100)})
	if res.Status != StatusNoFeasible {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err)
	}
	if f.sink.conflicts == 0 {
		t.Fatal("lock conflict not recorded")
	}
}

func TestPipeline_RunConsumesRequests(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests := make(chan Request, 1)
	requests <- Request{Event: quakeEvent(100)}
	close(requests)
	done := make(chan struct{})
	go func() {
		f.pipeline.Run(ctx, requests)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	recs, err := f.store.Query(context.Background(), coreaudit.Query{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected one audit record, got %v (err %v)", recs, err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := Config{DefaultMaxResults: -1}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for negative max results")
	}
	if fmt.Sprintf("%d", cfg.DefaultMaxResults) == "0" {
		t.Fatal("default max results not set")
	}
}
