package constraint

import (
	"fmt"
	"math"
	"sort"

	"github.com/pierreba/era/core/model"
)

// Env carries run-scoped inputs the hard rules compare against.
type Env struct {
	// GoldenHourMinutes is the tightest golden-hour window in the planned
	// sequence; zero disables the response-time rule.
	GoldenHourMinutes float64
	// EstimatedAffected enables the capacity-coverage rule when positive.
	EstimatedAffected int
}

// Rejection records why a solution was vetoed. Rejections are surfaced, not
// discarded.
type Rejection struct {
	Solution model.AllocationSolution
	RuleCode string
	Reason   string
}

// ScoredSolution is a feasible solution with its weighted soft score.
type ScoredSolution struct {
	Solution   model.AllocationSolution
	Score      float64
	Dimensions map[string]float64
}

// hardRule is a one-vote-veto predicate. Returning a non-empty reason
// rejects the solution.
type hardRule struct {
	code  string
	check func(model.AllocationSolution, Env) string
}

// Filter applies hard rules and computes soft scores.
type Filter struct {
	cfg   Config
	rules []hardRule
}

// NewFilter builds a filter, validating the configuration.
func NewFilter(cfg Config) (*Filter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("constraint config: %w", err)
	}
	f := &Filter{cfg: cfg}
	f.rules = []hardRule{
		{code: "max_risk", check: func(s model.AllocationSolution, _ Env) string {
			if s.Objectives.Risk > cfg.MaxRisk {
				return fmt.Sprintf("rescue risk %.3f exceeds limit %.3f", s.Objectives.Risk, cfg.MaxRisk)
			}
			return ""
		}},
		{code: "min_capacity_coverage", check: func(s model.AllocationSolution, env Env) string {
			if env.EstimatedAffected > 0 && s.CapacityCoverageRate < cfg.MinCapacityCoverage {
				return fmt.Sprintf("capacity coverage %.2f below floor %.2f", s.CapacityCoverageRate, cfg.MinCapacityCoverage)
			}
			return ""
		}},
		{code: "golden_hour", check: func(s model.AllocationSolution, env Env) string {
			if env.GoldenHourMinutes > 0 && s.Objectives.ResponseTime > env.GoldenHourMinutes {
				return fmt.Sprintf("response time %.0f min exceeds golden hour %.0f min", s.Objectives.ResponseTime, env.GoldenHourMinutes)
			}
			return ""
		}},
	}
	return f, nil
}

// Config returns the effective configuration.
func (f *Filter) Config() Config { return f.cfg }

// Apply evaluates every hard rule against every solution. A single failing
// rule removes the solution; the rejection reason is recorded. Surviving
// solutions above the review risk threshold are flagged for human review.
func (f *Filter) Apply(solutions []model.AllocationSolution, env Env) ([]model.AllocationSolution, []Rejection) {
	var passed []model.AllocationSolution
	var rejected []Rejection
	for _, sol := range solutions {
		reason, code := "", ""
		for _, rule := range f.rules {
			if r := rule.check(sol, env); r != "" {
				reason, code = r, rule.code
				break
			}
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Solution: sol, RuleCode: code, Reason: reason})
			continue
		}
		if sol.Objectives.Risk >= f.cfg.ReviewRiskThreshold {
			sol.RequiresHumanReview = true
		}
		passed = append(passed, sol)
	}
	return passed, rejected
}

// Score ranks feasible solutions by the weighted sum of normalized dimension
// scores, descending. Ties break toward lower risk.
func (f *Filter) Score(solutions []model.AllocationSolution, reqs []model.Requirement, candidates []model.ResourceCandidate) []ScoredSolution {
	required := model.UnionCapabilities(reqs)
	byID := make(map[string]model.ResourceCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	scored := make([]ScoredSolution, 0, len(solutions))
	for _, sol := range solutions {
		dims := map[string]float64{
			"success_rate":  successRate(sol),
			"response_time": responseScore(sol.Objectives.ResponseTime),
			"coverage_rate": sol.Objectives.CoverageRate,
			"risk":          1 - sol.Objectives.Risk,
			"redundancy":    redundancy(sol, required, byID),
		}
		w := f.cfg.Weights
		score := dims["success_rate"]*w.SuccessRate +
			dims["response_time"]*w.ResponseTime +
			dims["coverage_rate"]*w.Coverage +
			dims["risk"]*w.Risk +
			dims["redundancy"]*w.Redundancy
		scored = append(scored, ScoredSolution{Solution: sol, Score: score, Dimensions: dims})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Solution.Objectives.Risk < scored[j].Solution.Objectives.Risk
	})
	return scored
}

// successRate estimates mission success from capability coverage discounted
// by risk and capacity shortfall.
func successRate(sol model.AllocationSolution) float64 {
	rate := sol.Objectives.CoverageRate * (1 - sol.Objectives.Risk)
	if sol.CapacityCoverageRate > 0 && sol.CapacityCoverageRate < 1 {
		rate *= sol.CapacityCoverageRate
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// responseScore maps response minutes onto (0,1], halving roughly every
// hour.
func responseScore(minutes float64) float64 {
	return math.Exp(-minutes / 90.0)
}

// redundancy is the fraction of required capabilities covered by at least
// two independent selected resources.
func redundancy(sol model.AllocationSolution, required []model.CapabilityCode, byID map[string]model.ResourceCandidate) float64 {
	if len(required) == 0 {
		return 1
	}
	counts := make(map[model.CapabilityCode]int)
	for _, id := range sol.SelectedResources {
		r, ok := byID[id]
		if !ok {
			continue
		}
		for _, c := range r.Capabilities {
			counts[c]++
		}
	}
	doubled := 0
	for _, c := range required {
		if counts[c] >= 2 {
			doubled++
		}
	}
	return float64(doubled) / float64(len(required))
}
