package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pierreba/era/core/model"
)

// ErrRuleLoad indicates the rule source was unavailable or empty. An empty
// rule set would silently under-provision resources, so loading must fail
// instead of degrading.
var ErrRuleLoad = errors.New("rule source unavailable or empty")

// Action is the payload applied when a rule matches.
type Action struct {
	TaskTypes    []string               `json:"task_types"`
	Capabilities []model.CapabilityCode `json:"capabilities"`
	Priority     string                 `json:"priority"`
}

// Rule couples a condition tree with the requirements it produces.
type Rule struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Weight float64   `json:"weight"`
	When   Condition `json:"when"`
	Action Action    `json:"action"`
}

// Validate checks the rule definition.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if len(r.Action.TaskTypes) == 0 {
		return fmt.Errorf("rule %s: action has no task types", r.ID)
	}
	if _, err := model.ParsePriority(r.Action.Priority); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return r.When.Validate()
}

// MatchedRule is a rule that fired for an event, with its derived
// requirements.
type MatchedRule struct {
	Rule         Rule
	Requirements []model.Requirement
}

// Engine evaluates a fixed rule set against event contexts. The rule set is
// immutable after construction.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine from loaded rules. An empty set is a fatal
// configuration error, never a degraded mode.
func NewEngine(loaded []Rule) (*Engine, error) {
	if len(loaded) == 0 {
		return nil, ErrRuleLoad
	}
	for _, r := range loaded {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRuleLoad, err)
		}
	}
	rs := make([]Rule, len(loaded))
	copy(rs, loaded)
	return &Engine{rules: rs}, nil
}

// Evaluate tests every rule condition against the context and returns the
// matches sorted descending by weight. Ties keep definition order. The call
// has no side effects.
func (e *Engine) Evaluate(ctx model.EventContext) []MatchedRule {
	var matches []MatchedRule
	for _, r := range e.rules {
		if !r.When.Eval(ctx) {
			continue
		}
		matches = append(matches, MatchedRule{Rule: r, Requirements: r.requirements()})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Rule.Weight > matches[j].Rule.Weight
	})
	return matches
}

// Requirements flattens the requirements of all matched rules in match order.
func Requirements(matches []MatchedRule) []model.Requirement {
	var reqs []model.Requirement
	for _, m := range matches {
		reqs = append(reqs, m.Requirements...)
	}
	return reqs
}

func (r Rule) requirements() []model.Requirement {
	prio, err := model.ParsePriority(r.Action.Priority)
	if err != nil {
		prio = model.PriorityMedium
	}
	reqs := make([]model.Requirement, 0, len(r.Action.TaskTypes))
	for _, tt := range r.Action.TaskTypes {
		caps := make([]model.CapabilityCode, len(r.Action.Capabilities))
		copy(caps, r.Action.Capabilities)
		reqs = append(reqs, model.Requirement{
			TaskType:             tt,
			Priority:             prio,
			RequiredCapabilities: caps,
		})
	}
	return reqs
}
