package rules

import (
	"errors"
	"testing"

	"github.com/pierreba/era/core/model"
)

func floodRule(id string, weight float64) Rule {
	return Rule{
		ID:     id,
		Name:   "flood response",
		Weight: weight,
		When: Condition{All: []Condition{
			{Field: "disaster_type", Op: "eq", Value: "flood"},
			{Field: "severity", Op: "gte", Value: 3},
		}},
		Action: Action{
			TaskTypes:    []string{"evacuation"},
			Capabilities: []model.CapabilityCode{"water_rescue"},
			Priority:     "high",
		},
	}
}

func TestEngine_EmptyRuleSetFailsLoad(t *testing.T) {
	if _, err := NewEngine(nil); !errors.Is(err, ErrRuleLoad) {
		t.Fatalf("expected ErrRuleLoad, got %v", err)
	}
}

func TestEngine_InvalidRuleFailsLoad(t *testing.T) {
	bad := floodRule("r1", 10)
	bad.Action.TaskTypes = nil
	if _, err := NewEngine([]Rule{bad}); !errors.Is(err, ErrRuleLoad) {
		t.Fatalf("expected ErrRuleLoad, got %v", err)
	}
}

func TestEngine_EvaluateMatchesAndSortsByWeight(t *testing.T) {
	light := floodRule("light", 10)
	heavy := floodRule("heavy", 90)
	heavy.When = Condition{Field: "severity", Op: "gte", Value: 4}
	miss := floodRule("miss", 50)
	miss.When = Condition{Field: "disaster_type", Op: "eq", Value: "earthquake"}

	eng, err := NewEngine([]Rule{light, miss, heavy})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := model.EventContext{DisasterType: "flood", Severity: 4}
	matches := eng.Evaluate(ctx)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Rule.ID != "heavy" || matches[1].Rule.ID != "light" {
		t.Fatalf("matches not sorted by weight: %s, %s", matches[0].Rule.ID, matches[1].Rule.ID)
	}
	reqs := Requirements(matches)
	if len(reqs) != 2 || reqs[0].TaskType != "evacuation" {
		t.Fatalf("unexpected requirements %+v", reqs)
	}
	if reqs[0].Priority != model.PriorityHigh {
		t.Fatalf("expected high priority, got %s", reqs[0].Priority)
	}
}

func TestEngine_EvaluateIsPure(t *testing.T) {
	eng, err := NewEngine([]Rule{floodRule("r", 1)})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx := model.EventContext{DisasterType: "flood", Severity: 5}
	first := eng.Evaluate(ctx)
	second := eng.Evaluate(ctx)
	if len(first) != len(second) {
		t.Fatalf("evaluation not deterministic")
	}
}

func TestCondition_Operators(t *testing.T) {
	ctx := model.EventContext{
		DisasterType: "flood",
		SceneCodes:   []model.SceneCode{"flood_urban"},
		Severity:     3,
		Area:         "riverside district",
		Attributes:   map[string]any{"night": true},
	}
	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq string", Condition{Field: "disaster_type", Op: "eq", Value: "flood"}, true},
		{"ne", Condition{Field: "disaster_type", Op: "ne", Value: "fire"}, true},
		{"gt false", Condition{Field: "severity", Op: "gt", Value: 3}, false},
		{"lte", Condition{Field: "severity", Op: "lte", Value: 3}, true},
		{"in", Condition{Field: "disaster_type", Op: "in", Value: []any{"fire", "flood"}}, true},
		{"contains", Condition{Field: "area", Op: "contains", Value: "riverside"}, true},
		{"contains list", Condition{Field: "scene_codes", Op: "contains", Value: "flood_urban"}, true},
		{"contains list miss", Condition{Field: "scene_codes", Op: "contains", Value: "urban_fire"}, false},
		{"attribute eq", Condition{Field: "night", Op: "eq", Value: true}, true},
		{"unknown field", Condition{Field: "missing", Op: "eq", Value: 1}, false},
		{"not", Condition{Not: &Condition{Field: "severity", Op: "gte", Value: 5}}, true},
		{"any", Condition{Any: []Condition{
			{Field: "severity", Op: "gte", Value: 5},
			{Field: "disaster_type", Op: "eq", Value: "flood"},
		}}, true},
	}
	for _, tc := range cases {
		if got := tc.cond.Eval(ctx); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCondition_ValidateRejectsAmbiguousNode(t *testing.T) {
	c := Condition{Field: "severity", Op: "gte", Value: 1, All: []Condition{{Field: "a", Op: "eq", Value: 1}}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for ambiguous node")
	}
}
