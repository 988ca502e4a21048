package rules

import (
	"fmt"
	"strings"

	"github.com/pierreba/era/core/model"
)

// Condition is a tagged-union node of a rule condition tree. Exactly one of
// the branch fields (All, Any, Not) or the leaf comparison (Field/Op) must be
// set. The YAML/JSON shape mirrors this struct directly.
type Condition struct {
	// Leaf comparison.
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	// Branches.
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
	Not *Condition  `json:"not,omitempty"`
}

// Validate checks the condition tree is well-formed.
func (c Condition) Validate() error {
	branches := 0
	if len(c.All) > 0 {
		branches++
	}
	if len(c.Any) > 0 {
		branches++
	}
	if c.Not != nil {
		branches++
	}
	if c.Field != "" {
		branches++
	}
	if branches != 1 {
		return fmt.Errorf("condition must have exactly one of field/all/any/not")
	}
	if c.Field != "" && c.Op == "" {
		return fmt.Errorf("leaf condition on %q is missing op", c.Field)
	}
	for _, sub := range c.All {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	for _, sub := range c.Any {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return c.Not.Validate()
	}
	return nil
}

// Eval evaluates the condition tree against the event context. Evaluation is
// pure: unknown fields or incomparable values simply fail the leaf.
func (c Condition) Eval(ctx model.EventContext) bool {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			if !sub.Eval(ctx) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			if sub.Eval(ctx) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !c.Not.Eval(ctx)
	default:
		return evalLeaf(ctx, c.Field, c.Op, c.Value)
	}
}

func evalLeaf(ctx model.EventContext, field, op string, want any) bool {
	got, ok := ctx.Field(field)
	if !ok {
		return false
	}
	switch op {
	case "eq":
		return compareEq(got, want)
	case "ne":
		return !compareEq(got, want)
	case "gt", "gte", "lt", "lte":
		g, okG := toFloat(got)
		w, okW := toFloat(want)
		if !okG || !okW {
			return false
		}
		switch op {
		case "gt":
			return g > w
		case "gte":
			return g >= w
		case "lt":
			return g < w
		default:
			return g <= w
		}
	case "in":
		list, ok := want.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if compareEq(got, item) {
				return true
			}
		}
		return false
	case "contains":
		// Strings match on substring, lists on membership.
		if list, ok := got.([]any); ok {
			for _, item := range list {
				if compareEq(item, want) {
					return true
				}
			}
			return false
		}
		gs, okG := got.(string)
		ws := fmt.Sprintf("%v", want)
		return okG && strings.Contains(gs, ws)
	default:
		return false
	}
}

func compareEq(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
