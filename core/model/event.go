package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority classifies how urgent a requirement is.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a textual priority into its typed value.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow, nil
	case "medium", "":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityLow, fmt.Errorf("unknown priority %q", s)
	}
}

// CapabilityCode identifies a skill or equipment a resource can provide,
// e.g. "water_rescue" or "medical_triage".
type CapabilityCode string

// SceneCode identifies a disaster scene pattern used to select task-chain
// templates, e.g. "flood_urban" or "building_collapse".
type SceneCode string

// EventContext is the structured description of a disaster event. It is the
// immutable input of an allocation run; natural-language parsing happens
// upstream.
type EventContext struct {
	ID                string         `json:"id"`
	DisasterType      string         `json:"disaster_type"`
	SceneCodes        []SceneCode    `json:"scene_codes"`
	Severity          int            `json:"severity"` // 1 (minor) to 5 (catastrophic)
	EstimatedAffected int            `json:"estimated_affected"`
	Area              string         `json:"area"`
	OccurredAt        time.Time      `json:"occurred_at"`
	Attributes        map[string]any `json:"attributes,omitempty"`
}

// Field resolves a named field for rule-condition evaluation. Well-known
// fields are looked up directly, anything else falls back to Attributes.
func (e EventContext) Field(name string) (any, bool) {
	switch name {
	case "disaster_type":
		return e.DisasterType, true
	case "severity":
		return e.Severity, true
	case "estimated_affected":
		return e.EstimatedAffected, true
	case "area":
		return e.Area, true
	case "scene_codes":
		codes := make([]any, len(e.SceneCodes))
		for i, c := range e.SceneCodes {
			codes[i] = string(c)
		}
		return codes, true
	}
	if e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[name]
	return v, ok
}

// Requirement is a unit of demand emitted by the rule engine: a task type
// with the capabilities needed to carry it out.
type Requirement struct {
	TaskType             string           `json:"task_type"`
	Priority             Priority         `json:"priority"`
	RequiredCapabilities []CapabilityCode `json:"required_capabilities"`
}

// CapabilitySet returns the required capabilities as a set.
func (r Requirement) CapabilitySet() map[CapabilityCode]struct{} {
	set := make(map[CapabilityCode]struct{}, len(r.RequiredCapabilities))
	for _, c := range r.RequiredCapabilities {
		set[c] = struct{}{}
	}
	return set
}

// UnionCapabilities collects the distinct capabilities required across all
// requirements, preserving first-seen order.
func UnionCapabilities(reqs []Requirement) []CapabilityCode {
	seen := make(map[CapabilityCode]struct{})
	var out []CapabilityCode
	for _, r := range reqs {
		for _, c := range r.RequiredCapabilities {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
