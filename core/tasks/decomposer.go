package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pierreba/era/core/model"
)

// CyclicDependencyError reports a dependency cycle in the merged task graph.
// Cycles are never broken heuristically; decomposition fails instead.
type CyclicDependencyError struct {
	Remaining []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic task dependencies involving [%s]", strings.Join(e.Remaining, ", "))
}

// ErrInvalidParallelGroup indicates a declared parallel group contains a
// dependency edge between its members.
var ErrInvalidParallelGroup = errors.New("parallel group members depend on each other")

// ErrUnknownScene indicates a scene code has no chain template.
var ErrUnknownScene = errors.New("no task template for scene")

// Result is the output of a decomposition: a topologically ordered sequence,
// validated parallel groups and any dependency violations.
type Result struct {
	Sequence       []model.TaskNode
	ParallelGroups [][]string
	Violations     []model.Violation
}

// Decomposer expands requirements into an ordered task sequence using the
// template library.
type Decomposer struct {
	lib *Library
}

// NewDecomposer returns a decomposer over the given library.
func NewDecomposer(lib *Library) *Decomposer {
	return &Decomposer{lib: lib}
}

// mergedGraph is the union of the selected templates.
type mergedGraph struct {
	nodes map[string]*model.TaskNode
	order []string // template insertion order, the deterministic tie-break
	hints [][]string
}

// Decompose merges the templates of all scene codes, topologically sorts the
// merged graph and validates dependencies and parallel-group hints. Compound
// disasters union their task sets; conflicting dependency lists for the same
// task are unioned, never trimmed.
func (d *Decomposer) Decompose(reqs []model.Requirement, scenes []model.SceneCode) (Result, error) {
	graph, err := d.merge(scenes)
	if err != nil {
		return Result{}, err
	}

	sequence, err := topoSort(graph)
	if err != nil {
		return Result{}, err
	}

	res := Result{Sequence: sequence}
	res.Violations = dependencyViolations(graph, reqs, sequence)

	groups, err := validateParallelHints(graph)
	if err != nil {
		return Result{}, err
	}
	res.ParallelGroups = groups
	return res, nil
}

func (d *Decomposer) merge(scenes []model.SceneCode) (*mergedGraph, error) {
	graph := &mergedGraph{nodes: make(map[string]*model.TaskNode)}
	for _, scene := range scenes {
		tpl, ok := d.lib.Template(scene)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScene, scene)
		}
		for _, spec := range tpl.Tasks {
			node, exists := graph.nodes[spec.Code]
			if !exists {
				node = &model.TaskNode{
					Code:              spec.Code,
					Strict:            spec.Strict,
					GoldenHourMinutes: spec.GoldenHourMinutes,
				}
				graph.nodes[spec.Code] = node
				graph.order = append(graph.order, spec.Code)
			}
			node.DependsOn = unionDeps(node.DependsOn, spec.DependsOn)
			node.Strict = node.Strict || spec.Strict
			if spec.GoldenHourMinutes > 0 &&
				(node.GoldenHourMinutes == 0 || spec.GoldenHourMinutes < node.GoldenHourMinutes) {
				node.GoldenHourMinutes = spec.GoldenHourMinutes
			}
		}
		graph.hints = append(graph.hints, tpl.ParallelHints...)
	}
	if len(graph.order) == 0 {
		return nil, fmt.Errorf("%w: no scene codes provided", ErrUnknownScene)
	}
	return graph, nil
}

func unionDeps(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, dep := range existing {
		seen[dep] = struct{}{}
	}
	for _, dep := range extra {
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		existing = append(existing, dep)
	}
	return existing
}

// topoSort runs Kahn's algorithm over the merged graph. Edges to tasks
// outside the graph are ignored here; they surface as dependency violations.
// Ready nodes are drained in template insertion order so identical inputs
// always produce identical sequences.
func topoSort(graph *mergedGraph) ([]model.TaskNode, error) {
	indexOf := make(map[string]int, len(graph.order))
	for i, code := range graph.order {
		indexOf[code] = i
	}

	indegree := make(map[string]int, len(graph.order))
	dependents := make(map[string][]string)
	for _, code := range graph.order {
		node := graph.nodes[code]
		for _, dep := range node.DependsOn {
			if _, present := graph.nodes[dep]; !present {
				continue
			}
			indegree[code]++
			dependents[dep] = append(dependents[dep], code)
		}
	}

	var ready []string
	for _, code := range graph.order {
		if indegree[code] == 0 {
			ready = append(ready, code)
		}
	}

	sequence := make([]model.TaskNode, 0, len(graph.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return indexOf[ready[i]] < indexOf[ready[j]] })
		code := ready[0]
		ready = ready[1:]
		sequence = append(sequence, *graph.nodes[code])
		for _, next := range dependents[code] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(sequence) != len(graph.order) {
		placed := make(map[string]struct{}, len(sequence))
		for _, node := range sequence {
			placed[node.Code] = struct{}{}
		}
		var remaining []string
		for _, code := range graph.order {
			if _, ok := placed[code]; !ok {
				remaining = append(remaining, code)
			}
		}
		return nil, &CyclicDependencyError{Remaining: remaining}
	}
	return sequence, nil
}

// dependencyViolations flags requirement task types missing from the
// sequence and dependency edges pointing outside the graph. Strict edges
// produce error violations, non-strict edges warnings.
func dependencyViolations(graph *mergedGraph, reqs []model.Requirement, sequence []model.TaskNode) []model.Violation {
	inSequence := make(map[string]struct{}, len(sequence))
	for _, node := range sequence {
		inSequence[node.Code] = struct{}{}
	}

	var violations []model.Violation
	seenTaskType := make(map[string]struct{})
	for _, req := range reqs {
		if _, dup := seenTaskType[req.TaskType]; dup {
			continue
		}
		seenTaskType[req.TaskType] = struct{}{}
		if _, ok := inSequence[req.TaskType]; ok {
			continue
		}
		violations = append(violations, model.Violation{
			Code:     "missing_required_task",
			Severity: model.SeverityError,
			Message:  fmt.Sprintf("required task %s is absent from the planned sequence", req.TaskType),
			TaskCode: req.TaskType,
		})
	}

	for _, code := range graph.order {
		node := graph.nodes[code]
		for _, dep := range node.DependsOn {
			if _, present := graph.nodes[dep]; present {
				continue
			}
			severity := model.SeverityWarning
			violationCode := "unsatisfied_dependency"
			if node.Strict {
				severity = model.SeverityError
				violationCode = "unsatisfied_strict_dependency"
			}
			violations = append(violations, model.Violation{
				Code:     violationCode,
				Severity: severity,
				Message:  fmt.Sprintf("task %s depends on %s which is not planned", code, dep),
				TaskCode: code,
			})
		}
	}
	return violations
}

// validateParallelHints keeps hint groups whose members are all planned and
// rejects groups with an internal dependency edge.
func validateParallelHints(graph *mergedGraph) ([][]string, error) {
	var groups [][]string
	for _, hint := range graph.hints {
		var members []string
		for _, code := range hint {
			if _, ok := graph.nodes[code]; ok {
				members = append(members, code)
			}
		}
		if len(members) < 2 {
			continue
		}
		inGroup := make(map[string]struct{}, len(members))
		for _, code := range members {
			inGroup[code] = struct{}{}
		}
		for _, code := range members {
			for _, dep := range graph.nodes[code].DependsOn {
				if _, ok := inGroup[dep]; ok {
					return nil, fmt.Errorf("%w: %s depends on %s", ErrInvalidParallelGroup, code, dep)
				}
			}
		}
		groups = append(groups, members)
	}
	return groups, nil
}
