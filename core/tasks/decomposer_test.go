package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pierreba/era/core/model"
)

func floodTemplate() ChainTemplate {
	return ChainTemplate{
		Scene: "flood_urban",
		Tasks: []TaskSpec{
			{Code: "reconnaissance"},
			{Code: "evacuation", DependsOn: []string{"reconnaissance"}, Strict: true, GoldenHourMinutes: 120},
			{Code: "medical_triage", DependsOn: []string{"reconnaissance"}},
			{Code: "shelter_setup", DependsOn: []string{"evacuation"}},
		},
		ParallelHints: [][]string{{"evacuation", "medical_triage"}},
	}
}

func collapseTemplate() ChainTemplate {
	return ChainTemplate{
		Scene: "building_collapse",
		Tasks: []TaskSpec{
			{Code: "reconnaissance"},
			{Code: "structural_shoring", DependsOn: []string{"reconnaissance"}, Strict: true},
			{Code: "evacuation", DependsOn: []string{"structural_shoring"}, Strict: true},
			{Code: "medical_triage", DependsOn: []string{"reconnaissance"}},
		},
	}
}

func mustLibrary(t *testing.T, tpls ...ChainTemplate) *Library {
	t.Helper()
	lib, err := NewLibrary(tpls)
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	return lib
}

func indexOf(seq []model.TaskNode, code string) int {
	for i, n := range seq {
		if n.Code == code {
			return i
		}
	}
	return -1
}

func TestDecompose_TopologicalValidity(t *testing.T) {
	d := NewDecomposer(mustLibrary(t, floodTemplate()))
	res, err := d.Decompose(nil, []model.SceneCode{"flood_urban"})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(res.Sequence) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(res.Sequence))
	}
	for _, node := range res.Sequence {
		for _, dep := range node.DependsOn {
			if indexOf(res.Sequence, dep) >= indexOf(res.Sequence, node.Code) {
				t.Errorf("dependency %s must precede %s", dep, node.Code)
			}
		}
	}
}

func TestDecompose_CompoundDisasterUnionsDependencies(t *testing.T) {
	d := NewDecomposer(mustLibrary(t, floodTemplate(), collapseTemplate()))
	res, err := d.Decompose(nil, []model.SceneCode{"flood_urban", "building_collapse"})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	// evacuation inherits dependency edges from both templates.
	evac := res.Sequence[indexOf(res.Sequence, "evacuation")]
	deps := map[string]bool{}
	for _, dep := range evac.DependsOn {
		deps[dep] = true
	}
	if !deps["reconnaissance"] || !deps["structural_shoring"] {
		t.Fatalf("merged evacuation deps incomplete: %v", evac.DependsOn)
	}
	if indexOf(res.Sequence, "structural_shoring") >= indexOf(res.Sequence, "evacuation") {
		t.Fatalf("shoring must precede evacuation in merged graph")
	}
}

func TestDecompose_CycleIsFatal(t *testing.T) {
	cyclic := ChainTemplate{
		Scene: "cyclic",
		Tasks: []TaskSpec{
			{Code: "a", DependsOn: []string{"c"}},
			{Code: "b", DependsOn: []string{"a"}},
			{Code: "c", DependsOn: []string{"b"}},
		},
	}
	d := NewDecomposer(mustLibrary(t, cyclic))
	_, err := d.Decompose(nil, []model.SceneCode{"cyclic"})
	var cycleErr *CyclicDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CyclicDependencyError, got %v", err)
	}
	if len(cycleErr.Remaining) != 3 {
		t.Fatalf("expected all 3 nodes in cycle report, got %v", cycleErr.Remaining)
	}
}

func TestDecompose_Deterministic(t *testing.T) {
	d := NewDecomposer(mustLibrary(t, floodTemplate(), collapseTemplate()))
	reqs := []model.Requirement{{TaskType: "evacuation"}}
	scenes := []model.SceneCode{"flood_urban", "building_collapse"}

	first, err := d.Decompose(reqs, scenes)
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := d.Decompose(reqs, scenes)
		if err != nil {
			t.Fatalf("decompose: %v", err)
		}
		if !reflect.DeepEqual(first.Sequence, again.Sequence) {
			t.Fatalf("sequence not deterministic")
		}
		if !reflect.DeepEqual(first.ParallelGroups, again.ParallelGroups) {
			t.Fatalf("parallel groups not deterministic")
		}
	}
}

func TestDecompose_StrictAndNonStrictViolations(t *testing.T) {
	tpl := ChainTemplate{
		Scene: "partial",
		Tasks: []TaskSpec{
			{Code: "rescue", DependsOn: []string{"unplanned_recon"}, Strict: true},
			{Code: "supply_drop", DependsOn: []string{"air_corridor"}},
		},
	}
	d := NewDecomposer(mustLibrary(t, tpl))
	reqs := []model.Requirement{{TaskType: "rescue"}, {TaskType: "field_hospital"}}
	res, err := d.Decompose(reqs, []model.SceneCode{"partial"})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	var strictErrs, warnings, missing int
	for _, v := range res.Violations {
		switch v.Code {
		case "unsatisfied_strict_dependency":
			strictErrs++
		case "unsatisfied_dependency":
			warnings++
		case "missing_required_task":
			missing++
		}
	}
	if strictErrs != 1 || warnings != 1 || missing != 1 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestDecompose_InvalidParallelGroup(t *testing.T) {
	tpl := floodTemplate()
	tpl.ParallelHints = [][]string{{"reconnaissance", "evacuation"}}
	d := NewDecomposer(mustLibrary(t, tpl))
	_, err := d.Decompose(nil, []model.SceneCode{"flood_urban"})
	if !errors.Is(err, ErrInvalidParallelGroup) {
		t.Fatalf("expected ErrInvalidParallelGroup, got %v", err)
	}
}

func TestDecompose_ValidParallelGroupKept(t *testing.T) {
	d := NewDecomposer(mustLibrary(t, floodTemplate()))
	res, err := d.Decompose(nil, []model.SceneCode{"flood_urban"})
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(res.ParallelGroups) != 1 || len(res.ParallelGroups[0]) != 2 {
		t.Fatalf("expected one parallel group of two, got %v", res.ParallelGroups)
	}
}

func TestDecompose_UnknownScene(t *testing.T) {
	d := NewDecomposer(mustLibrary(t, floodTemplate()))
	if _, err := d.Decompose(nil, []model.SceneCode{"volcano"}); !errors.Is(err, ErrUnknownScene) {
		t.Fatalf("expected ErrUnknownScene, got %v", err)
	}
}

func TestLoadLibrary_YAML(t *testing.T) {
	data := `templates:
  - scene: flood_urban
    tasks:
      - code: reconnaissance
      - code: evacuation
        depends_on: [reconnaissance]
        strict: true
        golden_hour_minutes: 90
    parallel_hints:
      - [evacuation]
`
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lib, err := LoadLibrary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tpl, ok := lib.Template("flood_urban")
	if !ok {
		t.Fatalf("template missing after load")
	}
	if tpl.Tasks[1].GoldenHourMinutes != 90 || !tpl.Tasks[1].Strict {
		t.Fatalf("template fields not decoded: %+v", tpl.Tasks[1])
	}
}

func TestLoadLibrary_EmptyIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte("templates: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadLibrary(path); err == nil {
		t.Fatalf("expected error for empty template library")
	}
}
