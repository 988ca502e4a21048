package tasks

import (
	"fmt"

	"github.com/pierreba/era/core/model"
)

// TaskSpec describes one task inside a chain template.
type TaskSpec struct {
	Code              string   `json:"code"`
	DependsOn         []string `json:"depends_on,omitempty"`
	Strict            bool     `json:"strict"`
	GoldenHourMinutes int      `json:"golden_hour_minutes,omitempty"`
}

// ChainTemplate maps a scene code to a task set, its dependency map and
// parallel-group hints. Templates are configuration data, loaded once at
// startup and immutable afterwards.
type ChainTemplate struct {
	Scene         model.SceneCode `json:"scene"`
	Tasks         []TaskSpec      `json:"tasks"`
	ParallelHints [][]string      `json:"parallel_hints,omitempty"`
}

// Validate checks internal consistency of the template.
func (t ChainTemplate) Validate() error {
	if t.Scene == "" {
		return fmt.Errorf("template scene code is required")
	}
	if len(t.Tasks) == 0 {
		return fmt.Errorf("template %s has no tasks", t.Scene)
	}
	seen := make(map[string]struct{}, len(t.Tasks))
	for _, task := range t.Tasks {
		if task.Code == "" {
			return fmt.Errorf("template %s: task code is required", t.Scene)
		}
		if _, dup := seen[task.Code]; dup {
			return fmt.Errorf("template %s: duplicate task %s", t.Scene, task.Code)
		}
		seen[task.Code] = struct{}{}
	}
	return nil
}

// Library holds the loaded chain templates keyed by scene code, preserving
// definition order for deterministic merges.
type Library struct {
	templates map[model.SceneCode]ChainTemplate
	order     []model.SceneCode
}

// NewLibrary builds a library from templates. Missing or malformed template
// configuration is a startup-fatal error.
func NewLibrary(templates []ChainTemplate) (*Library, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("task template library is empty")
	}
	lib := &Library{templates: make(map[model.SceneCode]ChainTemplate, len(templates))}
	for _, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			return nil, err
		}
		if _, dup := lib.templates[tpl.Scene]; dup {
			return nil, fmt.Errorf("duplicate template for scene %s", tpl.Scene)
		}
		lib.templates[tpl.Scene] = tpl
		lib.order = append(lib.order, tpl.Scene)
	}
	return lib, nil
}

// Template returns the chain template for a scene code.
func (l *Library) Template(scene model.SceneCode) (ChainTemplate, bool) {
	tpl, ok := l.templates[scene]
	return tpl, ok
}

// Scenes lists the known scene codes in definition order.
func (l *Library) Scenes() []model.SceneCode {
	out := make([]model.SceneCode, len(l.order))
	copy(out, l.order)
	return out
}
