package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sample = `rules:
  path: "configs/rules.yaml"
templates:
  path: "configs/templates.yaml"
catalog:
  backend: "memory"
  resources_path: "configs/resources.yaml"
alloc:
  coverage_threshold: 0.8
  multi_objective_threshold: 10
  population: 40
constraint:
  max_risk: 0.10
  review_risk_threshold: 0.08
lock:
  ttl_seconds: 900
pipeline:
  default_max_results: 100
  fallback_greedy: true
audit:
  backend: "jsonl"
  path: "runs.jsonl"
metrics:
  sinks:
    - type: "nop"
notify:
  enabled: false
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Catalog.Backend != "memory" {
		t.Fatalf("catalog backend = %s", cfg.Catalog.Backend)
	}
	if cfg.Lock.TTLSeconds != 900 {
		t.Fatalf("lock ttl = %d", cfg.Lock.TTLSeconds)
	}
	if !cfg.Pipeline.FallbackGreedy {
		t.Fatal("fallback_greedy not parsed")
	}
	if cfg.Pipeline.DefaultMaxResults != 100 {
		t.Fatalf("default_max_results = %d", cfg.Pipeline.DefaultMaxResults)
	}
	if len(cfg.Metrics.Sinks) != 1 || cfg.Metrics.Sinks[0].Type != "nop" {
		t.Fatalf("metrics sinks = %+v", cfg.Metrics.Sinks)
	}
	if cfg.Audit.Backend != "jsonl" || cfg.Audit.MaxSizeMB == 0 {
		t.Fatalf("audit config = %+v", cfg.Audit)
	}
	// Defaults fill the sections the file leaves out.
	if cfg.Alloc.Generations == 0 || cfg.Alloc.TimeoutSeconds == 0 {
		t.Fatalf("alloc defaults missing: %+v", cfg.Alloc)
	}
	if cfg.Constraint.Weights.Sum() < 0.99 {
		t.Fatalf("constraint weights not defaulted: %+v", cfg.Constraint.Weights)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ERA_LOCK__TTL_SECONDS", "120")
	t.Setenv("ERA_AUDIT__BACKEND", "none")
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lock.TTLSeconds != 120 {
		t.Fatalf("env override ignored, ttl = %d", cfg.Lock.TTLSeconds)
	}
	if cfg.Audit.Backend != "none" {
		t.Fatalf("env override ignored, audit backend = %s", cfg.Audit.Backend)
	}
}

func TestLoad_MissingRulesPath(t *testing.T) {
	data := `templates:
  path: "configs/templates.yaml"
`
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Fatal("expected error for missing rules path")
	}
}

func TestLoad_UnknownCatalogBackend(t *testing.T) {
	data := `rules:
  path: "r.yaml"
templates:
  path: "t.yaml"
catalog:
  backend: "redis"
`
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Fatal("expected error for unknown catalog backend")
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
