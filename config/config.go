package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/pierreba/era/core/alloc"
	"github.com/pierreba/era/core/constraint"
	"github.com/pierreba/era/core/metrics"
	"github.com/pierreba/era/core/pipeline"
	"github.com/pierreba/era/infra/audit"
	"github.com/pierreba/era/infra/intake"
	"github.com/pierreba/era/infra/notify"
)

// Config is the root configuration of the allocation service.
type Config struct {
	Rules      RulesConfig       `json:"rules"`
	Templates  TemplatesConfig   `json:"templates"`
	Catalog    CatalogConfig     `json:"catalog"`
	Alloc      alloc.Config      `json:"alloc"`
	Constraint constraint.Config `json:"constraint"`
	Lock       LockConfig        `json:"lock"`
	Pipeline   pipeline.Config   `json:"pipeline"`
	Audit      audit.Config      `json:"audit"`
	Metrics    metrics.Config    `json:"metrics"`
	Notify     NotifyConfig      `json:"notify"`
	Intake     IntakeConfig      `json:"intake"`
}

// IntakeConfig enables the MQTT event intake for the long-running service.
type IntakeConfig struct {
	Enabled bool          `json:"enabled"`
	MQTT    intake.Config `json:"mqtt"`
}

// RulesConfig points at the allocation rule set.
type RulesConfig struct {
	Path string `json:"path"`
}

// TemplatesConfig points at the task-chain template library.
type TemplatesConfig struct {
	Path string `json:"path"`
}

// CatalogConfig selects the resource catalog backend.
type CatalogConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the database location for the sqlite backend.
	Path string `json:"path"`
	// ResourcesPath optionally seeds the catalog from a YAML/JSON file.
	ResourcesPath string `json:"resources_path"`
}

// SetDefaults applies sane defaults.
func (c *CatalogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks mandatory fields.
func (c CatalogConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("catalog: sqlite backend requires a path")
		}
	default:
		return fmt.Errorf("catalog: unknown backend %s", c.Backend)
	}
	return nil
}

// LockConfig parameterizes the resource lock manager.
type LockConfig struct {
	// TTLSeconds is the default lease duration of acquired locks.
	TTLSeconds int `json:"ttl_seconds"`
}

// SetDefaults applies sane defaults.
func (c *LockConfig) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 1800
	}
}

// Validate checks mandatory fields.
func (c LockConfig) Validate() error {
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("lock: ttl_seconds must be positive")
	}
	return nil
}

// NotifyConfig enables the outbound plan push.
type NotifyConfig struct {
	Enabled bool          `json:"enabled"`
	MQTT    notify.Config `json:"mqtt"`
}

// Load reads the configuration file, applies ERA_* environment overrides,
// fills defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides: ERA_CATALOG__BACKEND=sqlite
	if err := k.Load(env.Provider("ERA_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "era_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Catalog.SetDefaults()
	cfg.Alloc.SetDefaults()
	cfg.Constraint.SetDefaults()
	cfg.Lock.SetDefaults()
	cfg.Pipeline.SetDefaults()
	cfg.Audit.SetDefaults()
	if cfg.Rules.Path == "" {
		return nil, fmt.Errorf("rules.path is required")
	}
	if cfg.Templates.Path == "" {
		return nil, fmt.Errorf("templates.path is required")
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Alloc.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Constraint.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Lock.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
