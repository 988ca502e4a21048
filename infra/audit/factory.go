package audit

import (
	"fmt"

	coreaudit "github.com/pierreba/era/core/audit"
)

// Config selects and parameterizes the audit backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills unset fields with sensible values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// New creates the audit store selected by cfg.Backend.
func New(cfg Config) (coreaudit.Store, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case "none":
		return coreaudit.NopStore{}, nil
	case "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit: jsonl backend requires a path")
		}
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit: sqlite backend requires a path")
		}
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("audit: unknown backend %q", cfg.Backend)
	}
}
