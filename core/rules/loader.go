package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads rule definitions from a YAML or JSON file. The file must contain
// a top-level "rules" list. Any load or decode failure wraps ErrRuleLoad so
// callers can treat it as startup-fatal.
func Load(path string) ([]Rule, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return nil, fmt.Errorf("%w: unsupported rule file format %s", ErrRuleLoad, path)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleLoad, err)
	}
	var out struct {
		Rules []Rule `json:"rules"`
	}
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleLoad, err)
	}
	if len(out.Rules) == 0 {
		return nil, fmt.Errorf("%w: %s defines no rules", ErrRuleLoad, path)
	}
	return out.Rules, nil
}
