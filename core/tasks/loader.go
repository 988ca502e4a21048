package tasks

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadLibrary reads chain templates from a YAML or JSON file holding a
// top-level "templates" list. Malformed configuration is startup-fatal.
func LoadLibrary(path string) (*Library, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return nil, fmt.Errorf("unsupported template file format: %s", path)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load task templates: %w", err)
	}
	var out struct {
		Templates []ChainTemplate `json:"templates"`
	}
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode task templates: %w", err)
	}
	return NewLibrary(out.Templates)
}
