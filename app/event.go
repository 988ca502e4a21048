package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/pierreba/era/core/model"
)

// LoadEvent reads an event context from a YAML or JSON file.
func LoadEvent(path string) (model.EventContext, error) {
	var ev model.EventContext
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return ev, fmt.Errorf("unsupported event file format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return ev, err
	}
	if err := k.UnmarshalWithConf("", &ev, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return ev, err
	}
	if ev.ID == "" {
		return ev, fmt.Errorf("event file %s is missing an id", path)
	}
	return ev, nil
}
