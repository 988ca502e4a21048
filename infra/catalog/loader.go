package catalog

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

// LoadResources reads resource candidates from a YAML or JSON file. The file
// holds a top-level "resources" list.
func LoadResources(path string) ([]model.ResourceCandidate, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported resource file format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	var resources []model.ResourceCandidate
	if err := k.UnmarshalWithConf("resources", &resources, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("resource file %s holds no resources", path)
	}
	for i, r := range resources {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
	}
	return resources, nil
}
