package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type modelFile struct {
	Models []Model `yaml:"models"`
}

// LoadFile reads model definitions from a YAML file. Loaded models carry
// no version; the registry assigns one on publish.
func LoadFile(path string) ([]Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var f modelFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	for i := range f.Models {
		f.Models[i] = f.Models[i].normalized()
		if err := f.Models[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Models, nil
}
