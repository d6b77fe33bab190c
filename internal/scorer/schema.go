package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadSchema reads a field schema from a YAML file. Omitted fields keep their
// default kind; the file only needs to list overrides, but a full schema is
// also accepted.
func LoadSchema(path string) ([]FieldSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read schema %s", path)
	}

	// The YAML has a top-level "schema" key.
	var wrapper struct {
		Schema []FieldSpec `yaml:"schema"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "scorer: parse schema")
	}

	specs := mergeWithDefaults(wrapper.Schema)
	if err := ValidateSchema(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// mergeWithDefaults overlays file-provided specs onto the default schema,
// preserving the default report order.
func mergeWithDefaults(overrides []FieldSpec) []FieldSpec {
	byName := make(map[string]FieldSpec, len(overrides))
	for _, spec := range overrides {
		byName[spec.Name] = spec
	}

	specs := DefaultSchema()
	for i, spec := range specs {
		if o, ok := byName[spec.Name]; ok {
			specs[i] = o
			delete(byName, spec.Name)
		}
	}
	// Unknown names are kept so validation can report them.
	for _, spec := range overrides {
		if _, pending := byName[spec.Name]; pending {
			specs = append(specs, spec)
		}
	}
	return specs
}
