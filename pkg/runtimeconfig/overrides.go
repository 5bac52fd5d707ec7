package runtimeconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OverridesFileName is the optional operator-edited override file
// described in the runtime directory layout. yaml.v3 parses it rather
// than encoding/json: YAML is a superset of JSON so a strict-JSON file
// still loads, but an operator hand-editing it can add comments and
// skip quoting keys. The machine-written state files (instance
// records, queue states, locks, run summaries) stay on encoding/json
// because their wire format is fixed by this package's callers.
const OverridesFileName = "coordinator.json"

// Overrides mirrors the subset of Config an operator may pin in
// coordinator.json. Apply uses TotalMaxLLM when it is non-zero;
// Profile is parsed but Apply does not use it.
type Overrides struct {
	Profile     Profile `yaml:"profile,omitempty"`
	TotalMaxLLM int     `yaml:"totalMaxLlm,omitempty"`
}

// LoadOverridesFile reads runtimeRoot/coordinator.json if present. A
// missing file is not an error: the zero Overrides applies nothing.
// An unreadable or malformed file is ignored the same way: the zero
// Overrides is returned with a nil error, and nothing is logged.
func LoadOverridesFile(runtimeRoot string) (Overrides, error) {
	path := filepath.Join(runtimeRoot, OverridesFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Overrides{}, nil
		}
		return Overrides{}, nil
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, nil
	}
	return o, nil
}

// Apply layers non-zero override fields onto cfg, returning the result.
func (o Overrides) Apply(cfg Config) Config {
	if o.TotalMaxLLM > 0 {
		cfg.TotalMaxLLM = o.TotalMaxLLM
	}
	return cfg
}
