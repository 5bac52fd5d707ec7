package ratelimit

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Presets is a human-edited table of static starting concurrency per
// (provider, model), the "static preset" §4.6 says every learned limit
// starts from. Loaded from YAML rather than encoding/json: operators
// hand-tune this file, and YAML lets them comment why a given model
// got a particular starting value.
type Presets struct {
	Default int            `yaml:"default"`
	Models  map[string]int `yaml:"models"`
}

const defaultPreset = 4

// LoadPresetsFile reads a presets YAML file of the form:
//
//	default: 4
//	models:
//	  anthropic/claude-x: 8
//	  openai/gpt-4: 6
//
// A missing or malformed file yields an empty table backed by
// defaultPreset; preset lookups never fail a caller.
func LoadPresetsFile(path string) Presets {
	data, err := os.ReadFile(path)
	if err != nil {
		return Presets{Default: defaultPreset}
	}
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Presets{Default: defaultPreset}
	}
	if p.Default <= 0 {
		p.Default = defaultPreset
	}
	return p
}

// Lookup returns the static starting concurrency for (provider, model),
// falling back to the table's default when no entry matches.
func (p Presets) Lookup(provider, model string) int {
	if p.Models != nil {
		key := strings.ToLower(provider) + "/" + strings.ToLower(model)
		if v, ok := p.Models[key]; ok && v > 0 {
			return v
		}
	}
	if p.Default > 0 {
		return p.Default
	}
	return defaultPreset
}
