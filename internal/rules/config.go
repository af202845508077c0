// Package rules implements Component G (§4.G): resolving configured
// rule strings into stringtable byte offsets, and classifying an
// entity's tag set into a zoom band, layer set, and included-keys
// policy.
package rules

import (
	"gopkg.in/yaml.v3"

	"github.com/pkg/errors"
)

// Config is the decode boundary for the rule document (§6
// "Configuration (rules)"). Parsing it is the external configuration
// loader the core spec excludes; everything it feeds (string-offset
// resolution, band classification) is core Component G.
type Config struct {
	Render RenderConfig          `yaml:"render"`
	Layers []Layer               `yaml:"-"`
	Rules  map[string]RuleConfig `yaml:"rules"`
}

// Layer names an output layer and the ordered list of rule names that
// feed it (§6: "layers: map<layer_name, [rule_name]> ordered").
type Layer struct {
	Name  string
	Rules []string
}

type RenderConfig struct {
	LeafZoom uint8 `yaml:"leaf_zoom"`
}

type RuleConfig struct {
	MinZoom uint8      `yaml:"minzoom"`
	MaxZoom *uint8     `yaml:"maxzoom"`
	Keys    []string   `yaml:"keys"`
	Values  []string   `yaml:"values"`
	Tags    [][2]string `yaml:"tags"`
}

// shadowConfig mirrors Config but keeps layers as a raw yaml.Node so
// UnmarshalYAML can walk its mapping in document order; plain
// map[string][]string would scramble that order (§6 "ordered").
type shadowConfig struct {
	Render RenderConfig          `yaml:"render"`
	Layers yaml.Node             `yaml:"layers"`
	Rules  map[string]RuleConfig `yaml:"rules"`
}

// Decode parses a rule document and validates leaf_zoom per §6/§7
// ("leaf_zoom odd or > 14" is a configuration error).
func Decode(data []byte) (*Config, error) {
	var shadow shadowConfig
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return nil, errors.Wrap(err, "rules: decoding config")
	}

	cfg := Config{Render: shadow.Render, Rules: shadow.Rules}
	if shadow.Layers.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(shadow.Layers.Content); i += 2 {
			var name string
			var ruleNames []string
			if err := shadow.Layers.Content[i].Decode(&name); err != nil {
				return nil, errors.Wrap(err, "rules: decoding layer name")
			}
			if err := shadow.Layers.Content[i+1].Decode(&ruleNames); err != nil {
				return nil, errors.Wrapf(err, "rules: decoding layer %q rules", name)
			}
			cfg.Layers = append(cfg.Layers, Layer{Name: name, Rules: ruleNames})
		}
	}
	if cfg.Render.LeafZoom == 0 || cfg.Render.LeafZoom%2 != 0 || cfg.Render.LeafZoom > 14 {
		return nil, errors.Errorf("rules: leaf_zoom must be even and in (0,14], got %d", cfg.Render.LeafZoom)
	}
	for name, r := range cfg.Rules {
		if r.MaxZoom != nil && *r.MaxZoom < r.MinZoom {
			return nil, errors.Errorf("rules: rule %q has maxzoom < minzoom", name)
		}
	}
	return &cfg, nil
}

// effectiveMaxZoom returns maxzoom, defaulting to leafZoom (§6).
func (r RuleConfig) effectiveMaxZoom(leafZoom uint8) uint8 {
	if r.MaxZoom != nil {
		return *r.MaxZoom
	}
	return leafZoom
}
