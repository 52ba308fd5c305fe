package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// extensionFile is the YAML layout of a registry extension:
//
//	effects:
//	  - effect_type: POISON_TICK
//	    description: Deals damage every turn.
//	    params:
//	      - {name: damage, kind: integer, hint: amount}
//	classification:
//	  - {pattern: POISON_, match: prefix, side: enemy}
//	choices:
//	  target_scope: [SELF, ALL_ALLIES, ALL_ENEMIES]
type extensionFile struct {
	Effects []struct {
		Type        string `yaml:"effect_type"`
		Description string `yaml:"description"`
		Open        bool   `yaml:"open"`
		Params      []struct {
			Name string `yaml:"name"`
			Kind string `yaml:"kind"`
			Hint string `yaml:"hint"`
		} `yaml:"params"`
	} `yaml:"effects"`
	Classification []struct {
		Pattern string `yaml:"pattern"`
		Match   string `yaml:"match"`
		Side    string `yaml:"side"`
	} `yaml:"classification"`
	Choices map[string][]string `yaml:"choices"`
}

// LoadExtension reads a YAML extension file and applies it to r.
func (r *Registry) LoadExtension(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("schema: reading %s: %w", path, err)
	}
	if err := r.ApplyExtension(data); err != nil {
		return fmt.Errorf("schema: %s: %w", path, err)
	}
	return nil
}

// ApplyExtension parses YAML extension content and applies it to r. Nothing is
// applied when any part of the content is invalid.
func (r *Registry) ApplyExtension(data []byte) error {
	var ext extensionFile
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return fmt.Errorf("parsing extension: %w", err)
	}

	var errs []string
	entries := make([]Entry, 0, len(ext.Effects))
	for i, raw := range ext.Effects {
		if raw.Type == "" {
			errs = append(errs, fmt.Sprintf("effects[%d]: effect_type is required", i))
			continue
		}
		e := Entry{Type: raw.Type, Description: raw.Description, Open: raw.Open}
		for j, p := range raw.Params {
			kind, err := ParseKind(p.Kind)
			if err != nil {
				errs = append(errs, fmt.Sprintf("effects[%d].params[%d]: %v", i, j, err))
				continue
			}
			if p.Name == "" {
				errs = append(errs, fmt.Sprintf("effects[%d].params[%d]: name is required", i, j))
				continue
			}
			e.Params = append(e.Params, Param{Name: p.Name, Kind: kind, Hint: p.Hint})
		}
		entries = append(entries, e)
	}

	rules := make([]Rule, 0, len(ext.Classification))
	for i, raw := range ext.Classification {
		rule := Rule{Pattern: raw.Pattern}
		switch raw.Match {
		case "prefix", "":
			rule.Match = MatchPrefix
		case "exact":
			rule.Match = MatchExact
		default:
			errs = append(errs, fmt.Sprintf("classification[%d]: unknown match %q", i, raw.Match))
			continue
		}
		side, err := ParseSide(raw.Side)
		if err != nil {
			errs = append(errs, fmt.Sprintf("classification[%d]: %v", i, err))
			continue
		}
		rule.Side = side
		if rule.Pattern == "" {
			errs = append(errs, fmt.Sprintf("classification[%d]: pattern is required", i))
			continue
		}
		rules = append(rules, rule)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	for name, values := range ext.Choices {
		r.SetChoices(name, values)
	}
	for _, e := range entries {
		r.Register(e)
	}
	// Extension rules run before the built-in ones so they can reclassify.
	r.rules = append(rules, r.rules...)
	return nil
}
