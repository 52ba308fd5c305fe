// Package schema holds the effect schema registry: the ordered parameter
// shape of every effect type, its description, and its player/enemy
// classification.
package schema

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Registry maps effect-type tags to their parameter definitions. It is built
// once at startup and is safe for concurrent reads afterwards.
type Registry struct {
	order    []string
	entries  map[string]Entry
	schemas  map[string]*openapi3.Schema
	rules    []Rule
	choices  map[string][]string
	elements []string
}

// NewRegistry returns a registry holding the built-in effect types.
func NewRegistry() *Registry {
	r := &Registry{
		entries:  make(map[string]Entry, len(builtin)),
		schemas:  make(map[string]*openapi3.Schema, len(builtin)),
		rules:    append([]Rule(nil), enemyRules...),
		choices:  make(map[string][]string, len(choices)),
		elements: append([]string(nil), elements...),
	}
	for name, values := range choices {
		r.choices[name] = append([]string(nil), values...)
	}
	for _, e := range builtin {
		r.Register(e)
	}
	return r
}

// Register adds an entry or replaces the entry with the same tag. A replaced
// entry keeps its position.
func (r *Registry) Register(e Entry) {
	if _, exists := r.entries[e.Type]; !exists {
		r.order = append(r.order, e.Type)
	}
	e.Params = append([]Param(nil), e.Params...)
	r.entries[e.Type] = e
	r.schemas[e.Type] = r.objectSchema(e)
}

// AddRule appends a classification rule. Rules are evaluated in order and
// the first match wins.
func (r *Registry) AddRule(rule Rule) {
	r.rules = append(r.rules, rule)
}

// SetChoices defines the legal values of a ConstrainedChoice parameter and
// rebuilds every schema that uses it.
func (r *Registry) SetChoices(param string, values []string) {
	r.choices[param] = append([]string(nil), values...)
	for tag, e := range r.entries {
		r.schemas[tag] = r.objectSchema(e)
	}
}

// ParametersFor returns the ordered parameters of tag. The boolean is false
// when the tag has no entry, which means it takes no parameters.
func (r *Registry) ParametersFor(tag string) ([]Param, bool) {
	e, ok := r.entries[tag]
	if !ok {
		return nil, false
	}
	return append([]Param(nil), e.Params...), true
}

// Entry returns the full definition of tag.
func (r *Registry) Entry(tag string) (Entry, bool) {
	e, ok := r.entries[tag]
	if ok {
		e.Params = append([]Param(nil), e.Params...)
	}
	return e, ok
}

// Entries returns every definition in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, tag := range r.order {
		e, _ := r.Entry(tag)
		out = append(out, e)
	}
	return out
}

// Tags returns every registered tag in registration order.
func (r *Registry) Tags() []string {
	return append([]string(nil), r.order...)
}

// Describe returns the human description of tag, or the tag itself.
func (r *Registry) Describe(tag string) string {
	if e, ok := r.entries[tag]; ok && e.Description != "" {
		return e.Description
	}
	return tag
}

// Classify returns the side tag belongs to. Tags matched by no rule are
// player-side.
func (r *Registry) Classify(tag string) Side {
	for _, rule := range r.rules {
		if rule.Matches(tag) {
			return rule.Side
		}
	}
	return PlayerSide
}

// Rules returns the classification rules in evaluation order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// ChoicesFor returns the legal values of a ConstrainedChoice parameter, or
// nil when the name has no choice set.
func (r *Registry) ChoicesFor(param string) []string {
	values, ok := r.choices[param]
	if !ok {
		return nil
	}
	return append([]string(nil), values...)
}

// ChoiceParams returns every parameter name that has a choice set.
func (r *Registry) ChoiceParams() []string {
	out := make([]string, 0, len(r.choices))
	for name := range r.choices {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Elements returns the element set of Element parameters.
func (r *Registry) Elements() []string {
	return append([]string(nil), r.elements...)
}
