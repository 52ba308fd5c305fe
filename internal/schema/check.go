package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/cardforge/model"
)

// Violation codes reported by Check.
const (
	ViolationMissingType     = "MISSING_TYPE"
	ViolationMissingParam    = "MISSING_PARAM"
	ViolationUnexpectedParam = "UNEXPECTED_PARAM"
	ViolationInvalidValue    = "INVALID_VALUE"
)

// Violation is one way an effect deviates from its registry entry.
type Violation struct {
	Param   string `json:"param"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Check compares an effect against its registry entry. Effects whose tag has
// no entry are not checked.
func (r *Registry) Check(e model.Effect) []Violation {
	tag := e.Type()
	if tag == "" {
		return []Violation{{
			Param:   model.EffectTypeKey,
			Code:    ViolationMissingType,
			Message: "effect has no effect_type",
		}}
	}
	entry, ok := r.entries[tag]
	if !ok {
		return nil
	}

	obj := r.schemas[tag]
	params := e.Params()
	var out []Violation

	declared := make(map[string]bool, len(entry.Params))
	for _, p := range entry.Params {
		declared[p.Name] = true
		v, present := params[p.Name]
		if !present {
			out = append(out, Violation{
				Param:   p.Name,
				Code:    ViolationMissingParam,
				Message: fmt.Sprintf("%s requires parameter %q", tag, p.Name),
			})
			continue
		}
		prop := obj.Properties[p.Name]
		if prop == nil || prop.Value == nil {
			continue
		}
		if err := prop.Value.VisitJSON(normalize(v)); err != nil {
			out = append(out, Violation{
				Param:   p.Name,
				Code:    ViolationInvalidValue,
				Message: fmt.Sprintf("%s.%s: %s", tag, p.Name, reason(err)),
			})
		}
	}

	if entry.Open {
		return out
	}
	var extra []string
	for name := range params {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Violation{
			Param:   name,
			Code:    ViolationUnexpectedParam,
			Message: fmt.Sprintf("%s does not define parameter %q", tag, name),
		})
	}
	return out
}

// JSONSchema returns the object schema of an effect of type tag, suitable for
// generating an edit form.
func (r *Registry) JSONSchema(tag string) (*openapi3.Schema, bool) {
	s, ok := r.schemas[tag]
	return s, ok
}

func (r *Registry) objectSchema(e Entry) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Title = e.Type
	s.Description = e.Description
	s = s.WithProperty(model.EffectTypeKey, openapi3.NewStringSchema().WithEnum(e.Type))

	required := []string{model.EffectTypeKey}
	for _, p := range e.Params {
		ps := r.paramSchema(p)
		ps.Description = p.Hint
		s = s.WithProperty(p.Name, ps)
		required = append(required, p.Name)
	}
	s.Required = required
	if !e.Open {
		s.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(false)}
	}
	return s
}

func (r *Registry) paramSchema(p Param) *openapi3.Schema {
	switch p.Kind {
	case Integer:
		return openapi3.NewIntegerSchema()
	case Float:
		return openapi3.NewFloat64Schema()
	case Element:
		return openapi3.NewStringSchema().WithEnum(anySlice(r.elements)...)
	case ConstrainedChoice:
		s := openapi3.NewStringSchema()
		if values := r.choices[p.Name]; len(values) > 0 {
			s = s.WithEnum(anySlice(values)...)
		}
		return s
	default:
		return &openapi3.Schema{}
	}
}

// normalize converts decoded numbers to float64, the numeric form the schema
// validator understands.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func reason(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	return err.Error()
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
