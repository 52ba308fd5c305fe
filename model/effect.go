package model

// EffectTypeKey is the key that carries an effect's type tag.
const EffectTypeKey = "effect_type"

// Effect is a tagged parameter set attached to a skill, for example
// {"effect_type": "HP_MULTIPLIER", "target_element": "FIRE", "multiplier": 1.5}.
// Which parameters it should carry is defined by the schema registry, not by
// the effect itself.
type Effect map[string]any

// Type returns the effect's tag.
func (e Effect) Type() string {
	s, _ := e[EffectTypeKey].(string)
	return s
}

// Params returns every key except the type tag.
func (e Effect) Params() map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		if k == EffectTypeKey {
			continue
		}
		out[k] = v
	}
	return out
}

// EffectsOf returns the effects listed on a skill record.
func EffectsOf(skill Record) []Effect {
	list := skill.Slice("effects")
	out := make([]Effect, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Effect(m))
		}
	}
	return out
}
