// Package identity normalizes entity ids and checks them for uniqueness.
package identity

import (
	"strings"

	"github.com/pitabwire/cardforge/model"
)

// prefixes are the mandatory id prefixes per collection.
var prefixes = map[model.Collection]string{
	model.ActiveSkills: "AS_",
	model.LeaderSkills: "LS_",
	model.EnemySkills:  "ES_",
}

// PrefixFor returns the mandatory id prefix of c, or "" when c has none.
func PrefixFor(c model.Collection) string {
	return prefixes[c]
}

// EnsurePrefix trims raw and prepends the collection's prefix when it is
// missing. Collections without a prefix rule only get trimmed.
func EnsurePrefix(c model.Collection, raw string) string {
	id := strings.TrimSpace(raw)
	p := prefixes[c]
	if p == "" || strings.HasPrefix(id, p) {
		return id
	}
	return p + id
}

// HasPrefix reports whether id already carries the prefix required by c.
func HasPrefix(c model.Collection, id string) bool {
	p := prefixes[c]
	return p == "" || strings.HasPrefix(id, p)
}

// IsDuplicate reports whether candidate collides with another record's id.
// excluding is the original id of the record being edited ("" for a new
// record). When candidate equals excluding, only a second record carrying it
// counts as a collision. Empty candidates never collide.
func IsDuplicate(records []model.Record, idField, candidate, excluding string) bool {
	if candidate == "" {
		return false
	}
	matches := 0
	for _, r := range records {
		if r.String(idField) == candidate {
			matches++
		}
	}
	if excluding != "" && candidate == excluding {
		return matches > 1
	}
	return matches > 0
}

// Duplicates returns every id that appears more than once, in first-seen
// order.
func Duplicates(records []model.Record, idField string) []string {
	seen := make(map[string]int, len(records))
	var out []string
	for _, r := range records {
		id := r.String(idField)
		if id == "" {
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			out = append(out, id)
		}
	}
	return out
}
