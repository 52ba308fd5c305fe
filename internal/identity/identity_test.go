package identity

import (
	"strings"
	"testing"

	"github.com/pitabwire/cardforge/model"
)

func TestEnsurePrefix(t *testing.T) {
	cases := []struct {
		c    model.Collection
		raw  string
		want string
	}{
		{model.ActiveSkills, "FIREBALL", "AS_FIREBALL"},
		{model.ActiveSkills, "  FIREBALL ", "AS_FIREBALL"},
		{model.ActiveSkills, "AS_FIREBALL", "AS_FIREBALL"},
		{model.LeaderSkills, "AURA", "LS_AURA"},
		{model.EnemySkills, "ES_BITE", "ES_BITE"},
		{model.EnemySkills, "as_bite", "ES_as_bite"},
		{model.Cards, " C001 ", "C001"},
		{model.Stages, "STAGE_1", "STAGE_1"},
	}
	for _, tc := range cases {
		if got := EnsurePrefix(tc.c, tc.raw); got != tc.want {
			t.Errorf("EnsurePrefix(%s, %q) = %q, want %q", tc.c, tc.raw, got, tc.want)
		}
	}
}

func TestEnsurePrefix_idempotent(t *testing.T) {
	inputs := []string{"", "X", "AS_", "LS_X", "ES_", " spaced ", "AS_AS_X", "中文"}
	for _, c := range model.SkillCollections() {
		p := PrefixFor(c)
		for _, s := range inputs {
			got := EnsurePrefix(c, s)
			if !strings.HasPrefix(got, p) {
				t.Errorf("EnsurePrefix(%s, %q) = %q, missing prefix %q", c, s, got, p)
			}
			if again := EnsurePrefix(c, got); again != got {
				t.Errorf("EnsurePrefix(%s, %q) = %q, not idempotent", c, got, again)
			}
			if withP := EnsurePrefix(c, p+strings.TrimSpace(s)); withP != p+strings.TrimSpace(s) {
				t.Errorf("EnsurePrefix(%s, %q) = %q, want unchanged", c, p+s, withP)
			}
		}
	}
}

func TestIsDuplicate(t *testing.T) {
	records := []model.Record{
		{"skill_id": "AS_A"},
		{"skill_id": "AS_B"},
		{"skill_id": "AS_C"},
		{"skill_id": "AS_C"},
	}
	cases := []struct {
		name      string
		candidate string
		excluding string
		want      bool
	}{
		{"new id free", "AS_D", "", false},
		{"new id taken", "AS_A", "", true},
		{"rename onto other", "AS_B", "AS_A", true},
		{"rename to self", "AS_A", "AS_A", false},
		{"rename to free", "AS_Z", "AS_A", false},
		{"self already duplicated", "AS_C", "AS_C", true},
		{"empty", "", "AS_A", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicate(records, "skill_id", tc.candidate, tc.excluding); got != tc.want {
				t.Errorf("IsDuplicate(%q, excluding %q) = %v, want %v", tc.candidate, tc.excluding, got, tc.want)
			}
		})
	}
}

func TestDuplicates(t *testing.T) {
	records := []model.Record{
		{"card_id": "C2"}, {"card_id": "C1"}, {"card_id": "C2"}, {"card_id": "C2"}, {"card_id": ""}, {"card_id": ""},
	}
	got := Duplicates(records, "card_id")
	if len(got) != 1 || got[0] != "C2" {
		t.Errorf("Duplicates() = %v, want [C2]", got)
	}
}
