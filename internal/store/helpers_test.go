package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// minimalProject holds every required collection file with one record each.
var minimalProject = map[string]string{
	"cards.json":                 `{"cards": [{"card_id": "C1", "card_name": "火焰龍 <b>", "base_hp": 10, "active_skill_id": "AS_A", "leader_skill_ids": []}]}`,
	"enemies.json":               `{"enemies": [{"enemy_id": "E1", "enemy_name": "Slime", "passive_skill_ids": ["ES_X"]}]}`,
	"stages.json":                `{"version": 2, "stages": [{"stage_id": "S1", "stage_name": "First", "waves": [{"wave_number": 1, "enemies": [{"enemy_id": "E1", "count": 2}]}, {"wave_number": 2, "enemies": []}], "unlock_requirements": {"required_stages": ["STAGE_999"]}}]}`,
	"config/active_skills.json":  `{"active_skills": [{"skill_id": "AS_A", "skill_name": "Blaze", "effects": [{"effect_type": "HP_MULTIPLIER", "target_element": "FIRE", "multiplier": 1.0}]}]}`,
	"config/leader_skills.json":  `{"leader_skills": []}`,
	"config/enemy_skills.json":   `{"enemy_skills": [{"skill_id": "ES_X", "skill_name": "Shell", "effects": []}]}`,
	"config/regions.json":        `{"regions": [{"region_id": "R1", "region_name": "Plains", "chapters": [{"chapter_id": "CH1", "stages": ["S1"]}]}]}`,
	"config/shop_items.json":     `{"items": []}`,
	"config/gacha_pools.json":    `{"pools": []}`,
	"config/training_rooms.json": `{"training_rooms": []}`,
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func without(files map[string]string, names ...string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}

func with(files map[string]string, name, content string) map[string]string {
	out := without(files)
	out[name] = content
	return out
}

func parseJSON(t *testing.T, data []byte) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	return v
}

func loadedStore(t *testing.T, files map[string]string) (*Store, string) {
	t.Helper()
	dir := writeProject(t, files)
	s := New(NewOSFS(dir))
	if _, errs := s.LoadAll(context.Background()); len(errs) != 0 {
		t.Fatalf("LoadAll() errors = %v", errs)
	}
	return s, dir
}

// readObject parses a project file holding a JSON object.
func readObject(t *testing.T, dir, name string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := parseJSON(t, data).(map[string]any)
	if !ok {
		t.Fatalf("%s is not an object", name)
	}
	return m
}
