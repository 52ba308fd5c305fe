// Package refgraph derives cross-document views from loaded collections:
// reference resolution, candidate lists for reference pickers, dangling
// references and the effect-type universe. A Graph is rebuilt from scratch
// after every load and save and never updated in place.
package refgraph

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/model"
)

// Reference is one id pointing from an entity to another.
type Reference struct {
	From     model.Collection `json:"from"`
	FromID   string           `json:"from_id"`
	Path     string           `json:"path"`
	To       model.Collection `json:"to"`
	ToID     string           `json:"to_id"`
	Resolved bool             `json:"resolved"`
}

// Candidate is an entity offered by a reference picker.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type index struct {
	order []string
	names map[string]string
}

// Graph is an immutable set of derived views over one set of documents.
type Graph struct {
	registry *schema.Registry
	entities map[model.Collection]*index
	refs     []Reference
	observed map[string]bool
}

// Build derives a graph from docs using DefaultRules.
func Build(docs model.Documents, registry *schema.Registry) *Graph {
	return BuildWithRules(docs, registry, DefaultRules)
}

// BuildWithRules derives a graph from docs using rules.
func BuildWithRules(docs model.Documents, registry *schema.Registry, rules []Rule) *Graph {
	g := &Graph{
		registry: registry,
		entities: make(map[model.Collection]*index),
		observed: make(map[string]bool),
	}

	for c, doc := range docs {
		info, ok := model.Info(c)
		if !ok || doc == nil {
			continue
		}
		g.entities[c] = indexRecords(doc.Records, info)
	}
	g.entities[model.Chapters] = indexChapters(docs.Records(model.Regions))

	for _, c := range model.SkillCollections() {
		for _, r := range docs.Records(c) {
			for _, e := range model.EffectsOf(r) {
				if tag := e.Type(); tag != "" {
					g.observed[tag] = true
				}
			}
		}
	}

	raw := make(map[model.Collection][][]byte)
	for _, rule := range rules {
		records := docs.Records(rule.Source)
		if len(records) == 0 {
			continue
		}
		encoded, ok := raw[rule.Source]
		if !ok {
			encoded = encodeRecords(records)
			raw[rule.Source] = encoded
		}
		info, _ := model.Info(rule.Source)
		for i, data := range encoded {
			fromID := records[i].String(info.IDField)
			g.collect(rule, data, fromID)
		}
	}
	return g
}

func (g *Graph) collect(rule Rule, data []byte, fromID string) {
	if rule.Scope == "" {
		for _, id := range stringsAt(gjson.GetBytes(data, rule.Path)) {
			g.addRef(rule.Source, fromID, rule.Path, rule.Target, id)
		}
		return
	}
	scopeInfo, _ := model.Info(rule.ScopeAs)
	path := rule.Scope + "." + rule.Path
	gjson.GetBytes(data, rule.Scope).ForEach(func(_, elem gjson.Result) bool {
		owner := elem.Get(scopeInfo.IDField).String()
		for _, id := range stringsAt(elem.Get(rule.Path)) {
			g.addRef(rule.ScopeAs, owner, path, rule.Target, id)
		}
		return true
	})
}

func (g *Graph) addRef(from model.Collection, fromID, path string, to model.Collection, toID string) {
	g.refs = append(g.refs, Reference{
		From:     from,
		FromID:   fromID,
		Path:     path,
		To:       to,
		ToID:     toID,
		Resolved: g.Exists(to, toID),
	})
}

// Exists reports whether an entity with id is loaded in c.
func (g *Graph) Exists(c model.Collection, id string) bool {
	idx := g.entities[c]
	if idx == nil {
		return false
	}
	_, ok := idx.names[id]
	return ok
}

// ResolveName returns the display name of an entity, falling back to the id
// itself when the entity does not exist or has no name.
func (g *Graph) ResolveName(c model.Collection, id string) string {
	if idx := g.entities[c]; idx != nil {
		if name := idx.names[id]; name != "" {
			return name
		}
	}
	return id
}

// Candidates returns the entities of c in document order, without excluding.
func (g *Graph) Candidates(c model.Collection, excluding string) []Candidate {
	idx := g.entities[c]
	if idx == nil {
		return []Candidate{}
	}
	out := make([]Candidate, 0, len(idx.order))
	for _, id := range idx.order {
		if excluding != "" && id == excluding {
			continue
		}
		out = append(out, Candidate{ID: id, Name: g.ResolveName(c, id)})
	}
	return out
}

// AvailableStages lists stages a stage may require. A stage is never offered
// as its own prerequisite.
func (g *Graph) AvailableStages(excluding string) []Candidate {
	return g.Candidates(model.Stages, excluding)
}

// AvailableCards lists every card.
func (g *Graph) AvailableCards() []Candidate {
	return g.Candidates(model.Cards, "")
}

// AvailableSkills lists the skills of one skill collection.
func (g *Graph) AvailableSkills(c model.Collection) []Candidate {
	if !c.IsSkill() {
		return []Candidate{}
	}
	return g.Candidates(c, "")
}

// References returns every reference in the graph.
func (g *Graph) References() []Reference {
	return append([]Reference(nil), g.refs...)
}

// Dangling returns the references whose target does not exist.
func (g *Graph) Dangling() []Reference {
	var out []Reference
	for _, r := range g.refs {
		if !r.Resolved {
			out = append(out, r)
		}
	}
	return out
}

// ReferrersOf returns the references pointing at an entity.
func (g *Graph) ReferrersOf(c model.Collection, id string) []Reference {
	var out []Reference
	for _, r := range g.refs {
		if r.To == c && r.ToID == id {
			out = append(out, r)
		}
	}
	return out
}

// ReferencesFrom returns the references held by an entity.
func (g *Graph) ReferencesFrom(c model.Collection, id string) []Reference {
	var out []Reference
	for _, r := range g.refs {
		if r.From == c && r.FromID == id {
			out = append(out, r)
		}
	}
	return out
}

// ObservedEffectTypes returns the sorted effect tags used by loaded skills.
func (g *Graph) ObservedEffectTypes() []string {
	out := make([]string, 0, len(g.observed))
	for tag := range g.observed {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// EffectTypeUniverse returns the sorted tags offered for selection on one
// side: every registry tag and every tag observed in loaded skills that
// classifies to that side.
func (g *Graph) EffectTypeUniverse(side schema.Side) []string {
	all := make(map[string]bool, len(g.observed))
	for tag := range g.observed {
		all[tag] = true
	}
	if g.registry != nil {
		for _, tag := range g.registry.Tags() {
			all[tag] = true
		}
	}
	out := make([]string, 0, len(all))
	for tag := range all {
		if g.classify(tag) == side {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Graph) classify(tag string) schema.Side {
	if g.registry == nil {
		return schema.PlayerSide
	}
	return g.registry.Classify(tag)
}

func indexRecords(records []model.Record, info model.CollectionInfo) *index {
	idx := &index{names: make(map[string]string, len(records))}
	for _, r := range records {
		idx.add(r.String(info.IDField), r.String(info.NameField))
	}
	return idx
}

func indexChapters(regions []model.Record) *index {
	idx := &index{names: make(map[string]string)}
	for _, region := range regions {
		for _, item := range region.Slice("chapters") {
			ch, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r := model.Record(ch)
			idx.add(r.String("chapter_id"), r.String("chapter_name"))
		}
	}
	return idx
}

func (idx *index) add(id, name string) {
	if id == "" {
		return
	}
	if _, seen := idx.names[id]; seen {
		return
	}
	idx.order = append(idx.order, id)
	idx.names[id] = name
}

func encodeRecords(records []model.Record) [][]byte {
	out := make([][]byte, len(records))
	for i, r := range records {
		data, err := json.Marshal(map[string]any(r))
		if err != nil {
			data = []byte("{}")
		}
		out[i] = data
	}
	return out
}

// stringsAt flattens a gjson result into its non-empty string leaves.
func stringsAt(res gjson.Result) []string {
	var out []string
	var walk func(gjson.Result)
	walk = func(r gjson.Result) {
		switch {
		case r.IsArray():
			r.ForEach(func(_, v gjson.Result) bool {
				walk(v)
				return true
			})
		case r.Type == gjson.String:
			if r.Str != "" {
				out = append(out, r.Str)
			}
		}
	}
	if res.Exists() {
		walk(res)
	}
	return out
}
