// Package integrity reports problems across a set of loaded content
// documents. Nothing it finds blocks a save; errors flag content the game
// client will reject and warnings flag content it tolerates.
package integrity

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/pitabwire/cardforge/internal/identity"
	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/model"
)

// Severity of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeDuplicateID       = "DUPLICATE_ID"
	CodeMissingID         = "MISSING_ID"
	CodeMissingPrefix     = "MISSING_PREFIX"
	CodeDanglingReference = "DANGLING_REFERENCE"
	CodeEffectMismatch    = "EFFECT_MISMATCH"
	CodeRateOutOfRange    = "RATE_OUT_OF_RANGE"
	CodeCycle             = "PREREQUISITE_CYCLE"
	CodeRewardConfig      = "REWARD_CONFIG_MISMATCH"
	CodeUnknownValue      = "UNKNOWN_VALUE"
)

// Issue is one problem found in the documents.
type Issue struct {
	Collection model.Collection `json:"collection"`
	EntityID   string           `json:"entity_id,omitempty"`
	Path       string           `json:"path"`
	Code       string           `json:"code"`
	Severity   Severity         `json:"severity"`
	Message    string           `json:"message"`
}

func (i Issue) String() string {
	if i.EntityID == "" {
		return fmt.Sprintf("[%s] %s %s: %s", i.Severity, i.Collection, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s/%s %s: %s", i.Severity, i.Collection, i.EntityID, i.Path, i.Message)
}

// Report is the result of one validation run.
type Report struct {
	Issues   []Issue `json:"issues"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
}

// HasErrors reports whether any issue has error severity.
func (r Report) HasErrors() bool { return r.Errors > 0 }

// NewReport counts issues by severity.
func NewReport(issues []Issue) Report {
	r := Report{Issues: issues}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	for _, i := range issues {
		if i.Severity == SeverityError {
			r.Errors++
		} else {
			r.Warnings++
		}
	}
	return r
}

// Validator checks documents against the effect registry and the derived
// reference graph.
type Validator struct {
	registry *schema.Registry
}

// NewValidator creates a Validator. registry may be nil to skip effect checks.
func NewValidator(registry *schema.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate checks every loaded document. graph may be nil, in which case it
// is built from docs.
func (v *Validator) Validate(docs model.Documents, graph *refgraph.Graph) []Issue {
	if graph == nil {
		graph = refgraph.Build(docs, v.registry)
	}

	var issues []Issue
	for _, c := range model.Collections() {
		doc := docs[c]
		if doc == nil {
			continue
		}
		info, _ := model.Info(c)
		issues = append(issues, v.validateIDs(c, info, doc.Records)...)
		if c.IsSkill() {
			issues = append(issues, v.validateSkills(c, info, doc.Records)...)
		}
	}
	issues = append(issues, v.validateChapters(docs.Records(model.Regions))...)
	issues = append(issues, validateGacha(docs.Records(model.GachaPools))...)
	issues = append(issues, validateShop(docs.Records(model.ShopItems))...)
	issues = append(issues, v.validateDialogs(docs.Records(model.Dialogs))...)
	issues = append(issues, v.validateQuests(docs.Records(model.Quests))...)

	for _, ref := range graph.Dangling() {
		issues = append(issues, Issue{
			Collection: ref.From,
			EntityID:   ref.FromID,
			Path:       ref.Path,
			Code:       CodeDanglingReference,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%s %q does not exist", ref.To, ref.ToID),
		})
	}
	for _, cycle := range graph.Cycles() {
		issues = append(issues, Issue{
			Collection: cycle.Collection,
			EntityID:   cycle.Path[0],
			Path:       prerequisitePath(cycle.Collection),
			Code:       CodeCycle,
			Severity:   SeverityWarning,
			Message:    "prerequisite cycle: " + strings.Join(cycle.Path, " -> ") + " -> " + cycle.Path[0],
		})
	}
	return issues
}

func (v *Validator) validateIDs(c model.Collection, info model.CollectionInfo, records []model.Record) []Issue {
	var issues []Issue
	for i, r := range records {
		if r.String(info.IDField) == "" {
			issues = append(issues, Issue{
				Collection: c,
				Path:       fmt.Sprintf("%s[%d].%s", info.WrapperKey, i, info.IDField),
				Code:       CodeMissingID,
				Severity:   SeverityError,
				Message:    info.IDField + " is required",
			})
		}
	}
	for _, id := range identity.Duplicates(records, info.IDField) {
		issues = append(issues, Issue{
			Collection: c,
			EntityID:   id,
			Path:       info.WrapperKey,
			Code:       CodeDuplicateID,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("%s %q is used by more than one entry", info.IDField, id),
		})
	}
	return issues
}

func (v *Validator) validateSkills(c model.Collection, info model.CollectionInfo, records []model.Record) []Issue {
	var issues []Issue
	for i, r := range records {
		id := r.String(info.IDField)
		if id != "" && !identity.HasPrefix(c, id) {
			issues = append(issues, Issue{
				Collection: c,
				EntityID:   id,
				Path:       fmt.Sprintf("%s[%d].%s", info.WrapperKey, i, info.IDField),
				Code:       CodeMissingPrefix,
				Severity:   SeverityError,
				Message:    fmt.Sprintf("id must start with %s", identity.PrefixFor(c)),
			})
		}
		if v.registry == nil {
			continue
		}
		for j, e := range model.EffectsOf(r) {
			for _, viol := range v.registry.Check(e) {
				issues = append(issues, Issue{
					Collection: c,
					EntityID:   id,
					Path:       fmt.Sprintf("%s[%d].effects[%d].%s", info.WrapperKey, i, j, viol.Param),
					Code:       CodeEffectMismatch,
					Severity:   SeverityWarning,
					Message:    viol.Message,
				})
			}
		}
	}
	return issues
}

// validateChapters checks chapter ids across every region; chapters share one
// id space even though each region owns its own list.
func (v *Validator) validateChapters(regions []model.Record) []Issue {
	var issues []Issue
	counts := make(map[string]int)
	var order []string
	for i, region := range regions {
		for j, item := range region.Slice("chapters") {
			ch, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := model.Record(ch).String("chapter_id")
			if id == "" {
				issues = append(issues, Issue{
					Collection: model.Chapters,
					Path:       fmt.Sprintf("regions[%d].chapters[%d].chapter_id", i, j),
					Code:       CodeMissingID,
					Severity:   SeverityError,
					Message:    "chapter_id is required",
				})
				continue
			}
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
		}
	}
	for _, id := range order {
		if counts[id] > 1 {
			issues = append(issues, Issue{
				Collection: model.Chapters,
				EntityID:   id,
				Path:       "regions.chapters",
				Code:       CodeDuplicateID,
				Severity:   SeverityError,
				Message:    fmt.Sprintf("chapter_id %q is used by more than one chapter", id),
			})
		}
	}
	return issues
}

func validateGacha(pools []model.Record) []Issue {
	var issues []Issue
	for i, p := range pools {
		for _, key := range slices.Sorted(maps.Keys(p)) {
			if !strings.HasSuffix(key, "_rate") {
				continue
			}
			rate, ok := p.Number(key)
			if !ok {
				continue
			}
			if rate < 0 || rate > 1 {
				issues = append(issues, Issue{
					Collection: model.GachaPools,
					EntityID:   p.String("id"),
					Path:       fmt.Sprintf("pools[%d].%s", i, key),
					Code:       CodeRateOutOfRange,
					Severity:   SeverityWarning,
					Message:    fmt.Sprintf("%s %v is outside 0..1", key, rate),
				})
			}
		}
	}
	return issues
}

func validateShop(items []model.Record) []Issue {
	var issues []Issue
	for i, item := range items {
		kind := item.String("reward_type")
		want, ok := model.RewardConfigKeys[kind]
		if !ok {
			continue
		}
		cfg := item.Map("reward_config")
		var missing []string
		for _, key := range want {
			if _, present := cfg[key]; !present {
				missing = append(missing, key)
			}
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		issues = append(issues, Issue{
			Collection: model.ShopItems,
			EntityID:   item.String("id"),
			Path:       fmt.Sprintf("items[%d].reward_config", i),
			Code:       CodeRewardConfig,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("reward_type %q expects %s", kind, strings.Join(missing, ", ")),
		})
	}
	return issues
}

func prerequisitePath(c model.Collection) string {
	if c == model.Chapters {
		return "chapters.previous_chapter"
	}
	return "unlock_requirements.required_stages"
}

// vocabulary returns the legal values of a closed field, taking extensions
// from the registry when there is one.
func (v *Validator) vocabulary(name string, builtin []string) []string {
	if v.registry != nil {
		if values := v.registry.ChoicesFor(name); values != nil {
			return values
		}
	}
	return builtin
}

func unknownValue(c model.Collection, id, path, field, value string) Issue {
	return Issue{
		Collection: c,
		EntityID:   id,
		Path:       path,
		Code:       CodeUnknownValue,
		Severity:   SeverityWarning,
		Message:    fmt.Sprintf("%s %q is not understood by the game client", field, value),
	}
}

func (v *Validator) validateDialogs(dialogs []model.Record) []Issue {
	actions := v.vocabulary(schema.ChoiceDialogAction, model.DialogActions)
	var issues []Issue
	for i, d := range dialogs {
		for j, raw := range d.Slice("choices") {
			choice, _ := raw.(map[string]any)
			action := model.Record(choice).String("action")
			if action != "" && !slices.Contains(actions, action) {
				path := fmt.Sprintf("dialogs[%d].choices[%d].action", i, j)
				issues = append(issues, unknownValue(model.Dialogs, d.String("dialog_id"), path, "action", action))
			}
		}
	}
	return issues
}

func (v *Validator) validateQuests(quests []model.Record) []Issue {
	types := v.vocabulary(schema.ChoiceQuestType, model.QuestTypes)
	conditions := v.vocabulary(schema.ChoiceConditionType, model.ConditionTypes)
	var issues []Issue
	for i, q := range quests {
		id := q.String("quest_id")
		if kind := q.String("quest_type"); kind != "" && !slices.Contains(types, kind) {
			issues = append(issues, unknownValue(model.Quests, id, fmt.Sprintf("quests[%d].quest_type", i), "quest_type", kind))
		}
		for j, raw := range q.Slice("steps") {
			step, _ := raw.(map[string]any)
			key := "condition"
			cond := model.Record(step).Map(key)
			if cond == nil {
				key = "conditions"
				cond = model.Record(step).Map(key)
			}
			kind := model.Record(cond).String("type")
			if kind != "" && !slices.Contains(conditions, kind) {
				path := fmt.Sprintf("quests[%d].steps[%d].%s.type", i, j, key)
				issues = append(issues, unknownValue(model.Quests, id, path, "condition type", kind))
			}
		}
	}
	return issues
}
