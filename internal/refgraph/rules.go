package refgraph

import "github.com/pitabwire/cardforge/model"

// Rule declares one kind of cross-document reference. Path is a gjson path
// evaluated against each source record, or against each element of Scope
// when Scope is set; every non-empty string it yields is an id in Target.
type Rule struct {
	Source model.Collection
	// Scope selects owned sub-entities, such as the chapters of a region.
	Scope string
	// ScopeAs is the collection the scoped elements belong to.
	ScopeAs model.Collection
	Path    string
	Target  model.Collection
}

// DefaultRules are the references between the built-in collections.
var DefaultRules = []Rule{
	{Source: model.Cards, Path: "active_skill_id", Target: model.ActiveSkills},
	{Source: model.Cards, Path: "leader_skill_ids", Target: model.LeaderSkills},
	{Source: model.Cards, Path: "evoland", Target: model.Cards},
	{Source: model.Cards, Path: "material", Target: model.Cards},

	{Source: model.Enemies, Path: "passive_skill_ids", Target: model.EnemySkills},
	{Source: model.Enemies, Path: "attack_skill_ids", Target: model.EnemySkills},

	{Source: model.Stages, Path: "waves.#.enemies.#.enemy_id", Target: model.Enemies},
	{Source: model.Stages, Path: "rewards.card_drops.#.card_id", Target: model.Cards},
	{Source: model.Stages, Path: "unlock_requirements.required_stages", Target: model.Stages},

	{Source: model.Regions, Scope: "chapters", ScopeAs: model.Chapters, Path: "stages", Target: model.Stages},
	{Source: model.Regions, Scope: "chapters", ScopeAs: model.Chapters, Path: "previous_chapter", Target: model.Chapters},

	{Source: model.ShopItems, Path: "reward_config.card_id", Target: model.Cards},
	{Source: model.ShopItems, Path: "reward_config.rewards.#.card_id", Target: model.Cards},

	{Source: model.GachaPools, Path: "showcase_cards", Target: model.Cards},
	// Every tier, including ones added by hand after the built-in four.
	{Source: model.GachaPools, Path: "card_pool.@values", Target: model.Cards},

	{Source: model.TrainingRooms, Path: "unlock_conditions.required_stage", Target: model.Stages},

	{Source: model.Quests, Path: "next_quest", Target: model.Quests},
	{Source: model.Quests, Path: "steps.#.dialog_id", Target: model.Dialogs},
	{Source: model.Quests, Path: "rewards.cards", Target: model.Cards},

	{Source: model.ActiveSkills, Path: `effects.#(effect_type=="IGNORE_ENEMY_SKILL")#.target_skill_id`, Target: model.EnemySkills},
	{Source: model.LeaderSkills, Path: `effects.#(effect_type=="IGNORE_ENEMY_SKILL")#.target_skill_id`, Target: model.EnemySkills},
}
