package schema

import "github.com/pitabwire/cardforge/model"

// elements is the fixed element set of Element parameters.
var elements = []string{"FIRE", "WATER", "WOOD", "METAL", "EARTH", "HEART", "ALL"}

// choices are the legal values of ConstrainedChoice parameters, keyed by
// parameter name. The dialog and quest vocabularies share the table so the
// UI fetches every closed value set the same way.
var choices = map[string][]string{
	"target_scope":  {"SELF", "ALL_ALLIES"},
	"target_stat":   {"base_atk", "base_hp", "base_recovery"},
	"target_rarity": {"", "R", "SR", "SSR"},

	ChoiceDialogAction:  model.DialogActions,
	ChoiceQuestType:     model.QuestTypes,
	ChoiceConditionType: model.ConditionTypes,
}

// Choice set names of the dialog and quest record fields.
const (
	ChoiceDialogAction  = "action"
	ChoiceQuestType     = "quest_type"
	ChoiceConditionType = "condition_type"
)

// enemyRules classify tags that only make sense on enemy skills.
var enemyRules = []Rule{
	{Pattern: "REQUIRE_", Side: EnemySide},
	{Pattern: "DAMAGE_REDUCTION_", Side: EnemySide},
	{Pattern: "SEAL_", Side: EnemySide},
	{Pattern: "DISABLE_", Side: EnemySide},
	{Pattern: "ZERO_", Side: EnemySide},
	{Pattern: "REDUCE_SLASH_TIME", Side: EnemySide},
	{Pattern: "ENTER_HP_TO_ONE", Side: EnemySide},
	{Pattern: "DEATH_DAMAGE", Side: EnemySide},
	{Pattern: "REVIVE_", Side: EnemySide},
	{Pattern: "COMBO_SHIELD", Side: EnemySide},
	{Pattern: "DAMAGE_ONCE_ONLY", Side: EnemySide},
}

func integer(name, hint string) Param { return Param{Name: name, Kind: Integer, Hint: hint} }
func float(name, hint string) Param   { return Param{Name: name, Kind: Float, Hint: hint} }
func element(name, hint string) Param { return Param{Name: name, Kind: Element, Hint: hint} }
func text(name, hint string) Param    { return Param{Name: name, Kind: FreeText, Hint: hint} }
func choice(name, hint string) Param  { return Param{Name: name, Kind: ConstrainedChoice, Hint: hint} }

var builtin = []Entry{
	// Leader and active effects.
	{Type: "HP_MULTIPLIER", Description: "Multiplies team HP for cards of an element.",
		Params: []Param{element("target_element", "element affected"), float("multiplier", "e.g. 1.5")}},
	{Type: "RECOVERY_MULTIPLIER", Description: "Multiplies recovery for cards of an element.",
		Params: []Param{element("target_element", "element affected"), float("multiplier", "e.g. 1.5")}},
	{Type: "TEAM_ELEMENT_MULTIPLIER", Description: "Attack multiplier that grows with the number of team members of an element.",
		Params: []Param{
			element("target_element", "element counted"),
			float("base_multiplier", "multiplier with one member"),
			float("max_multiplier", "upper bound"),
			float("per_member_boost", "added per extra member"),
		}},
	{Type: "TEAM_DIVERSITY_MULTIPLIER", Description: "Attack multiplier that grows with the number of distinct elements on the team.",
		Params: []Param{
			float("base_multiplier", "multiplier with one element"),
			float("max_multiplier", "upper bound"),
			float("per_unique_boost", "added per extra element"),
		}},
	{Type: "EXTEND_SLASH_TIME", Description: "Extends the slash time window.",
		Params: []Param{float("extend_seconds", "seconds added")}},
	{Type: "IGNORE_RESISTANCE", Description: "Attacks of an element ignore enemy resistance.",
		Params: []Param{element("target_element", "element affected")}},
	{Type: "ORB_DUAL_EFFECT", Description: "Orbs of one element also count as another.",
		Params: []Param{
			element("source_element", "orb element"),
			element("target_element", "element it also counts as"),
			float("effect_percent", "share of the effect, 0-100"),
		}},
	{Type: "ORB_CAPACITY_BOOST", Description: "Raises how many orbs of an element can be stored.",
		Params: []Param{element("target_element", "orb element"), integer("bonus_capacity", "extra slots")}},
	{Type: "DAMAGE_MULTIPLIER", Description: "Multiplies damage of an element.",
		Params: []Param{element("target_element", "element affected"), float("multiplier", "e.g. 2.0")}},
	{Type: "BASE_DAMAGE_BOOST", Description: "Adds a percentage to base damage of an element.",
		Params: []Param{element("target_element", "element affected"), float("boost_percent", "percent")}},
	{Type: "ALL_DAMAGE_BOOST", Description: "Adds a percentage to all damage of an element.",
		Params: []Param{element("target_element", "element affected"), float("boost_percent", "percent")}},
	{Type: "ORB_COUNT_MULTIPLIER", Description: "Damage multiplier that grows with orbs slashed.",
		Params: []Param{
			element("target_element", "orb element"),
			float("base_multiplier", "starting multiplier"),
			float("max_multiplier", "upper bound"),
			integer("orb_per_tier", "orbs needed per tier"),
		}},
	{Type: "FORCE_ORB_SPAWN", Description: "Guarantees orbs of an element spawn each turn.",
		Params: []Param{element("target_element", "orb element"), integer("count", "orbs spawned")}},
	{Type: "ORB_SPAWN_RATE_BOOST", Description: "Raises the spawn rate of an element's orbs.",
		Params: []Param{element("target_element", "orb element"), float("boost_percent", "percent")}},
	{Type: "ORB_DROP_END_TURN", Description: "Drops orbs at the end of a turn.",
		Params: []Param{
			element("element", "orb element"),
			integer("count", "orbs dropped"),
			text("drop_timing", "when the drop happens"),
		}},
	{Type: "ORB_DROP_ON_SLASH", Description: "Chance to drop orbs when slashing an element.",
		Params: []Param{
			element("slash_element", "element slashed"),
			element("drop_element", "element dropped"),
			integer("count", "orbs dropped"),
			float("chance_percent", "percent chance"),
		}},
	{Type: "SLASH_ORB_SPAWN", Description: "Slashing enough orbs of one element spawns orbs of another.",
		Params: []Param{
			element("slash_element", "element slashed"),
			element("spawn_element", "element spawned"),
			integer("required_count", "orbs to slash"),
			integer("spawn_count", "orbs spawned"),
		}},
	{Type: "END_TURN_DAMAGE", Description: "Deals fixed damage at the end of each turn.",
		Params: []Param{element("element", "damage element"), integer("damage", "amount")}},
	{Type: "ELEMENT_DAMAGE_BOOST", Description: "Adds a percentage to damage of an element.",
		Params: []Param{element("element", "element affected"), float("boost_percent", "percent")}},
	{Type: "HEAL_MULTIPLIER", Description: "Multiplies healing.",
		Params: []Param{float("multiplier", "e.g. 1.5")}},
	{Type: "IGNORE_ENEMY_SKILL", Description: "Nullifies one enemy skill.",
		Params: []Param{text("target_skill_id", "enemy skill id"), choice("target_scope", "who is protected")}},
	{Type: "DAMAGE_REDUCTION", Description: "Reduces damage taken by a percentage.",
		Params: []Param{float("reduction_percent", "percent"), choice("target_scope", "who is protected")}},
	{Type: "COMBO_BOOST", Description: "Adds to the combo counter.",
		Params: []Param{integer("combo_bonus", "combos added"), choice("target_scope", "who benefits")}},
	{Type: "BASE_STAT_BOOST", Description: "Raises a base stat of matching cards.",
		Params: []Param{
			choice("target_scope", "who benefits"),
			element("target_element", "element filter"),
			choice("target_rarity", "rarity filter, empty for any"),
			text("target_card_ids", "JSON list of card ids, empty for any"),
			choice("target_stat", "stat raised"),
			float("boost_percent", "percent"),
		}},
	{Type: "FINAL_DAMAGE_MULTIPLIER", Description: "Multiplies final damage after every other modifier.",
		Params: []Param{choice("target_scope", "who benefits"), element("target_element", "element filter"), float("multiplier", "e.g. 1.2")}},
	{Type: "REMOVE_RANDOM_ORBS", Description: "Removes random orbs of an element.",
		Params: []Param{element("target_element", "orb element"), integer("count", "orbs removed")}},

	// Conditions. These accept advanced parameter overrides.
	{Type: "REQUIRE_COMBO", Description: "Requires at least N combos.", Open: true,
		Params: []Param{integer("required_combo", "minimum combos")}},
	{Type: "REQUIRE_COMBO_EXACT", Description: "Requires exactly N combos.", Open: true,
		Params: []Param{integer("required_combo", "exact combos")}},
	{Type: "REQUIRE_COMBO_MAX", Description: "Requires at most N combos.", Open: true,
		Params: []Param{integer("max_combo", "maximum combos")}},
	{Type: "REQUIRE_ORB_TOTAL", Description: "Requires N orbs of an element slashed in total.", Open: true,
		Params: []Param{element("required_element", "orb element"), integer("required_count", "orbs")}},
	{Type: "REQUIRE_ORB_CONTINUOUS", Description: "Requires N orbs of an element slashed in a row.", Open: true,
		Params: []Param{element("required_element", "orb element"), integer("required_count", "orbs")}},
	{Type: "REQUIRE_ELEMENTS", Description: "Requires N distinct elements slashed.", Open: true,
		Params: []Param{integer("required_unique_elements", "distinct elements")}},
	{Type: "REQUIRE_ENEMY_ATTACK", Description: "Requires the player to have been attacked.", Open: true},
	{Type: "REQUIRE_STORED_ORB_MIN", Description: "Requires at least the listed stored orbs.", Open: true,
		Params: []Param{text("requirements", `JSON list, e.g. [{"element":"FIRE","count":3}]`)}},
	{Type: "REQUIRE_STORED_ORB_EXACT", Description: "Requires exactly the listed stored orbs.", Open: true,
		Params: []Param{text("requirements", `JSON list, e.g. [{"element":"FIRE","count":3}]`)}},

	// Enemy effects.
	{Type: "DAMAGE_ONCE_ONLY", Description: "Only the first hit each turn deals damage."},
	{Type: "DAMAGE_REDUCTION_PERCENT", Description: "Enemy takes a percentage less damage.",
		Params: []Param{float("reduction_percent", "percent")}},
	{Type: "DAMAGE_REDUCTION_FLAT", Description: "Enemy takes a fixed amount less damage per hit.",
		Params: []Param{integer("reduction_amount", "amount")}},
	{Type: "SEAL_ACTIVE_SKILL", Description: "Seals player active skills.",
		Params: []Param{integer("duration", "turns")}},
	{Type: "DISABLE_ELEMENT_SLASH", Description: "Orbs of an element cannot be slashed.",
		Params: []Param{element("target_element", "orb element"), integer("duration", "turns")}},
	{Type: "ZERO_RECOVERY", Description: "Player recovery is zero.",
		Params: []Param{integer("duration", "turns")}},
	{Type: "REDUCE_SLASH_TIME", Description: "Shortens the slash time window.",
		Params: []Param{float("reduce_seconds", "seconds removed")}},
	{Type: "ENTER_HP_TO_ONE", Description: "Player HP drops to one when the enemy appears."},
	{Type: "DEATH_DAMAGE", Description: "Deals damage when the enemy dies.",
		Params: []Param{integer("damage", "amount")}},
	{Type: "REVIVE_ONCE", Description: "Enemy revives once at full HP."},
	{Type: "COMBO_SHIELD_DAMAGE_REDUCTION", Description: "Damage is reduced unless the required combo is reached."},
}
