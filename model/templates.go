package model

// Default field sets for newly created entities. Every template is a fresh
// value; callers may mutate the result.

// NewCard returns the default card record.
func NewCard(id string) Record {
	return Record{
		"card_id":          id,
		"card_name":        "New Card",
		"rarity":           "COMMON",
		"card_race":        "HUMAN",
		"element":          "FIRE",
		"card_image_path":  "",
		"base_hp":          10,
		"base_atk":         5,
		"base_recovery":    5,
		"max_level":        99,
		"max_exp":          900,
		"rank":             1,
		"evoland":          []any{},
		"material":         []any{},
		"max_sp":           3,
		"initial_sp":       1,
		"active_skill_id":  "",
		"leader_skill_ids": []any{},
	}
}

// NewEnemy returns the default enemy record.
func NewEnemy(id string) Record {
	return Record{
		"enemy_id":          id,
		"enemy_name":        "New Enemy",
		"sprite_path":       "res://assets/enemies/placeholder.png",
		"element":           "FIRE",
		"max_hp":            100,
		"base_atk":          10,
		"attack_cd":         1,
		"passive_skill_ids": []any{},
		"attack_skill_ids":  []any{},
	}
}

// NewSkill returns the default leader or enemy skill record.
func NewSkill(id string) Record {
	return Record{
		"skill_id":    id,
		"skill_name":  "New Skill",
		"description": "",
		"effects":     []any{},
	}
}

// NewActiveSkill returns the default active skill record.
func NewActiveSkill(id string) Record {
	r := NewSkill(id)
	r["skill_cost"] = 10
	r["duration"] = 1
	r["target_type"] = "SELF"
	return r
}

// NewStage returns the default stage record with one empty wave.
func NewStage(id string) Record {
	return Record{
		"stage_id":    id,
		"stage_name":  "New Stage",
		"description": "",
		"difficulty":  1,
		"waves": []any{
			map[string]any{"wave_number": 1, "enemies": []any{}},
		},
		"rewards": map[string]any{
			"gold":       100,
			"exp":        50,
			"card_drops": []any{},
		},
		"unlock_requirements": map[string]any{
			"required_stages": []any{},
		},
	}
}

// NewRegion returns the default region record.
func NewRegion(id string) Record {
	return Record{
		"region_id":   id,
		"region_name": "New Region",
		"region_icon": "📍",
		"chapters":    []any{},
	}
}

// NewChapter returns the default chapter entry of a region.
func NewChapter(id string) Record {
	return Record{
		"chapter_id":       id,
		"chapter_name":     "New Chapter",
		"chapter_desc":     "",
		"require_previous": false,
		"previous_chapter": "",
		"is_independent":   true,
		"stages":           []any{},
	}
}

// Shop reward types and the reward_config keys each one expects.
var RewardConfigKeys = map[string][]string{
	"currency":      {"currency_type", "amount"},
	"specific_card": {"card_id", "count"},
	"bag_expansion": {"slots"},
	"item":          {"item_type", "count"},
	"bundle":        {"rewards"},
}

// NewShopItem returns the default shop item record.
func NewShopItem(id string) Record {
	return Record{
		"id":             id,
		"name":           "New Item",
		"description":    "",
		"price":          100,
		"currency":       "gold",
		"category":       "items",
		"icon":           "",
		"reward_type":    "currency",
		"purchase_limit": 0,
		"reward_config": map[string]any{
			"currency_type": "gold",
			"amount":        100,
		},
	}
}

// GachaTiers are the card_pool partitions of a gacha pool, rarest first.
var GachaTiers = []string{"legendary", "epic", "rare", "common"}

// NewGachaPool returns the default gacha pool record.
func NewGachaPool(id string) Record {
	pool := make(map[string]any, len(GachaTiers))
	for _, tier := range GachaTiers {
		pool[tier] = []any{}
	}
	return Record{
		"id":               id,
		"name":             "New Pool",
		"description":      "",
		"icon_color":       "#4A90E2",
		"showcase_cards":   []any{},
		"legendary_rate":   0.01,
		"epic_rate":        0.05,
		"rare_rate":        0.20,
		"pity_threshold":   90,
		"single_pull_cost": 1,
		"ten_pull_cost":    10,
		"currency":         "gem",
		"card_pool":        pool,
	}
}

// NewTrainingRoom returns the default training room record.
func NewTrainingRoom(id string) Record {
	return Record{
		"room_id":       id,
		"room_name":     "New Room",
		"room_desc":     "",
		"room_icon":     "",
		"training_time": 30,
		"exp_reward":    300,
		"max_teams":     1,
		"unlock_conditions": map[string]any{
			"type":                  "default",
			"cost_gold":             0,
			"cost_diamond":          0,
			"required_stage":        "",
			"required_player_level": 1,
		},
		"is_unlocked_by_default": true,
	}
}

// Dialog choice actions understood by the game client.
var DialogActions = []string{"next", "close", "show_card_selection", "highlight_training_area", "claim_reward", "go_to_scene"}

// NewDialog returns the default dialog record.
func NewDialog(id string) Record {
	return Record{
		"dialog_id":      id,
		"speaker":        "???",
		"speaker_avatar": "mystery",
		"content":        "",
		"choices": []any{
			map[string]any{"text": "Continue", "action": "next"},
		},
	}
}

// Quest types and step condition types understood by the game client.
var (
	QuestTypes     = []string{"tutorial", "main", "side", "daily", "achievement"}
	ConditionTypes = []string{
		"dialog_completed", "card_selected", "scene_entered", "training_completed",
		"quest_completed", "card_count", "gold_amount", "custom",
	}
)

// NewQuest returns the default quest record.
func NewQuest(id string) Record {
	return Record{
		"quest_id":     id,
		"quest_name":   "New Quest",
		"quest_desc":   "",
		"quest_type":   "side",
		"is_mandatory": false,
		"auto_start":   false,
		"steps":        []any{},
		"rewards": map[string]any{
			"gold":    0,
			"diamond": 0,
			"cards":   []any{},
		},
		"next_quest": "",
	}
}

// Template returns the default record for a new entity of c.
func Template(c Collection, id string) (Record, bool) {
	switch c {
	case Cards:
		return NewCard(id), true
	case Enemies:
		return NewEnemy(id), true
	case Stages:
		return NewStage(id), true
	case ActiveSkills:
		return NewActiveSkill(id), true
	case LeaderSkills, EnemySkills:
		return NewSkill(id), true
	case Regions:
		return NewRegion(id), true
	case Chapters:
		return NewChapter(id), true
	case ShopItems:
		return NewShopItem(id), true
	case GachaPools:
		return NewGachaPool(id), true
	case TrainingRooms:
		return NewTrainingRoom(id), true
	case Dialogs:
		return NewDialog(id), true
	case Quests:
		return NewQuest(id), true
	default:
		return nil, false
	}
}
