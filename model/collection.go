package model

// Collection names one top-level content collection.
type Collection string

// Persisted collections.
const (
	Cards         Collection = "cards"
	Enemies       Collection = "enemies"
	Stages        Collection = "stages"
	ActiveSkills  Collection = "active_skills"
	LeaderSkills  Collection = "leader_skills"
	EnemySkills   Collection = "enemy_skills"
	Regions       Collection = "regions"
	Dialogs       Collection = "dialogs"
	Quests        Collection = "quests"
	ShopItems     Collection = "shop_items"
	GachaPools    Collection = "gacha_pools"
	TrainingRooms Collection = "training_rooms"
)

// Chapters are owned by regions and are never persisted as their own document.
const Chapters Collection = "chapters"

// CollectionInfo describes where a collection lives and how its records are keyed.
type CollectionInfo struct {
	Name       Collection `json:"name"`
	Path       string     `json:"path,omitempty"`
	WrapperKey string     `json:"wrapper_key,omitempty"`
	IDField    string     `json:"id_field"`
	NameField  string     `json:"name_field"`
	// Required collections fail to load when their file is absent. The others
	// start out empty.
	Required bool `json:"required"`
}

var catalog = []CollectionInfo{
	{Name: Cards, Path: "cards.json", WrapperKey: "cards", IDField: "card_id", NameField: "card_name", Required: true},
	{Name: Enemies, Path: "enemies.json", WrapperKey: "enemies", IDField: "enemy_id", NameField: "enemy_name", Required: true},
	{Name: Stages, Path: "stages.json", WrapperKey: "stages", IDField: "stage_id", NameField: "stage_name", Required: true},
	{Name: ActiveSkills, Path: "config/active_skills.json", WrapperKey: "active_skills", IDField: "skill_id", NameField: "skill_name", Required: true},
	{Name: LeaderSkills, Path: "config/leader_skills.json", WrapperKey: "leader_skills", IDField: "skill_id", NameField: "skill_name", Required: true},
	{Name: EnemySkills, Path: "config/enemy_skills.json", WrapperKey: "enemy_skills", IDField: "skill_id", NameField: "skill_name", Required: true},
	{Name: Regions, Path: "config/regions.json", WrapperKey: "regions", IDField: "region_id", NameField: "region_name", Required: true},
	{Name: Dialogs, Path: "config/dialogs.json", WrapperKey: "dialogs", IDField: "dialog_id", NameField: "speaker"},
	{Name: Quests, Path: "config/quests.json", WrapperKey: "quests", IDField: "quest_id", NameField: "quest_name"},
	{Name: ShopItems, Path: "config/shop_items.json", WrapperKey: "items", IDField: "id", NameField: "name", Required: true},
	{Name: GachaPools, Path: "config/gacha_pools.json", WrapperKey: "pools", IDField: "id", NameField: "name", Required: true},
	{Name: TrainingRooms, Path: "config/training_rooms.json", WrapperKey: "training_rooms", IDField: "room_id", NameField: "room_name", Required: true},
}

var chapterInfo = CollectionInfo{Name: Chapters, IDField: "chapter_id", NameField: "chapter_name"}

// Collections returns every persisted collection in load order.
func Collections() []Collection {
	out := make([]Collection, len(catalog))
	for i, info := range catalog {
		out[i] = info.Name
	}
	return out
}

// Catalog returns the description of every persisted collection.
func Catalog() []CollectionInfo {
	out := make([]CollectionInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Info returns the description of c. Chapters are included.
func Info(c Collection) (CollectionInfo, bool) {
	if c == Chapters {
		return chapterInfo, true
	}
	for _, info := range catalog {
		if info.Name == c {
			return info, true
		}
	}
	return CollectionInfo{}, false
}

// ParseCollection converts a persisted collection name.
func ParseCollection(s string) (Collection, bool) {
	c := Collection(s)
	for _, info := range catalog {
		if info.Name == c {
			return c, true
		}
	}
	return "", false
}

// IsSkill reports whether c holds skills.
func (c Collection) IsSkill() bool {
	return c == ActiveSkills || c == LeaderSkills || c == EnemySkills
}

// SkillCollections lists the three skill flavors.
func SkillCollections() []Collection {
	return []Collection{ActiveSkills, LeaderSkills, EnemySkills}
}
