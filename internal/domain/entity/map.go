package entity

import "strings"

// ItemType 物品类型
type ItemType string

const (
	ItemTypeHealingPotion ItemType = "healing_potion"
	ItemTypeMeleeWeapon   ItemType = "melee_weapon"
)

// EntityTypeEnemy 目前唯一的实体类型
const EntityTypeEnemy = "enemy"

// PlayerChar 玩家出生点字符
const PlayerChar = '@'

// VoidChar 空白字符，不可出现在图例中
const VoidChar = ' '

// TextureDescription 纹理描述目录项
type TextureDescription struct {
	Name        string `json:"name" jsonschema:"pattern=^[a-z0-9]+(?:_[a-z0-9]+)*$" jsonschema_description:"Unique texture id in snake_case, e.g. rusted_iron_plate" validate:"required,snake_case"`
	Description string `json:"description" jsonschema:"minLength=20,maxLength=500" jsonschema_description:"Detailed visual description focusing on physical properties" validate:"required,min=20,max=500"`
	Color       string `json:"color" jsonschema:"pattern=^#[0-9a-fA-F]{6}$" jsonschema_description:"Hex color code #RRGGBB" validate:"required,rgb_hex"`
}

// Normalize 颜色统一为大写
func (t *TextureDescription) Normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)
	t.Color = strings.ToUpper(strings.TrimSpace(t.Color))
}

// TextureDescriptionList 纹理目录
type TextureDescriptionList struct {
	Items []TextureDescription `json:"items" validate:"required,min=1,dive"`
}

// Normalize 规范化全部纹理
func (l *TextureDescriptionList) Normalize() {
	for i := range l.Items {
		l.Items[i].Normalize()
	}
}

// Names 目录中的纹理名集合
func (l *TextureDescriptionList) Names() []string {
	names := make([]string, 0, len(l.Items))
	for _, t := range l.Items {
		names = append(names, t.Name)
	}
	return names
}

// TilePreset 瓦片预设
type TilePreset struct {
	Name          string `json:"name" jsonschema_description:"Unique tile preset id in snake_case, e.g. stone_wall" validate:"required,snake_case"`
	HasCollision  bool   `json:"has_collision" jsonschema_description:"True if actors cannot walk through this tile"`
	IsTransparent bool   `json:"is_transparent" jsonschema_description:"True if the tile does not block line of sight"`
	TextureID     string `json:"texture_id" jsonschema_description:"Name of the texture applied to this tile" validate:"required"`
}

// TilePresetRole 瓦片预设分组
type TilePresetRole string

const (
	TileRolePlayer      TilePresetRole = "player"
	TileRoleEntities    TilePresetRole = "entities"
	TileRoleEnvironment TilePresetRole = "environment"
	TileRoleItems       TilePresetRole = "items"
)

// TilePresetList 按角色分组的瓦片预设
type TilePresetList struct {
	PlayerTilePreset       TilePreset   `json:"player_tile_preset" jsonschema_description:"Preset for the player character"`
	EntitiesTilePresets    []TilePreset `json:"entities_tile_presets" jsonschema_description:"Presets for enemies and other NPCs" validate:"required,min=1,dive"`
	EnvironmentTilePresets []TilePreset `json:"environment_tile_presets" jsonschema_description:"Presets for static world architecture such as floors and walls" validate:"required,min=1,dive"`
	ItemsTilePresets       []TilePreset `json:"items_tile_presets" jsonschema_description:"Presets for pickable objects" validate:"required,min=1,dive"`
}

// Normalize 玩家与实体预设强制透明
func (l *TilePresetList) Normalize() {
	l.Each(func(role TilePresetRole, p *TilePreset) {
		p.Name = strings.TrimSpace(p.Name)
		p.TextureID = strings.TrimSpace(p.TextureID)
		if role == TileRolePlayer || role == TileRoleEntities {
			p.IsTransparent = true
		}
	})
}

// Each 按固定顺序遍历所有预设
func (l *TilePresetList) Each(fn func(role TilePresetRole, preset *TilePreset)) {
	fn(TileRolePlayer, &l.PlayerTilePreset)
	for i := range l.EntitiesTilePresets {
		fn(TileRoleEntities, &l.EntitiesTilePresets[i])
	}
	for i := range l.EnvironmentTilePresets {
		fn(TileRoleEnvironment, &l.EnvironmentTilePresets[i])
	}
	for i := range l.ItemsTilePresets {
		fn(TileRoleItems, &l.ItemsTilePresets[i])
	}
}

// Names 指定角色的预设名
func (l *TilePresetList) Names(role TilePresetRole) []string {
	var names []string
	l.Each(func(r TilePresetRole, p *TilePreset) {
		if r == role {
			names = append(names, p.Name)
		}
	})
	return names
}

// FirstWalkableEnvironment 第一个无碰撞的环境预设
func (l *TilePresetList) FirstWalkableEnvironment() (TilePreset, bool) {
	for _, p := range l.EnvironmentTilePresets {
		if !p.HasCollision {
			return p, true
		}
	}
	return TilePreset{}, false
}

// EntityPreset 实体模板
type EntityPreset struct {
	Name        string `json:"name" jsonschema_description:"Unique entity preset id, e.g. skeleton_warrior" validate:"required"`
	TilePreset  string `json:"tile_preset" jsonschema_description:"Name of a preset from entities_tile_presets" validate:"required"`
	Threat      int    `json:"threat" jsonschema:"minimum=1,maximum=10" jsonschema_description:"Power level from 1 to 10" validate:"min=1,max=10"`
	EntityType  string `json:"entity_type" jsonschema:"enum=enemy" validate:"oneof=enemy"`
	Description string `json:"description" validate:"required"`
}

// EntityPresetList 实体模板目录
type EntityPresetList struct {
	Items []EntityPreset `json:"items" validate:"required,min=1,dive"`
}

// ItemPreset 物品模板
type ItemPreset struct {
	Name        string   `json:"name" jsonschema_description:"Unique item preset id, e.g. minor_healing_potion" validate:"required"`
	TilePreset  string   `json:"tile_preset" jsonschema_description:"Name of a preset from items_tile_presets" validate:"required"`
	ItemType    ItemType `json:"item_type" jsonschema:"enum=healing_potion,enum=melee_weapon" validate:"oneof=healing_potion melee_weapon"`
	ItemRarity  int      `json:"item_rarity" jsonschema:"minimum=1,maximum=10" jsonschema_description:"1 is common, 10 is legendary" validate:"min=1,max=10"`
	Description string   `json:"description" validate:"required"`
}

// ItemPresetList 物品模板目录
type ItemPresetList struct {
	Items []ItemPreset `json:"items" validate:"required,min=1,dive"`
}

// CharTileRepresentation 图例：字符 -> 瓦片/实体/物品名
type CharTileRepresentation struct {
	Char        string  `json:"char" jsonschema_description:"Single character used in the grid; '@' marks the player start" validate:"required"`
	Description string  `json:"description" jsonschema_description:"Human explanation, e.g. Orc on stone floor"`
	Tile        *string `json:"tile,omitempty" jsonschema_description:"Name of the base tile preset"`
	Entity      *string `json:"entity,omitempty" jsonschema_description:"Name of the entity preset placed here, null if none"`
	Item        *string `json:"item,omitempty" jsonschema_description:"Name of the item preset placed here, null if none"`
}

// Rune 图例字符
func (c *CharTileRepresentation) Rune() rune {
	for _, r := range c.Char {
		return r
	}
	return 0
}

// CharTileRepresentationList 图例
type CharTileRepresentationList struct {
	Items []CharTileRepresentation `json:"items" validate:"required,min=1,dive"`
}

// MapCharRepresentation ASCII 网格
type MapCharRepresentation struct {
	Representation []string `json:"representation" jsonschema_description:"Rows of the map; every character must be a legend char or a space for void" validate:"required,min=1"`
}

// MapCatalogs 地图生成六个阶段的产物
type MapCatalogs struct {
	Textures TextureDescriptionList     `json:"textures"`
	Tiles    TilePresetList             `json:"tiles"`
	Entities EntityPresetList           `json:"entities"`
	Items    ItemPresetList             `json:"items"`
	Legend   CharTileRepresentationList `json:"legend"`
	Grid     MapCharRepresentation      `json:"grid"`
}

// ResolvedMapTexture 地图纹理表项
type ResolvedMapTexture struct {
	X                          int    `json:"x"`
	Y                          int    `json:"y"`
	Color                      string `json:"color"`
	DescriptionFromTexture     string `json:"description_from_texture"`
	DescriptionFromVectorStore string `json:"description_from_vector_store"`
}

// TileState 编译后的瓦片
type TileState struct {
	Texture       string `json:"texture"`
	Color         string `json:"color"`
	HasCollision  bool   `json:"has_collision"`
	IsTransparent bool   `json:"is_transparent"`
}

// EntityState 编译后的实体
type EntityState struct {
	Type        string    `json:"type"`
	EntityName  string    `json:"entity_name"`
	Tile        TileState `json:"tile"`
	TurnsToMove int       `json:"turns_to_move"`
	MaxHealth   int       `json:"max_health"`
	Health      int       `json:"health"`
	MaxMana     int       `json:"max_mana"`
	Mana        int       `json:"mana"`
	BaseDamage  int       `json:"base_damage"`
}

// ItemState 编译后的物品
type ItemState struct {
	Name           string    `json:"name"`
	Tile           TileState `json:"tile"`
	Type           ItemType  `json:"type"`
	Description    string    `json:"description"`
	HealthIncrease int       `json:"health_increase"`
	Damage         int       `json:"damage"`
}

// MapLayer 单个图层的坐标映射，键为 "x,y"
type MapLayer struct {
	Tiles    map[string]TileState   `json:"tiles"`
	Entities map[string]EntityState `json:"entities"`
	Items    map[string]ItemState   `json:"items"`
}

// GridPosition 网格坐标
type GridPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlayerTile 玩家所在瓦片
type PlayerTile struct {
	GridPosition GridPosition `json:"grid_position"`
	IsExplored   bool         `json:"is_explored"`
	Preset       string       `json:"preset"`
	Texture      string       `json:"texture"`
}

// PlayerEntity 玩家实体
type PlayerEntity struct {
	MaxHealth   int        `json:"max_health"`
	Health      int        `json:"health"`
	MaxMana     int        `json:"max_mana"`
	Mana        int        `json:"mana"`
	BaseDamage  int        `json:"base_damage"`
	EntityName  string     `json:"entity_name"`
	TurnsToMove int        `json:"turns_to_move"`
	Tile        PlayerTile `json:"tile"`
}

// PlayerState 玩家状态
type PlayerState struct {
	Entity       PlayerEntity `json:"entity"`
	HealPerTurns int          `json:"heal_per_turns"`
}

// CompiledMap 游戏运行时使用的地图结构
type CompiledMap struct {
	Turn         int                           `json:"turn"`
	CurrentLayer string                        `json:"current_layer"`
	Layers       map[string]MapLayer           `json:"layers"`
	Textures     map[string]ResolvedMapTexture `json:"textures"`
	Player       PlayerState                   `json:"player"`
}
