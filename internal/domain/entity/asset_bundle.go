// Package entity 定义领域实体
package entity

import (
	"fmt"
	"time"
)

// WeaponType 武器类型
type WeaponType string

const (
	WeaponTypeMelee WeaponType = "melee"
	WeaponTypeRange WeaponType = "range"
)

// Tile 可视元素：名称、外观描述与可选主色
type Tile struct {
	Name        string `json:"name" jsonschema_description:"Short snake_case identifier of the visual element" validate:"required"`
	Description string `json:"description" jsonschema_description:"Concise visual description of the sprite (shape, material, palette) used to find a matching tileset texture" validate:"required,min=3"`
	Color       string `json:"color,omitempty" jsonschema:"pattern=^#[0-9a-fA-F]{6}$" jsonschema_description:"Dominant color as #RRGGBB" validate:"omitempty,rgb_hex"`
}

// TexturePosition 瓦片集中的网格坐标
type TexturePosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Texture 相似度检索得到的具体纹理
type Texture struct {
	Position    TexturePosition `json:"position"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Score       float32         `json:"score"`
}

// Resolved 纹理是否已由检索填充
func (t Texture) Resolved() bool {
	return t.Description != "" && t.Category != ""
}

// TileWithTexture 已绑定纹理的可视元素
type TileWithTexture struct {
	Tile
	Texture Texture `json:"texture"`
}

// Player 玩家角色
type Player struct {
	Tile        Tile   `json:"tile" jsonschema_description:"Tile used to represent the player"`
	BackHistory string `json:"back_history" jsonschema_description:"Backstory of the player following the world theme" validate:"required"`
}

// PlayerWithTexture 已解析纹理的玩家
type PlayerWithTexture struct {
	Player
	TileWithTexture TileWithTexture `json:"tile_with_texture"`
}

// Enemy 敌人
type Enemy struct {
	Tile   Tile `json:"tile" jsonschema_description:"Tile used to represent the enemy"`
	Weight int  `json:"weight" jsonschema:"minimum=0,maximum=10" jsonschema_description:"How often the enemy spawns; higher is more common. Range [0, 10]" validate:"min=0,max=10"`
	Thread int  `json:"thread" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Threat level of the enemy. Range [0, 10]" validate:"min=0,max=10"`
}

// EnemyList 敌人批次
type EnemyList struct {
	Items []Enemy `json:"items" validate:"required,min=1,dive"`
}

// EnemyWithTexture 已解析纹理的敌人
type EnemyWithTexture struct {
	Enemy
	TileWithTexture TileWithTexture `json:"tile_with_texture"`
}

// EnemyWithTextureList 已解析纹理的敌人列表
type EnemyWithTextureList struct {
	Items []EnemyWithTexture `json:"items"`
}

// Weapon 武器
type Weapon struct {
	Tile       Tile       `json:"tile" jsonschema_description:"Tile representing the weapon"`
	Rarity     int        `json:"rarity" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Rarity; rarer weapons are stronger and harder to find. Range [0, 10]" validate:"min=0,max=10"`
	Weight     int        `json:"weight" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Weight; heavier weapons hit harder but attack slower. Range [0, 10]" validate:"min=0,max=10"`
	ManaCost   int        `json:"mana_cost" jsonschema:"minimum=0,maximum=10" jsonschema_description:"Mana cost; higher cost means higher damage. Range [0, 10]" validate:"min=0,max=10"`
	WeaponType WeaponType `json:"weapon_type" jsonschema:"enum=melee,enum=range" jsonschema_description:"melee for close combat, range for distance attacks" validate:"oneof=melee range"`
}

// WeaponList 武器批次
type WeaponList struct {
	Items []Weapon `json:"items" validate:"required,min=1,dive"`
}

// WeaponWithTexture 已解析纹理的武器
type WeaponWithTexture struct {
	Weapon
	TileWithTexture TileWithTexture `json:"tile_with_texture"`
}

// WeaponWithTextureList 已解析纹理的武器列表
type WeaponWithTextureList struct {
	Items []WeaponWithTexture `json:"items"`
}

// FinalObjective 最终目标（MacGuffin）
type FinalObjective struct {
	Tile        Tile   `json:"tile" jsonschema_description:"Tile representing the final objective item"`
	BackHistory string `json:"back_history" jsonschema_description:"Lore of the objective and why the player seeks it" validate:"required"`
}

// FinalObjectiveWithTexture 已解析纹理的最终目标
type FinalObjectiveWithTexture struct {
	FinalObjective
	TileWithTexture TileWithTexture `json:"tile_with_texture"`
}

// DungeonLevel 地牢层
type DungeonLevel struct {
	Name        string `json:"name" jsonschema_description:"Level name in Title Case, e.g. The Crypts" validate:"required,title_case"`
	Description string `json:"description" jsonschema_description:"Short description of the level" validate:"required"`
	Depth       int    `json:"depth" jsonschema:"minimum=1,maximum=19" jsonschema_description:"Depth of the level; deeper is harder. Depth 1 is the surface" validate:"gt=0,lt=20"`
	WallTile    Tile   `json:"wall_tile" jsonschema_description:"Tile used for the level walls"`
	FloorTile   Tile   `json:"floor_tile" jsonschema_description:"Tile used for the level floor"`
}

// DungeonLevelList 地牢层批次
type DungeonLevelList struct {
	Items []DungeonLevel `json:"items" validate:"required,min=1,dive"`
}

// Check 深度严格递增
func (l *DungeonLevelList) Check() error {
	for i := 1; i < len(l.Items); i++ {
		if l.Items[i].Depth <= l.Items[i-1].Depth {
			return fmt.Errorf("level %q depth %d is not deeper than %q depth %d",
				l.Items[i].Name, l.Items[i].Depth, l.Items[i-1].Name, l.Items[i-1].Depth)
		}
	}
	return nil
}

// DungeonLevelWithTexture 已解析纹理的地牢层
type DungeonLevelWithTexture struct {
	DungeonLevel
	WallTileWithTexture  TileWithTexture `json:"wall_tile_with_texture"`
	FloorTileWithTexture TileWithTexture `json:"floor_tile_with_texture"`
}

// DungeonLevelWithTextureList 已解析纹理的地牢层列表
type DungeonLevelWithTextureList struct {
	Items []DungeonLevelWithTexture `json:"items"`
}

// ModelUsage 单个模型的累计用量
type ModelUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
	Calls          int `json:"calls"`
	FailedAttempts int `json:"failed_attempts"`
}

// Add 累加另一份用量
func (u ModelUsage) Add(o ModelUsage) ModelUsage {
	return ModelUsage{
		InputTokens:    u.InputTokens + o.InputTokens,
		OutputTokens:   u.OutputTokens + o.OutputTokens,
		TotalTokens:    u.TotalTokens + o.TotalTokens,
		Calls:          u.Calls + o.Calls,
		FailedAttempts: u.FailedAttempts + o.FailedAttempts,
	}
}

// UsageMetadata 模型名 -> 用量
type UsageMetadata map[string]ModelUsage

// Total 汇总所有模型用量
func (m UsageMetadata) Total() ModelUsage {
	var total ModelUsage
	for _, u := range m {
		total = total.Add(u)
	}
	return total
}

// AssetBundle 资产包聚合根
type AssetBundle struct {
	ID                    string                      `json:"id,omitempty"`
	Name                  string                      `json:"name"`
	RawDescription        string                      `json:"raw_description"`
	Description           string                      `json:"description"`
	GenerationTimeSeconds int                         `json:"generation_time_seconds"`
	LLMProvider           string                      `json:"llm_provider,omitempty"`
	LLMModel              string                      `json:"llm_model,omitempty"`
	Player                PlayerWithTexture           `json:"player"`
	DungeonLevels         DungeonLevelWithTextureList `json:"dungeon_levels"`
	Enemies               EnemyWithTextureList        `json:"enemies"`
	Weapons               WeaponWithTextureList       `json:"weapons"`
	FinalObjective        FinalObjectiveWithTexture   `json:"final_objective"`
	UsageMetadata         UsageMetadata               `json:"usage_metadata"`
	CreatedAt             time.Time                   `json:"created_at,omitempty"`
}

// AssetBundleSummary 列表视图
type AssetBundleSummary struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	LLMModel              string    `json:"llm_model"`
	GenerationTimeSeconds int       `json:"generation_time_seconds"`
	CreatedAt             time.Time `json:"created_at"`
}

// Summary 生成列表视图
func (b *AssetBundle) Summary() *AssetBundleSummary {
	return &AssetBundleSummary{
		ID:                    b.ID,
		Name:                  b.Name,
		LLMModel:              b.LLMModel,
		GenerationTimeSeconds: b.GenerationTimeSeconds,
		CreatedAt:             b.CreatedAt,
	}
}

// LevelNames 返回按深度排列的地牢层名称
func (b *AssetBundle) LevelNames() []string {
	names := make([]string, 0, len(b.DungeonLevels.Items))
	for _, level := range b.DungeonLevels.Items {
		names = append(names, level.Name)
	}
	return names
}

// Rename 外部重命名，是资产包唯一允许的修改
func (b *AssetBundle) Rename(name string) error {
	if err := ValidateTitle(name); err != nil {
		return err
	}
	b.Name = name
	return nil
}

// ResolvedTiles 遍历资产包内所有已解析的可视元素，键为元素路径
func (b *AssetBundle) ResolvedTiles() map[string]TileWithTexture {
	out := make(map[string]TileWithTexture, 2+2*len(b.DungeonLevels.Items)+len(b.Enemies.Items)+len(b.Weapons.Items))
	out["player"] = b.Player.TileWithTexture
	out["final_objective"] = b.FinalObjective.TileWithTexture
	for i, level := range b.DungeonLevels.Items {
		out[indexedPath("dungeon_levels", i, "wall")] = level.WallTileWithTexture
		out[indexedPath("dungeon_levels", i, "floor")] = level.FloorTileWithTexture
	}
	for i, enemy := range b.Enemies.Items {
		out[indexedPath("enemies", i, "")] = enemy.TileWithTexture
	}
	for i, weapon := range b.Weapons.Items {
		out[indexedPath("weapons", i, "")] = weapon.TileWithTexture
	}
	return out
}

// Unresolved 返回尚未绑定纹理的元素路径
func (b *AssetBundle) Unresolved() []string {
	var missing []string
	for path, tile := range b.ResolvedTiles() {
		if !tile.Texture.Resolved() {
			missing = append(missing, path)
		}
	}
	return missing
}
