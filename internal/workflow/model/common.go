// Package model 定义工作流阶段的输入输出结构
package model

import "strings"

// StageName 生成阶段名
type StageName = string

const (
	StageExpand         StageName = "expand"
	StageTitle          StageName = "title"
	StagePlayer         StageName = "player"
	StageDungeonLevels  StageName = "dungeon_levels"
	StageEnemies        StageName = "enemies"
	StageWeapons        StageName = "weapons"
	StageFinalObjective StageName = "final_objective"
	StageTextures       StageName = "textures"
	StageTextureRerank  StageName = "texture_rerank"
	StageAssemble       StageName = "assemble"

	StageMapTextures    StageName = "map_textures"
	StageMapTilePresets StageName = "map_tile_presets"
	StageMapEntities    StageName = "map_entities"
	StageMapItems       StageName = "map_items"
	StageMapLegend      StageName = "map_legend"
	StageMapGrid        StageName = "map_grid"
	StageMapResolve     StageName = "map_resolve"
	StageMapCompile     StageName = "map_compile"
)

// TitleOutput 标题阶段输出
type TitleOutput struct {
	Name string `json:"name" jsonschema:"minLength=10,maxLength=150" jsonschema_description:"Bundle title in Title Case, 2 to 6 words" validate:"required,min=10,max=150,title_case"`
}

// Normalize 去除首尾空白与引号
func (t *TitleOutput) Normalize() {
	t.Name = strings.Trim(strings.TrimSpace(t.Name), `"'`)
}

// TexturePick 重排序阶段输出：候选纹理的坐标
type TexturePick struct {
	X int `json:"x" jsonschema:"minimum=0" jsonschema_description:"x coordinate copied from the chosen candidate" validate:"min=0"`
	Y int `json:"y" jsonschema:"minimum=0" jsonschema_description:"y coordinate copied from the chosen candidate" validate:"min=0"`
}
