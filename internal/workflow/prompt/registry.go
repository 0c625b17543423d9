// Package prompt 管理内嵌的提示词模板
package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptBundleExpandV1         PromptID = "bundle_expand_v1"
	PromptBundleTitleV1          PromptID = "bundle_title_v1"
	PromptBundlePlayerV1         PromptID = "bundle_player_v1"
	PromptBundleDungeonLevelsV1  PromptID = "bundle_dungeon_levels_v1"
	PromptBundleEnemiesV1        PromptID = "bundle_enemies_v1"
	PromptBundleWeaponsV1        PromptID = "bundle_weapons_v1"
	PromptBundleFinalObjectiveV1 PromptID = "bundle_final_objective_v1"
	PromptTextureRerankV1        PromptID = "texture_rerank_v1"

	PromptMapTexturesV1    PromptID = "map_textures_v1"
	PromptMapTilePresetsV1 PromptID = "map_tile_presets_v1"
	PromptMapEntitiesV1    PromptID = "map_entities_v1"
	PromptMapItemsV1       PromptID = "map_items_v1"
	PromptMapLegendV1      PromptID = "map_legend_v1"
	PromptMapGridV1        PromptID = "map_grid_v1"
)

type promptFiles struct {
	system string
	user   string
}

// 资产包阶段共用同一个 system 模板，地图阶段同理
var promptTable = map[PromptID]promptFiles{
	PromptBundleExpandV1:         {"templates/bundle.system.txt", "templates/bundle_expand_v1.user.txt"},
	PromptBundleTitleV1:          {"templates/bundle.system.txt", "templates/bundle_title_v1.user.txt"},
	PromptBundlePlayerV1:         {"templates/bundle.system.txt", "templates/bundle_player_v1.user.txt"},
	PromptBundleDungeonLevelsV1:  {"templates/bundle.system.txt", "templates/bundle_dungeon_levels_v1.user.txt"},
	PromptBundleEnemiesV1:        {"templates/bundle.system.txt", "templates/bundle_enemies_v1.user.txt"},
	PromptBundleWeaponsV1:        {"templates/bundle.system.txt", "templates/bundle_weapons_v1.user.txt"},
	PromptBundleFinalObjectiveV1: {"templates/bundle.system.txt", "templates/bundle_final_objective_v1.user.txt"},
	PromptTextureRerankV1:        {"templates/texture_rerank_v1.system.txt", "templates/texture_rerank_v1.user.txt"},

	PromptMapTexturesV1:    {"templates/map.system.txt", "templates/map_textures_v1.user.txt"},
	PromptMapTilePresetsV1: {"templates/map.system.txt", "templates/map_tile_presets_v1.user.txt"},
	PromptMapEntitiesV1:    {"templates/map.system.txt", "templates/map_entities_v1.user.txt"},
	PromptMapItemsV1:       {"templates/map.system.txt", "templates/map_items_v1.user.txt"},
	PromptMapLegendV1:      {"templates/map.system.txt", "templates/map_legend_v1.user.txt"},
	PromptMapGridV1:        {"templates/map.system.txt", "templates/map_grid_v1.user.txt"},
}

// IDs 所有已注册模板
func IDs() []PromptID {
	ids := make([]PromptID, 0, len(promptTable))
	for id := range promptTable {
		ids = append(ids, id)
	}
	return ids
}

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	files, ok := promptTable[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	system, err := readEmbeddedText(files.system)
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(files.user)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染模板为消息列表
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", id, err)
	}
	return msgs, nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
