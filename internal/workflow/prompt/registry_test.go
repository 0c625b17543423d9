package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestRenderAllPrompts(t *testing.T) {
	r := NewRegistry()
	vars := map[string]any{
		"theme":             "zombie apocalypse",
		"description":       "A ruined city overrun by the dead.",
		"level_count":       6,
		"max_depth":         20,
		"enemy_count":       20,
		"weapon_count":      30,
		"asset_name":        "player",
		"asset_description": "a scavenger in a torn coat",
		"candidates":        "- (1, 2) torn coat",
		"texture_names":     "stone_floor",
		"entity_tiles":      "zombie_tile",
		"item_tiles":        "potion_tile",
		"tile_names":        "stone_floor_tile",
		"entity_names":      "zombie",
		"item_names":        "potion",
		"legend":            "# wall",
	}

	for _, id := range IDs() {
		t.Run(string(id), func(t *testing.T) {
			msgs, err := r.Render(context.Background(), id, vars)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if msgs[0].Role != schema.System || msgs[1].Role != schema.User {
				t.Fatalf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
			}
			if strings.TrimSpace(msgs[1].Content) == "" {
				t.Fatal("expected non-empty user message")
			}
		})
	}
}

func TestChatTemplateCached(t *testing.T) {
	r := NewRegistry()
	a, err := r.ChatTemplate(PromptBundleTitleV1)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	b, _ := r.ChatTemplate(PromptBundleTitleV1)
	if a != b {
		t.Fatal("expected cached template")
	}
	if _, err := r.ChatTemplate("nope"); err == nil {
		t.Fatal("expected error for unknown prompt id")
	}
}
