package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"roguelike-forge-api/internal/config"
)

func TestTilesSchema(t *testing.T) {
	s := TilesSchema("forge_tiles_items", 8)
	if s.CollectionName != "forge_tiles_items" {
		t.Fatalf("unexpected collection name %q", s.CollectionName)
	}

	fields := map[string]*entity.Field{}
	for _, f := range s.Fields {
		fields[f.Name] = f
	}
	for _, name := range []string{fieldTileID, fieldDescription, fieldImage, fieldX, fieldY, fieldVector} {
		if fields[name] == nil {
			t.Fatalf("expected field %s", name)
		}
	}
	if !fields[fieldTileID].PrimaryKey {
		t.Fatal("expected tile_id to be the primary key")
	}
	if got := fields[fieldVector].TypeParams["dim"]; got != "8" {
		t.Fatalf("expected dim 8, got %q", got)
	}
	if got := TilesSchema("x", 0).Fields[5].TypeParams["dim"]; got != "1536" {
		t.Fatalf("expected default dim 1536, got %q", got)
	}
}

func TestCollectionName(t *testing.T) {
	c := &Client{config: &config.MilvusConfig{CollectionPrefix: "forge"}}
	if got := c.CollectionName(TilesCollection("entities")); got != "forge_tiles_entities" {
		t.Fatalf("expected forge_tiles_entities, got %q", got)
	}
	c.config.CollectionPrefix = ""
	if got := c.CollectionName(TilesCollection("items")); got != "tiles_items" {
		t.Fatalf("expected tiles_items, got %q", got)
	}
}
