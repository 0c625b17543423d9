package mapgen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"roguelike-forge-api/internal/domain/entity"
)

func strPtr(s string) *string { return &s }

func fixtureCatalogs() entity.MapCatalogs {
	return entity.MapCatalogs{
		Textures: entity.TextureDescriptionList{Items: []entity.TextureDescription{
			{Name: "mossy_stone", Description: "grey cobblestones with green moss in the cracks", Color: "#556B2F"},
			{Name: "cracked_floor", Description: "dusty floor slabs with long cracks and rubble", Color: "#A0A0A0"},
			{Name: "bone_floor", Description: "floor littered with small yellowed bones and dust", Color: "#DDD8B8"},
			{Name: "hero_sprite", Description: "hooded adventurer with a lantern and short sword", Color: "#3366CC"},
			{Name: "ghoul_sprite", Description: "hunched grey ghoul with long claws and white eyes", Color: "#778899"},
			{Name: "red_potion", Description: "small glass flask filled with bubbling red liquid", Color: "#CC0000"},
		}},
		Tiles: entity.TilePresetList{
			PlayerTilePreset: entity.TilePreset{Name: "hero", HasCollision: true, IsTransparent: true, TextureID: "hero_sprite"},
			EntitiesTilePresets: []entity.TilePreset{
				{Name: "ghoul_tile", HasCollision: true, IsTransparent: true, TextureID: "ghoul_sprite"},
			},
			EnvironmentTilePresets: []entity.TilePreset{
				{Name: "stone_wall", HasCollision: true, TextureID: "mossy_stone"},
				{Name: "stone_floor", HasCollision: false, IsTransparent: true, TextureID: "cracked_floor"},
				{Name: "bone_floor", HasCollision: false, IsTransparent: true, TextureID: "bone_floor"},
			},
			ItemsTilePresets: []entity.TilePreset{
				{Name: "potion_tile", IsTransparent: true, TextureID: "red_potion"},
			},
		},
		Entities: entity.EntityPresetList{Items: []entity.EntityPreset{
			{Name: "ghoul", TilePreset: "ghoul_tile", Threat: 3, EntityType: entity.EntityTypeEnemy, Description: "A starving ghoul."},
		}},
		Items: entity.ItemPresetList{Items: []entity.ItemPreset{
			{Name: "minor_potion", TilePreset: "potion_tile", ItemType: entity.ItemTypeHealingPotion, ItemRarity: 2, Description: "Heals a little."},
		}},
		Legend: entity.CharTileRepresentationList{Items: []entity.CharTileRepresentation{
			{Char: "#", Description: "wall", Tile: strPtr("stone_wall")},
			{Char: ".", Description: "floor", Tile: strPtr("stone_floor")},
			{Char: "g", Description: "ghoul on floor", Tile: strPtr("stone_floor"), Entity: strPtr("ghoul")},
			{Char: "!", Description: "potion on bones", Tile: strPtr("bone_floor"), Item: strPtr("minor_potion")},
			{Char: "@", Description: "player start", Tile: strPtr("stone_floor")},
		}},
		Grid: entity.MapCharRepresentation{Representation: []string{
			"######",
			"#@..g#",
			"#.  !#",
			"######",
		}},
	}
}

func fixtureTextures(c entity.MapCatalogs) map[string]entity.ResolvedMapTexture {
	out := make(map[string]entity.ResolvedMapTexture)
	for i, t := range c.Textures.Items {
		out[t.Name] = entity.ResolvedMapTexture{
			X: i, Y: i * 2, Color: t.Color,
			DescriptionFromTexture:     t.Description,
			DescriptionFromVectorStore: "tileset " + t.Name,
		}
	}
	return out
}

func TestCompileFixture(t *testing.T) {
	c := fixtureCatalogs()
	m, err := Compile(CompileInput{Catalogs: c, Textures: fixtureTextures(c)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if m.Turn != 0 || m.CurrentLayer != MainLayer {
		t.Fatalf("unexpected header turn=%d layer=%s", m.Turn, m.CurrentLayer)
	}
	layer := m.Layers[MainLayer]

	if got := m.Player.Entity.Tile.GridPosition; got != (entity.GridPosition{X: 1, Y: 1}) {
		t.Fatalf("expected spawn at 1,1, got %+v", got)
	}
	if m.Player.Entity.EntityName != "hero" || m.Player.Entity.Tile.Texture != "hero_sprite" {
		t.Fatalf("unexpected player %+v", m.Player.Entity)
	}
	if m.Player.Entity.MaxHealth != 100 || m.Player.HealPerTurns != 1 || m.Player.Entity.Tile.Preset != "warrior" {
		t.Fatalf("unexpected player defaults %+v", m.Player)
	}

	if got := layer.Tiles["0,0"]; got.Texture != "mossy_stone" || !got.HasCollision || got.Color != "#556B2F" {
		t.Fatalf("unexpected wall tile %+v", got)
	}
	ghoul, ok := layer.Entities["4,1"]
	if !ok {
		t.Fatal("expected ghoul at 4,1")
	}
	if ghoul.MaxHealth != 30 || ghoul.Health != 30 || ghoul.TurnsToMove != 1 || ghoul.BaseDamage != 5 || ghoul.Type != "enemy" {
		t.Fatalf("unexpected ghoul state %+v", ghoul)
	}
	if layer.Tiles["4,1"].Texture != "cracked_floor" {
		t.Fatal("expected floor under the ghoul")
	}
	potion, ok := layer.Items["4,2"]
	if !ok || potion.HealthIncrease != 10 || potion.Damage != 20 || potion.Type != entity.ItemTypeHealingPotion {
		t.Fatalf("unexpected potion %+v", potion)
	}

	if got := m.Textures["red_potion"]; got.DescriptionFromVectorStore != "tileset red_potion" || got.X != 5 {
		t.Fatalf("unexpected resolved texture %+v", got)
	}
}

func TestCompileVoidFallsBackToFirstWalkable(t *testing.T) {
	c := fixtureCatalogs()
	m, err := Compile(CompileInput{Catalogs: c})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	layer := m.Layers[MainLayer]
	for _, key := range []string{"2,2", "3,2"} {
		if got := layer.Tiles[key]; got.Texture != "cracked_floor" {
			t.Fatalf("expected first walkable stone_floor at %s, got %+v", key, got)
		}
	}

	c.Tiles.EnvironmentTilePresets = c.Tiles.EnvironmentTilePresets[:1]
	c.Tiles.EnvironmentTilePresets = append(c.Tiles.EnvironmentTilePresets, entity.TilePreset{Name: "stone_floor", HasCollision: true, TextureID: "cracked_floor"})
	c.Tiles.EnvironmentTilePresets = append(c.Tiles.EnvironmentTilePresets, entity.TilePreset{Name: "bone_floor", HasCollision: true, TextureID: "bone_floor"})
	m, err = Compile(CompileInput{Catalogs: c})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := m.Layers[MainLayer].Tiles["2,2"]; ok {
		t.Fatal("expected void cell to stay empty without a walkable preset")
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	c := fixtureCatalogs()
	in := CompileInput{Catalogs: c, Textures: fixtureTextures(c)}

	a, err := Compile(in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := Compile(in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatal("expected byte-identical output")
	}
	if !strings.Contains(string(ja), `"items":{"4,2"`) {
		t.Fatalf("expected items layer key, got %s", ja)
	}
}

func TestCompileLayerKeys(t *testing.T) {
	c := fixtureCatalogs()
	m, err := Compile(CompileInput{Catalogs: c, Textures: fixtureTextures(c)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc struct {
		Layers map[string]map[string]json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	layer, ok := doc.Layers[MainLayer]
	if !ok {
		t.Fatalf("expected layer %q, got %v", MainLayer, doc.Layers)
	}
	for _, key := range []string{"tiles", "entities", "items"} {
		if _, ok := layer[key]; !ok {
			t.Fatalf("expected main layer key %q, got %d keys", key, len(layer))
		}
	}
	if _, ok := layer["itens"]; ok {
		t.Fatal("expected no misspelled itens key")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *entity.MapCatalogs)
		kind   string
		target error
	}{
		{
			name:   "legend tile",
			mutate: func(c *entity.MapCatalogs) { c.Legend.Items[0].Tile = strPtr("lava") },
			kind:   RefTilePreset,
		},
		{
			name:   "legend entity",
			mutate: func(c *entity.MapCatalogs) { c.Legend.Items[2].Entity = strPtr("dragon") },
			kind:   RefEntity,
		},
		{
			name:   "legend item",
			mutate: func(c *entity.MapCatalogs) { c.Legend.Items[3].Item = strPtr("elixir") },
			kind:   RefItem,
		},
		{
			name:   "entity tile preset",
			mutate: func(c *entity.MapCatalogs) { c.Entities.Items[0].TilePreset = "stone_floor" },
			kind:   RefTilePreset,
		},
		{
			name:   "item tile preset",
			mutate: func(c *entity.MapCatalogs) { c.Items.Items[0].TilePreset = "missing" },
			kind:   RefTilePreset,
		},
		{
			name:   "preset texture",
			mutate: func(c *entity.MapCatalogs) { c.Tiles.EnvironmentTilePresets[0].TextureID = "gold" },
			kind:   RefTexture,
		},
		{
			name:   "unknown symbol",
			mutate: func(c *entity.MapCatalogs) { c.Grid.Representation[2] = "#.~ !#" },
			target: ErrUnknownSymbol,
		},
		{
			name:   "no spawn",
			mutate: func(c *entity.MapCatalogs) { c.Grid.Representation[1] = "#...g#" },
			target: ErrPlayerSpawn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixtureCatalogs()
			tt.mutate(&c)
			_, err := Compile(CompileInput{Catalogs: c})
			if tt.target != nil {
				if !errors.Is(err, tt.target) {
					t.Fatalf("expected %v, got %v", tt.target, err)
				}
				return
			}
			if !errors.Is(err, ErrDanglingReference) {
				t.Fatalf("expected ErrDanglingReference, got %v", err)
			}
			var refErr *ReferenceError
			if !errors.As(err, &refErr) || refErr.Kind != tt.kind {
				t.Fatalf("expected %s reference error, got %v", tt.kind, err)
			}
		})
	}
}

// randomCatalogs 生成引用一致的随机目录
func randomCatalogs(r *rand.Rand) entity.MapCatalogs {
	var c entity.MapCatalogs
	nTex := 3 + r.Intn(6)
	for i := 0; i < nTex; i++ {
		c.Textures.Items = append(c.Textures.Items, entity.TextureDescription{
			Name: fmt.Sprintf("tex_%d", i), Description: fmt.Sprintf("random texture number %d for testing", i), Color: "#123456",
		})
	}
	tex := func() string { return c.Textures.Items[r.Intn(nTex)].Name }

	c.Tiles.PlayerTilePreset = entity.TilePreset{Name: "player", TextureID: tex()}
	for i := 0; i < 1+r.Intn(3); i++ {
		c.Tiles.EntitiesTilePresets = append(c.Tiles.EntitiesTilePresets, entity.TilePreset{Name: fmt.Sprintf("ent_tile_%d", i), TextureID: tex()})
	}
	c.Tiles.EnvironmentTilePresets = append(c.Tiles.EnvironmentTilePresets, entity.TilePreset{Name: "env_0", HasCollision: false, TextureID: tex()})
	for i := 1; i < 1+r.Intn(4); i++ {
		c.Tiles.EnvironmentTilePresets = append(c.Tiles.EnvironmentTilePresets, entity.TilePreset{Name: fmt.Sprintf("env_%d", i), HasCollision: r.Intn(2) == 0, TextureID: tex()})
	}
	for i := 0; i < 1+r.Intn(3); i++ {
		c.Tiles.ItemsTilePresets = append(c.Tiles.ItemsTilePresets, entity.TilePreset{Name: fmt.Sprintf("item_tile_%d", i), TextureID: tex()})
	}

	for i := 0; i < 1+r.Intn(3); i++ {
		tile := c.Tiles.EntitiesTilePresets[r.Intn(len(c.Tiles.EntitiesTilePresets))].Name
		c.Entities.Items = append(c.Entities.Items, entity.EntityPreset{Name: fmt.Sprintf("enemy_%d", i), TilePreset: tile, Threat: 1 + r.Intn(10), EntityType: entity.EntityTypeEnemy, Description: "x"})
	}
	for i := 0; i < 1+r.Intn(3); i++ {
		tile := c.Tiles.ItemsTilePresets[r.Intn(len(c.Tiles.ItemsTilePresets))].Name
		c.Items.Items = append(c.Items.Items, entity.ItemPreset{Name: fmt.Sprintf("item_%d", i), TilePreset: tile, ItemType: entity.ItemTypeMeleeWeapon, ItemRarity: 1 + r.Intn(10), Description: "y"})
	}

	symbols := []rune("#.,:;abcdefgh")
	c.Legend.Items = append(c.Legend.Items, entity.CharTileRepresentation{Char: "@", Tile: strPtr("env_0")})
	for i := 0; i < 3+r.Intn(6); i++ {
		ch := entity.CharTileRepresentation{Char: string(symbols[i])}
		env := c.Tiles.EnvironmentTilePresets[r.Intn(len(c.Tiles.EnvironmentTilePresets))].Name
		ch.Tile = &env
		switch r.Intn(3) {
		case 1:
			ch.Entity = strPtr(c.Entities.Items[r.Intn(len(c.Entities.Items))].Name)
		case 2:
			ch.Item = strPtr(c.Items.Items[r.Intn(len(c.Items.Items))].Name)
		}
		c.Legend.Items = append(c.Legend.Items, ch)
	}

	w, h := 4+r.Intn(10), 3+r.Intn(8)
	spawn := r.Intn(w * h)
	for y := 0; y < h; y++ {
		row := make([]rune, w)
		for x := range row {
			switch {
			case y*w+x == spawn:
				row[x] = '@'
			case r.Intn(5) == 0:
				row[x] = ' '
			default:
				row[x] = []rune(c.Legend.Items[1+r.Intn(len(c.Legend.Items)-1)].Char)[0]
			}
		}
		c.Grid.Representation = append(c.Grid.Representation, string(row))
	}
	return c
}

func TestCompileRandomCatalogs(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		c := randomCatalogs(r)

		if err := checkLegend(&c.Tiles, newNameSet(presetNames(c.Entities)), newNameSet(itemNames(c.Items)))(&c.Legend); err != nil {
			t.Fatalf("case %d: legend check: %v", i, err)
		}
		if err := checkGrid(&c.Legend)(&c.Grid); err != nil {
			t.Fatalf("case %d: grid check: %v", i, err)
		}

		m, err := Compile(CompileInput{Catalogs: c})
		if err != nil {
			t.Fatalf("case %d: compile: %v", i, err)
		}
		cells := 0
		for _, row := range c.Grid.Representation {
			cells += len(row)
		}
		if got := len(m.Layers[MainLayer].Tiles); got != cells {
			t.Fatalf("case %d: expected every cell to have a tile (%d), got %d", i, cells, got)
		}
	}
}
