package mapgen

import (
	"fmt"
	"strconv"

	"roguelike-forge-api/internal/domain/entity"
)

// MainLayer 编译结果唯一的图层
const MainLayer = "main"

// 运行时默认数值
const (
	entityTurnsToMove = 1
	entityMaxHealth   = 30
	entityMaxMana     = 3
	entityBaseDamage  = 5

	itemHealthIncrease = 10
	itemDamage         = 20

	playerMaxHealth    = 100
	playerMaxMana      = 10
	playerBaseDamage   = 10
	playerHealPerTurns = 1
	playerPreset       = "warrior"
)

// CompileInput 编译所需的全部目录与已解析纹理
type CompileInput struct {
	Catalogs entity.MapCatalogs
	// Textures 纹理名 -> 瓦片集坐标；缺失的纹理只保留目录中的颜色与描述
	Textures map[string]entity.ResolvedMapTexture
}

func cellKey(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

// Compile 将六个阶段的目录编译为游戏运行时地图，不调用模型
//
// 相同输入的 JSON 编码逐字节一致。
func Compile(in CompileInput) (*entity.CompiledMap, error) {
	c := &in.Catalogs

	textures := make(map[string]entity.TextureDescription, len(c.Textures.Items))
	for _, t := range c.Textures.Items {
		textures[t.Name] = t
	}

	tileOf := func(p entity.TilePreset, role entity.TilePresetRole) (entity.TileState, error) {
		tex, ok := textures[p.TextureID]
		if !ok {
			return entity.TileState{}, &ReferenceError{Kind: RefTexture, Name: p.TextureID, From: fmt.Sprintf("%s tile preset %s", role, p.Name)}
		}
		return entity.TileState{
			Texture:       p.TextureID,
			Color:         tex.Color,
			HasCollision:  p.HasCollision,
			IsTransparent: p.IsTransparent,
		}, nil
	}

	// 预设名 -> 瓦片状态，按分区保存
	partitions := map[entity.TilePresetRole]map[string]entity.TileState{
		entity.TileRolePlayer:      {},
		entity.TileRoleEntities:    {},
		entity.TileRoleEnvironment: {},
		entity.TileRoleItems:       {},
	}
	allTiles := make(map[string]entity.TileState)
	var err error
	c.Tiles.Each(func(role entity.TilePresetRole, p *entity.TilePreset) {
		if err != nil {
			return
		}
		var st entity.TileState
		if st, err = tileOf(*p, role); err == nil {
			partitions[role][p.Name] = st
			allTiles[p.Name] = st
		}
	})
	if err != nil {
		return nil, err
	}

	entities := make(map[string]entity.EntityState, len(c.Entities.Items))
	for _, e := range c.Entities.Items {
		tile, ok := partitions[entity.TileRoleEntities][e.TilePreset]
		if !ok {
			return nil, &ReferenceError{Kind: RefTilePreset, Name: e.TilePreset, From: "entity " + e.Name}
		}
		entities[e.Name] = entity.EntityState{
			Type:        e.EntityType,
			EntityName:  e.Name,
			Tile:        tile,
			TurnsToMove: entityTurnsToMove,
			MaxHealth:   entityMaxHealth,
			Health:      entityMaxHealth,
			MaxMana:     entityMaxMana,
			Mana:        entityMaxMana,
			BaseDamage:  entityBaseDamage,
		}
	}

	items := make(map[string]entity.ItemState, len(c.Items.Items))
	for _, it := range c.Items.Items {
		tile, ok := partitions[entity.TileRoleItems][it.TilePreset]
		if !ok {
			return nil, &ReferenceError{Kind: RefTilePreset, Name: it.TilePreset, From: "item " + it.Name}
		}
		items[it.Name] = entity.ItemState{
			Name:           it.Name,
			Tile:           tile,
			Type:           it.ItemType,
			Description:    it.Description,
			HealthIncrease: itemHealthIncrease,
			Damage:         itemDamage,
		}
	}

	type cell struct {
		tile   *entity.TileState
		entity *entity.EntityState
		item   *entity.ItemState
	}
	legend := make(map[rune]cell, len(c.Legend.Items))
	for _, ch := range c.Legend.Items {
		from := fmt.Sprintf("legend %q", ch.Char)
		var cl cell
		if ch.Tile != nil {
			st, ok := allTiles[*ch.Tile]
			if !ok {
				return nil, &ReferenceError{Kind: RefTilePreset, Name: *ch.Tile, From: from}
			}
			cl.tile = &st
		}
		if ch.Entity != nil {
			es, ok := entities[*ch.Entity]
			if !ok {
				return nil, &ReferenceError{Kind: RefEntity, Name: *ch.Entity, From: from}
			}
			cl.entity = &es
		}
		if ch.Item != nil {
			is, ok := items[*ch.Item]
			if !ok {
				return nil, &ReferenceError{Kind: RefItem, Name: *ch.Item, From: from}
			}
			cl.item = &is
		}
		legend[ch.Rune()] = cl
	}

	var fallback *entity.TileState
	if p, ok := c.Tiles.FirstWalkableEnvironment(); ok {
		st := partitions[entity.TileRoleEnvironment][p.Name]
		fallback = &st
	}

	layer := entity.MapLayer{
		Tiles:    make(map[string]entity.TileState),
		Entities: make(map[string]entity.EntityState),
		Items:    make(map[string]entity.ItemState),
	}
	spawn := entity.GridPosition{}
	spawns := 0
	for y, row := range c.Grid.Representation {
		for x, r := range []rune(row) {
			key := cellKey(x, y)
			cl, ok := legend[r]
			switch {
			case ok:
				if cl.tile != nil {
					layer.Tiles[key] = *cl.tile
				}
				if cl.entity != nil {
					layer.Entities[key] = *cl.entity
				}
				if cl.item != nil {
					layer.Items[key] = *cl.item
				}
				if r == entity.PlayerChar {
					spawn = entity.GridPosition{X: x, Y: y}
					spawns++
				}
			case r == entity.VoidChar:
				if fallback != nil {
					layer.Tiles[key] = *fallback
				}
			default:
				return nil, fmt.Errorf("%w %q at %s", ErrUnknownSymbol, string(r), key)
			}
		}
	}
	if spawns != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrPlayerSpawn, spawns)
	}

	player := c.Tiles.PlayerTilePreset
	if _, ok := textures[player.TextureID]; !ok {
		return nil, &ReferenceError{Kind: RefTexture, Name: player.TextureID, From: "player tile preset " + player.Name}
	}

	resolved := make(map[string]entity.ResolvedMapTexture, len(textures))
	for name, t := range textures {
		r, ok := in.Textures[name]
		if !ok {
			r = entity.ResolvedMapTexture{Color: t.Color, DescriptionFromTexture: t.Description}
		}
		resolved[name] = r
	}

	return &entity.CompiledMap{
		Turn:         0,
		CurrentLayer: MainLayer,
		Layers:       map[string]entity.MapLayer{MainLayer: layer},
		Textures:     resolved,
		Player: entity.PlayerState{
			Entity: entity.PlayerEntity{
				MaxHealth:   playerMaxHealth,
				Health:      playerMaxHealth,
				MaxMana:     playerMaxMana,
				Mana:        playerMaxMana,
				BaseDamage:  playerBaseDamage,
				EntityName:  player.Name,
				TurnsToMove: entityTurnsToMove,
				Tile: entity.PlayerTile{
					GridPosition: spawn,
					IsExplored:   true,
					Preset:       playerPreset,
					Texture:      player.TextureID,
				},
			},
			HealPerTurns: playerHealPerTurns,
		},
	}, nil
}
