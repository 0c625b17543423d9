package mapgen

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"roguelike-forge-api/internal/domain/entity"
)

type nameSet map[string]struct{}

func newNameSet(names []string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func checkUnique(what string, names []string) error {
	seen := make(nameSet, len(names))
	for _, n := range names {
		if seen.has(n) {
			return fmt.Errorf("duplicate %s name %q", what, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func checkTextures(l *entity.TextureDescriptionList) error {
	return checkUnique("texture", l.Names())
}

func checkTilePresets(textures nameSet) func(*entity.TilePresetList) error {
	return func(l *entity.TilePresetList) error {
		var (
			names []string
			err   error
		)
		l.Each(func(role entity.TilePresetRole, p *entity.TilePreset) {
			names = append(names, p.Name)
			if err == nil && !textures.has(p.TextureID) {
				err = &ReferenceError{Kind: RefTexture, Name: p.TextureID, From: fmt.Sprintf("%s tile preset %s", role, p.Name)}
			}
		})
		if err != nil {
			return err
		}
		if err := checkUnique("tile preset", names); err != nil {
			return err
		}
		if _, ok := l.FirstWalkableEnvironment(); !ok {
			return errors.New("at least one environment tile preset must be walkable")
		}
		return nil
	}
}

func checkEntities(entityTiles nameSet) func(*entity.EntityPresetList) error {
	return func(l *entity.EntityPresetList) error {
		names := make([]string, 0, len(l.Items))
		for _, e := range l.Items {
			if !entityTiles.has(e.TilePreset) {
				return &ReferenceError{Kind: RefTilePreset, Name: e.TilePreset, From: "entity " + e.Name}
			}
			names = append(names, e.Name)
		}
		return checkUnique("entity", names)
	}
}

func checkItems(itemTiles nameSet) func(*entity.ItemPresetList) error {
	return func(l *entity.ItemPresetList) error {
		names := make([]string, 0, len(l.Items))
		for _, it := range l.Items {
			if !itemTiles.has(it.TilePreset) {
				return &ReferenceError{Kind: RefTilePreset, Name: it.TilePreset, From: "item " + it.Name}
			}
			names = append(names, it.Name)
		}
		return checkUnique("item", names)
	}
}

func checkLegend(tiles *entity.TilePresetList, entities, items nameSet) func(*entity.CharTileRepresentationList) error {
	presets := make(map[string]entity.TilePreset)
	tiles.Each(func(_ entity.TilePresetRole, p *entity.TilePreset) {
		presets[p.Name] = *p
	})

	return func(l *entity.CharTileRepresentationList) error {
		seen := make(map[rune]struct{}, len(l.Items))
		spawns := 0
		for _, c := range l.Items {
			if utf8.RuneCountInString(c.Char) != 1 {
				return fmt.Errorf("legend char %q must be exactly one character", c.Char)
			}
			r := c.Rune()
			if r == entity.VoidChar {
				return errors.New("legend char must not be a space")
			}
			if _, dup := seen[r]; dup {
				return fmt.Errorf("duplicate legend char %q", c.Char)
			}
			seen[r] = struct{}{}

			from := fmt.Sprintf("legend %q", c.Char)
			if c.Tile != nil {
				if _, ok := presets[*c.Tile]; !ok {
					return &ReferenceError{Kind: RefTilePreset, Name: *c.Tile, From: from}
				}
			}
			if c.Entity != nil && !entities.has(*c.Entity) {
				return &ReferenceError{Kind: RefEntity, Name: *c.Entity, From: from}
			}
			if c.Item != nil && !items.has(*c.Item) {
				return &ReferenceError{Kind: RefItem, Name: *c.Item, From: from}
			}

			if r == entity.PlayerChar {
				spawns++
				if c.Tile == nil || presets[*c.Tile].HasCollision {
					return errors.New("player spawn must stand on a walkable tile")
				}
				if c.Entity != nil || c.Item != nil {
					return errors.New("player spawn must not hold an entity or item")
				}
			}
		}
		if spawns != 1 {
			return fmt.Errorf("legend must define the player spawn %q exactly once", string(entity.PlayerChar))
		}
		return nil
	}
}

func checkGrid(legend *entity.CharTileRepresentationList) func(*entity.MapCharRepresentation) error {
	chars := make(map[rune]struct{}, len(legend.Items))
	for _, c := range legend.Items {
		chars[c.Rune()] = struct{}{}
	}

	return func(m *entity.MapCharRepresentation) error {
		width := -1
		spawns := 0
		for y, row := range m.Representation {
			n := utf8.RuneCountInString(row)
			if width == -1 {
				width = n
			} else if n != width {
				return fmt.Errorf("row %d has length %d, expected %d", y, n, width)
			}
			for x, r := range []rune(row) {
				if r == entity.VoidChar {
					continue
				}
				if _, ok := chars[r]; !ok {
					return fmt.Errorf("%w %q at %d,%d", ErrUnknownSymbol, string(r), x, y)
				}
				if r == entity.PlayerChar {
					spawns++
				}
			}
		}
		if width <= 0 {
			return errors.New("map grid is empty")
		}
		if spawns != 1 {
			return fmt.Errorf("%w: found %d", ErrPlayerSpawn, spawns)
		}
		return nil
	}
}
