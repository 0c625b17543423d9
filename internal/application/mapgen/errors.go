package mapgen

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTheme 主题描述为空
	ErrEmptyTheme = errors.New("theme description is empty")
	// ErrDanglingReference 名称引用在上游目录中不存在
	ErrDanglingReference = errors.New("dangling reference")
	// ErrUnknownSymbol 网格中出现图例外的字符
	ErrUnknownSymbol = errors.New("unknown map symbol")
	// ErrPlayerSpawn 网格中的 '@' 不是恰好一个
	ErrPlayerSpawn = errors.New("map must contain exactly one player spawn")
)

// 引用种类
const (
	RefTexture    = "texture"
	RefTilePreset = "tile_preset"
	RefEntity     = "entity"
	RefItem       = "item"
)

// ReferenceError 悬空引用
type ReferenceError struct {
	Kind string
	Name string
	From string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: %s %q referenced by %s", ErrDanglingReference, e.Kind, e.Name, e.From)
}

func (e *ReferenceError) Unwrap() error {
	return ErrDanglingReference
}

// StageError 地图生成阶段失败
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("map stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
