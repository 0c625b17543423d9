package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTheme 主题描述为空
	ErrEmptyTheme = errors.New("theme description is empty")
	// ErrUnresolvedTiles 组装时仍有未绑定纹理的元素
	ErrUnresolvedTiles = errors.New("bundle has unresolved tiles")
	// ErrPickNotCandidate 重排序选择的坐标不在候选列表中
	ErrPickNotCandidate = errors.New("picked texture is not one of the candidates")
)

// StageError 某个阶段失败导致整次生成中止
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("bundle stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
