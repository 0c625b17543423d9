package job

import "errors"

var (
	// ErrUnknownJobType 不支持的任务类型
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrEmptyTheme 主题为空
	ErrEmptyTheme = errors.New("job theme is empty")
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("job not found")
)
