package retrieval

import "errors"

var (
	ErrUnknownCategory = errors.New("unknown tileset category")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrInvalidTopK     = errors.New("k must be positive")

	// ErrIndexNotBuilt 类别集合尚未构建或未加载，需先执行 bootstrap
	ErrIndexNotBuilt = errors.New("tileset index not built")

	// ErrEmptyCategory 类别集合为空，属于配置错误
	ErrEmptyCategory = errors.New("tileset category has no entries")

	ErrVectorDisabled = errors.New("vector retrieval is disabled")
)
