package structured

import (
	"errors"
	"fmt"
)

// ValidationKind 校验失败类别
type ValidationKind string

const (
	KindSyntax ValidationKind = "syntax" // 非法 JSON
	KindShape  ValidationKind = "shape"  // JSON 类型与结构不匹配
	KindRules  ValidationKind = "rules"  // 标签规则（范围、枚举、格式）
	KindCheck  ValidationKind = "check"  // 跨字段检查（数量、顺序、引用）
	KindEmpty  ValidationKind = "empty"  // 空响应
)

// ErrEmptyResponse 模型返回空消息
var ErrEmptyResponse = errors.New("empty llm response")

// ValidationError 模型输出不符合约束
type ValidationError struct {
	Stage string
	Kind  ValidationKind
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %s: %s validation failed: %v", e.Stage, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError 是否为输出校验失败
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExhaustedError 重试预算耗尽
type ExhaustedError struct {
	Stage    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
