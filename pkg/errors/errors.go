// Package errors 对外暴露的业务错误码与到 HTTP 状态的映射
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 业务错误码：1xxx 通用，3xxx 资源，4xxx 生成链路
type ErrorCode string

const (
	CodeInvalidParam    ErrorCode = "1001"
	CodeNotFound        ErrorCode = "1004"
	CodeTooManyRequests ErrorCode = "1006"
	CodeInternalError   ErrorCode = "1007"

	CodeBundleNotFound ErrorCode = "3001"
	CodeJobNotFound    ErrorCode = "3002"

	CodeGenerationFailed  ErrorCode = "4001"
	CodeValidationFailed  ErrorCode = "4002"
	CodeRetrievalFailed   ErrorCode = "4003"
	CodeMapCompileFailed  ErrorCode = "4004"
	CodeIndexNotBuilt     ErrorCode = "4007"
	CodeGenerationTimeout ErrorCode = "4008"
)

var httpStatus = map[ErrorCode]int{
	CodeInvalidParam:      http.StatusBadRequest,
	CodeValidationFailed:  http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeBundleNotFound:    http.StatusNotFound,
	CodeJobNotFound:       http.StatusNotFound,
	CodeTooManyRequests:   http.StatusTooManyRequests,
	CodeIndexNotBuilt:     http.StatusServiceUnavailable,
	CodeGenerationFailed:  http.StatusBadGateway,
	CodeMapCompileFailed:  http.StatusBadGateway,
	CodeGenerationTimeout: http.StatusGatewayTimeout,
}

// StatusOf 未登记的错误码一律 500
func StatusOf(code ErrorCode) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError 可直接输出给调用方的错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := string(e.Code) + " " + e.Message
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同一错误码视为相同，预定义错误的副本仍能与原值匹配
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetail 返回副本，不修改预定义错误
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回带底层原因的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusOf(code)}
}

var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInternalError = New(CodeInternalError, "internal server error")

	ErrBundleNotFound = New(CodeBundleNotFound, "asset bundle not found")
	ErrJobNotFound    = New(CodeJobNotFound, "job not found")

	ErrGenerationFailed  = New(CodeGenerationFailed, "generation failed")
	ErrValidationFailed  = New(CodeValidationFailed, "validation failed")
	ErrRetrievalFailed   = New(CodeRetrievalFailed, "texture retrieval failed")
	ErrMapCompileFailed  = New(CodeMapCompileFailed, "map compilation failed")
	ErrIndexNotBuilt     = New(CodeIndexNotBuilt, "tileset index not built")
	ErrGenerationTimeout = New(CodeGenerationTimeout, "generation timed out")
)

// As 取错误链上的第一个 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
