// Package service 定义跨层共享的调用上下文约定
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyPipeline llmCtxKey = "llm_pipeline"
	llmCtxKeyStage    llmCtxKey = "llm_stage"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

const unknownLabel = "unknown"

// WithPipeline 标记当前调用所属流水线（bundle / map）
func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return withValue(ctx, llmCtxKeyPipeline, pipeline)
}

// WithStage 标记当前调用所属阶段
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, llmCtxKeyStage, stage)
}

// WithProvider 标记当前调用使用的 LLM 提供商
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

func PipelineFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyPipeline)
}

func StageFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyStage)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyProvider)
}

func withValue(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknownLabel
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return unknownLabel
	}
	return s
}
