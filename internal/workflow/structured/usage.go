package structured

import (
	"sync"

	"github.com/cloudwego/eino/schema"

	"roguelike-forge-api/internal/domain/entity"
)

// UsageAccumulator 单次会话内的 Token 用量累加器，并发安全
type UsageAccumulator struct {
	mu      sync.Mutex
	byModel map[string]entity.ModelUsage
	byStage map[string]entity.ModelUsage
}

// NewUsageAccumulator 创建累加器
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{
		byModel: make(map[string]entity.ModelUsage),
		byStage: make(map[string]entity.ModelUsage),
	}
}

// Add 记录一次已收到的响应
func (u *UsageAccumulator) Add(stage, modelName string, usage *schema.TokenUsage) {
	if u == nil {
		return
	}
	delta := entity.ModelUsage{Calls: 1}
	if usage != nil {
		delta.InputTokens = usage.PromptTokens
		delta.OutputTokens = usage.CompletionTokens
		delta.TotalTokens = usage.TotalTokens
		if delta.TotalTokens == 0 {
			delta.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}
	u.merge(stage, modelName, delta)
}

// AddFailure 记录一次失败的尝试
func (u *UsageAccumulator) AddFailure(stage, modelName string) {
	if u == nil {
		return
	}
	u.merge(stage, modelName, entity.ModelUsage{FailedAttempts: 1})
}

func (u *UsageAccumulator) merge(stage, modelName string, delta entity.ModelUsage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.byModel[modelName] = u.byModel[modelName].Add(delta)
	u.byStage[stage] = u.byStage[stage].Add(delta)
}

// Snapshot 按模型名汇总的用量副本
func (u *UsageAccumulator) Snapshot() entity.UsageMetadata {
	if u == nil {
		return entity.UsageMetadata{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(entity.UsageMetadata, len(u.byModel))
	for k, v := range u.byModel {
		out[k] = v
	}
	return out
}

// PerStage 按阶段汇总的用量副本
func (u *UsageAccumulator) PerStage() map[string]entity.ModelUsage {
	if u == nil {
		return map[string]entity.ModelUsage{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]entity.ModelUsage, len(u.byStage))
	for k, v := range u.byStage {
		out[k] = v
	}
	return out
}
