// Package llm 提供 LLM 提供商工厂
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/workflow/port"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例
// 缓存键为 provider/model，同一提供商可按模型覆盖创建多个实例
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

var _ port.ChatModelFactory = (*EinoFactory)(nil)

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Resolve 补全默认提供商与模型
func (f *EinoFactory) Resolve(sel port.ModelSelection) (port.ModelSelection, config.ProviderConfig, error) {
	name := strings.TrimSpace(sel.Provider)
	if name == "" {
		name = f.config.DefaultProvider
	}
	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return port.ModelSelection{}, config.ProviderConfig{}, fmt.Errorf("provider %s not found in LLM config", name)
	}
	modelName := strings.TrimSpace(sel.Model)
	if modelName == "" {
		modelName = providerCfg.Model
	}
	if modelName == "" {
		return port.ModelSelection{}, config.ProviderConfig{}, fmt.Errorf("provider %s has no model configured", name)
	}
	return port.ModelSelection{Provider: name, Model: modelName}, providerCfg, nil
}

// Get 获取指定提供商与模型的 ChatModel
func (f *EinoFactory) Get(ctx context.Context, sel port.ModelSelection) (model.BaseChatModel, port.ModelSelection, error) {
	resolved, providerCfg, err := f.Resolve(sel)
	if err != nil {
		return nil, port.ModelSelection{}, err
	}
	key := resolved.Provider + "/" + resolved.Model

	f.mu.RLock()
	m, ok := f.models[key]
	f.mu.RUnlock()
	if ok {
		return m, resolved, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[key]; ok {
		return m, resolved, nil
	}

	mc := &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		Model:   resolved.Model,
		Timeout: providerCfg.Timeout,
	}
	if providerCfg.MaxTokens > 0 {
		maxTokens := providerCfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if providerCfg.Temperature > 0 {
		temperature := float32(providerCfg.Temperature)
		mc.Temperature = &temperature
	}

	chatModel, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, port.ModelSelection{}, fmt.Errorf("failed to create eino chat model for %s: %w", key, err)
	}

	f.models[key] = chatModel
	return chatModel, resolved, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, port.ModelSelection, error) {
	return f.Get(ctx, port.ModelSelection{})
}
