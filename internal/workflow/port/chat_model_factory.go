package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ModelSelection 提供商与模型名；空值表示使用默认配置
type ModelSelection struct {
	Provider string
	Model    string
}

// ChatModelFactory 定义工作流层对 LLM ChatModel 的最小依赖（port）。
// 返回的 ModelSelection 为实际生效的提供商与模型，用于用量统计。
type ChatModelFactory interface {
	Get(ctx context.Context, sel ModelSelection) (model.BaseChatModel, ModelSelection, error)
}
