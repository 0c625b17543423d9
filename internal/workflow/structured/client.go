// Package structured 提供带 Schema 约束、重试预算与用量统计的 LLM 结构化生成
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/service"
	"roguelike-forge-api/pkg/logger"
)

// Checker 输出类型可选实现的跨字段检查
type Checker interface {
	Check() error
}

// normalizer 输出类型可选实现的解码后规范化
type normalizer interface {
	Normalize()
}

// ClientOptions 客户端参数
type ClientOptions struct {
	Provider    string
	Model       string
	Temperature *float32
	MaxTokens   *int
	Policy      RetryPolicy
	Usage       *UsageAccumulator
}

// Client 包装 Eino ChatModel 的结构化生成客户端
type Client struct {
	chat       model.BaseChatModel
	opts       ClientOptions
	promptOnly atomic.Bool
}

// NewClient 创建结构化生成客户端
func NewClient(chat model.BaseChatModel, opts ClientOptions) *Client {
	if opts.Usage == nil {
		opts.Usage = NewUsageAccumulator()
	}
	return &Client{chat: chat, opts: opts}
}

// Usage 当前会话的用量累加器
func (c *Client) Usage() *UsageAccumulator {
	return c.opts.Usage
}

// Provider 提供商名
func (c *Client) Provider() string {
	return c.opts.Provider
}

// ModelName 用量统计所用的模型名
func (c *Client) ModelName() string {
	if m := strings.TrimSpace(c.opts.Model); m != "" {
		return m
	}
	if p := strings.TrimSpace(c.opts.Provider); p != "" {
		return p
	}
	return "unknown"
}

// PromptOnly 是否已降级为 prompt-only 模式
func (c *Client) PromptOnly() bool {
	return c.promptOnly.Load()
}

func (c *Client) modelOptions() []model.Option {
	opts := make([]model.Option, 0, 4)
	if c.opts.Temperature != nil {
		opts = append(opts, model.WithTemperature(*c.opts.Temperature))
	}
	if c.opts.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*c.opts.MaxTokens))
	}
	if m := strings.TrimSpace(c.opts.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}
	return opts
}

// complete 执行一次模型调用并记录用量；sch 为空时为自由文本
func (c *Client) complete(ctx context.Context, stage string, msgs []*schema.Message, sch map[string]any) (string, error) {
	if c == nil || c.chat == nil {
		return "", fmt.Errorf("chat model not configured")
	}

	var (
		out *schema.Message
		err error
	)
	if sch != nil && !c.promptOnly.Load() {
		out, err = c.chat.Generate(ctx, msgs, append(c.modelOptions(), responseFormatOption(stage, sch))...)
		if err != nil && IsResponseFormatUnsupportedError(err) {
			c.promptOnly.Store(true)
			logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
				"provider", c.opts.Provider,
				"model", c.ModelName(),
				"stage", stage,
				"error", err.Error(),
			)
			out, err = nil, nil
		}
	}
	if out == nil && err == nil {
		input := msgs
		if sch != nil {
			input = withSchemaInstruction(msgs, sch)
		}
		out, err = c.chat.Generate(ctx, input, c.modelOptions()...)
	}
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", ErrEmptyResponse
	}

	var usage *schema.TokenUsage
	if out.ResponseMeta != nil {
		usage = out.ResponseMeta.Usage
	}
	c.opts.Usage.Add(stage, c.ModelName(), usage)
	return out.Content, nil
}

// withSchemaInstruction 复制消息并在最后一条消息追加 Schema 说明
func withSchemaInstruction(msgs []*schema.Message, sch map[string]any) []*schema.Message {
	out := make([]*schema.Message, len(msgs))
	copy(out, msgs)
	if len(out) == 0 {
		return []*schema.Message{schema.UserMessage(strings.TrimSpace(schemaInstruction(sch)))}
	}
	last := *out[len(out)-1]
	last.Content += schemaInstruction(sch)
	out[len(out)-1] = &last
	return out
}

// Generate 生成并校验 T 类型的结构化输出
//
// 失败（调用错误、超时、解码或校验失败）在重试预算内重试。
func Generate[T any](ctx context.Context, c *Client, stage string, msgs []*schema.Message, checks ...func(*T) error) (*T, error) {
	sch, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	ctx = service.WithStage(ctx, stage)

	return Retry(ctx, c.opts.Policy, func(ctx context.Context, attempt int) (*T, error) {
		content, err := c.complete(ctx, stage, msgs, sch)
		if err == nil {
			var out *T
			out, err = decode[T](stage, content, checks)
			if err == nil {
				return out, nil
			}
		}
		c.opts.Usage.AddFailure(stage, c.ModelName())
		return nil, err
	})
}

// GenerateText 自由文本生成，空响应视为校验失败
func GenerateText(ctx context.Context, c *Client, stage string, msgs []*schema.Message) (string, error) {
	ctx = service.WithStage(ctx, stage)

	return Retry(ctx, c.opts.Policy, func(ctx context.Context, attempt int) (string, error) {
		content, err := c.complete(ctx, stage, msgs, nil)
		if err == nil {
			if text := strings.TrimSpace(content); text != "" {
				return text, nil
			}
			err = &ValidationError{Stage: stage, Kind: KindEmpty, Err: ErrEmptyResponse}
		}
		c.opts.Usage.AddFailure(stage, c.ModelName())
		return "", err
	})
}

func decode[T any](stage, content string, checks []func(*T) error) (*T, error) {
	raw := ExtractJSONObject(content)
	if raw == "" {
		return nil, &ValidationError{Stage: stage, Kind: KindEmpty, Err: ErrEmptyResponse}
	}

	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		kind := KindSyntax
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			kind = KindShape
		}
		return nil, &ValidationError{Stage: stage, Kind: kind, Err: err}
	}

	if n, ok := any(out).(normalizer); ok {
		n.Normalize()
	}

	if reflect.TypeOf(out).Elem().Kind() == reflect.Struct {
		if err := entity.Validate(out); err != nil {
			return nil, &ValidationError{Stage: stage, Kind: KindRules, Err: err}
		}
	}

	if ch, ok := any(out).(Checker); ok {
		if err := ch.Check(); err != nil {
			return nil, &ValidationError{Stage: stage, Kind: KindCheck, Err: err}
		}
	}
	for _, check := range checks {
		if check == nil {
			continue
		}
		if err := check(out); err != nil {
			return nil, &ValidationError{Stage: stage, Kind: KindCheck, Err: err}
		}
	}
	return out, nil
}
