package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/internal/domain/service"
	"roguelike-forge-api/pkg/metrics"
	"roguelike-forge-api/pkg/tracer"
)

var einoTracer = otel.Tracer("eino")

// call 一次组件调用，OnStart 写入 ctx，OnEnd / OnError 取出
type call struct {
	start    time.Time
	provider string
	model    string
	span     trace.Span
}

type callKey struct{}

func beginCall(ctx context.Context, spanName, provider, modelName string, attrs ...attribute.KeyValue) context.Context {
	ctx, span := einoTracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	return context.WithValue(ctx, callKey{}, &call{start: time.Now(), provider: provider, model: modelName, span: span})
}

// endCall 没有对应 OnStart 时返回 nil
func endCall(ctx context.Context, err error) *call {
	c, ok := ctx.Value(callKey{}).(*call)
	if !ok {
		return nil
	}
	if err != nil {
		tracer.Fail(c.span, err)
	}
	c.span.End()
	return c
}

func (c *call) seconds() float64 { return time.Since(c.start).Seconds() }

func chatModelHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			provider := service.ProviderFromContext(ctx)
			modelName := ""
			if input != nil && input.Config != nil {
				modelName = input.Config.Model
			}
			attrs := []attribute.KeyValue{
				attribute.String("forge.pipeline", service.PipelineFromContext(ctx)),
				attribute.String("forge.stage", service.StageFromContext(ctx)),
				attribute.String("llm.provider", provider),
				attribute.String("llm.model", modelName),
			}
			if info != nil {
				attrs = append(attrs, attribute.String("eino.node_name", info.Name))
			}
			return beginCall(ctx, "llm.generate", provider, modelName, attrs...)
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			c := endCall(ctx, nil)
			if c == nil {
				return ctx
			}
			// 部分端点只在响应里回填模型名
			if output != nil && output.Config != nil && output.Config.Model != "" {
				c.model = output.Config.Model
			}
			metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, "success").Inc()
			metrics.LLMCallDuration.WithLabelValues(c.provider, c.model).Observe(c.seconds())

			if output == nil || output.TokenUsage == nil {
				return ctx
			}
			usage := output.TokenUsage
			metrics.LLMTokensUsed.WithLabelValues(c.provider, c.model, "prompt").Add(float64(usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.provider, c.model, "completion").Add(float64(usage.CompletionTokens))
			c.span.SetAttributes(
				attribute.Int("llm.prompt_tokens", usage.PromptTokens),
				attribute.Int("llm.completion_tokens", usage.CompletionTokens),
			)
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			if c := endCall(ctx, err); c != nil {
				metrics.LLMCallTotal.WithLabelValues(c.provider, c.model, "error").Inc()
				metrics.LLMCallDuration.WithLabelValues(c.provider, c.model).Observe(c.seconds())
			}
			return ctx
		},
	}
}

func embeddingHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, _ *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			n := 0
			if input != nil {
				n = len(input.Texts)
			}
			metrics.EmbeddingTexts.WithLabelValues().Add(float64(n))
			return beginCall(ctx, "embedding.embed", "", "", attribute.Int("embedding.texts", n))
		},
		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, _ *embedding.CallbackOutput) context.Context {
			if c := endCall(ctx, nil); c != nil {
				metrics.EmbeddingDuration.WithLabelValues("success").Observe(c.seconds())
			}
			return ctx
		},
		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			if c := endCall(ctx, err); c != nil {
				metrics.EmbeddingDuration.WithLabelValues("error").Observe(c.seconds())
			}
			return ctx
		},
	}
}
