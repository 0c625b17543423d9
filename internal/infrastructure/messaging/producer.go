package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

const (
	defaultMaxLen = 10000
	fieldData     = "data"

	metaRequestID = "request_id"
	metaTraceID   = "trace_id"
)

// Producer 向 Redis Stream 追加任务消息，按 MaxLen 近似截断
type Producer struct {
	rdb    *redis.Client
	maxLen int64
}

func NewProducer(rdb *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{rdb: rdb, maxLen: maxLen}
}

// Publish 返回 stream 分配的条目 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.type", msg.Type),
			attribute.String("message.id", msg.ID),
		))
	defer span.End()

	stampContext(ctx, msg)
	encoded, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	entryID, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{fieldData: string(encoded)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	span.SetAttributes(attribute.String("stream.entry_id", entryID))
	return entryID, nil
}

// PublishGenJob 投递一个生成任务到 StreamForgeGen
func (p *Producer) PublishGenJob(ctx context.Context, job *GenerationJobMessage) (string, error) {
	msg, err := NewMessage(job.JobID, MessageTypeGenerationJob, job)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamForgeGen, msg)
}

// stampContext 把请求 ID 与 W3C trace 上下文写入消息元数据，worker 侧据此续接链路
func stampContext(ctx context.Context, msg *Message) {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetHeader(metaRequestID, reqID)
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	msg.SetHeader(metaTraceID, sc.TraceID().String())
	propagation.TraceContext{}.Inject(ctx, propagation.MapCarrier(msg.Metadata))
}

// resumeContext stampContext 的逆过程
func resumeContext(ctx context.Context, msg *Message) context.Context {
	if len(msg.Metadata) > 0 {
		ctx = propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier(msg.Metadata))
	}
	if reqID := msg.Header(metaRequestID); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.Header(metaTraceID); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}
	return ctx
}
