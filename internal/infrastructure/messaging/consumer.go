package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
)

// Handler 处理一条消息；返回错误时消息留在 pending 列表等待重投
type Handler func(ctx context.Context, msg *Message) error

// ErrPermanent handler 返回包装了它的错误时消息直接进入死信流
var ErrPermanent = errors.New("permanent failure")

var errMaxDeliveries = errors.New("message exceeded max deliveries")

// RedisStreamProcessed 的 status 标签
const (
	outcomeSuccess    = "success"
	outcomeRetry      = "retry"
	outcomeDeadLetter = "dead_letter"
	outcomeInvalid    = "invalid"
	outcomeUnhandled  = "unhandled"
)

const (
	pendingBatch  = 20
	readErrorWait = time.Second
	watchInterval = time.Minute
)

// ConsumerConfig 零值字段使用默认值
type ConsumerConfig struct {
	Stream Stream
	Group  ConsumerGroup
	// Name 消费者名，默认 hostname-pid
	Name          string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	// ClaimMinIdle 其他消费者的 pending 消息空闲超过该时长后被接管
	ClaimMinIdle  time.Duration
	MaxDeliveries int
	Backoff       Backoff
	// DeadLetterAlert 死信流长度超过该值时告警
	DeadLetterAlert int64
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Stream == "" {
		c.Stream = StreamForgeGen
	}
	if c.Group == "" {
		c.Group = ConsumerGroupGenWorkers
	}
	if c.Name == "" {
		c.Name = defaultConsumerName()
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 30 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Factor < 1 {
		c.Backoff = defaultBackoff
	}
	// 一次生成可能持续十几分钟，接管阈值要大于单次运行时长
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = max(20*time.Minute, 2*c.Backoff.Max)
	}
	if c.DeadLetterAlert <= 0 {
		c.DeadLetterAlert = 100
	}
	return c
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Consumer 消费者组成员。失败消息按退避时间重投，投递次数用尽后写入死信流。
// Handle 需在 Run 之前调用。
type Consumer struct {
	rdb      *redis.Client
	cfg      ConsumerConfig
	handlers map[string]Handler
}

func NewConsumer(rdb *redis.Client, cfg ConsumerConfig) *Consumer {
	return &Consumer{rdb: rdb, cfg: cfg.withDefaults(), handlers: make(map[string]Handler)}
}

func (c *Consumer) Name() string { return c.cfg.Name }

func (c *Consumer) Handle(kind string, h Handler) {
	c.handlers[kind] = h
}

// HandleJSON 注册类型化 handler；载荷无法解析视为永久失败
func HandleJSON[T any](c *Consumer, kind string, fn func(ctx context.Context, payload *T) error) {
	c.Handle(kind, func(ctx context.Context, msg *Message) error {
		payload := new(T)
		if err := msg.Decode(payload); err != nil {
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return fn(ctx, payload)
	})
}

// Run 创建消费者组并阻塞消费，ctx 取消后在当前消息处理完时返回 nil
func (c *Consumer) Run(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.cfg.Group, err)
	}

	log := logger.FromContext(ctx)
	log.Info("consumer started", "stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Name)
	defer log.Info("consumer stopped", "consumer", c.cfg.Name)

	var lastReclaim time.Time
	for ctx.Err() == nil {
		c.retryDue(ctx)
		if time.Since(lastReclaim) >= c.cfg.ClaimInterval {
			c.reclaimStale(ctx)
			lastReclaim = time.Now()
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.cfg.Group),
			Consumer: c.cfg.Name,
			Streams:  []string{string(c.cfg.Stream), ">"},
			Count:    1,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			log.Error("failed to read from stream", "error", err)
			sleep(ctx, readErrorWait)
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				c.process(ctx, entry)
			}
		}
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, entry redis.XMessage) {
	msg, err := decodeEntry(entry)
	if err != nil {
		logger.FromContext(ctx).Error("invalid stream entry", "error", err, "message_id", entry.ID)
		c.ack(ctx, entry.ID)
		c.count(outcomeInvalid)
		return
	}

	ctx = resumeContext(ctx, msg)
	ctx, span := tracer.Start(ctx, "consumer.process", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("stream", string(c.cfg.Stream)),
			attribute.String("stream.entry_id", entry.ID),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)

	h, ok := c.handlers[msg.Type]
	if !ok {
		logger.FromContext(ctx).Warn("no handler for message type", "type", msg.Type)
		c.ack(ctx, entry.ID)
		c.count(outcomeUnhandled)
		return
	}

	if err := h(ctx, msg); err != nil {
		span.RecordError(err)
		c.settleFailure(ctx, entry.ID, msg, err)
		return
	}
	c.ack(ctx, entry.ID)
	c.count(outcomeSuccess)
}

func (c *Consumer) settleFailure(ctx context.Context, entryID string, msg *Message, cause error) {
	log := logger.FromContext(ctx)
	deliveries := c.deliveries(ctx, entryID)
	if errors.Is(cause, ErrPermanent) || deliveries >= c.cfg.MaxDeliveries {
		log.Warn("message moved to dead letter stream", "error", cause, "deliveries", deliveries)
		c.bury(ctx, msg, cause)
		c.ack(ctx, entryID)
		return
	}
	log.Error("handler failed, message left pending", "error", cause, "deliveries", deliveries)
	c.count(outcomeRetry)
}

// deliveries XPENDING 记录的投递次数
func (c *Consumer) deliveries(ctx context.Context, entryID string) int {
	p, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  entryID,
		End:    entryID,
		Count:  1,
	}).Result()
	if err != nil || len(p) == 0 {
		return 0
	}
	return int(p[0].RetryCount)
}

type deadLetter struct {
	Stream   string   `json:"original_stream"`
	Message  *Message `json:"data"`
	Error    string   `json:"error"`
	FailedAt int64    `json:"failed_at"`
}

func (c *Consumer) bury(ctx context.Context, msg *Message, cause error) {
	c.count(outcomeDeadLetter)
	data, err := json.Marshal(deadLetter{
		Stream:   string(c.cfg.Stream),
		Message:  msg,
		Error:    cause.Error(),
		FailedAt: time.Now().Unix(),
	})
	if err == nil {
		err = c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: c.cfg.Stream.DeadLetter(),
			Values: map[string]any{fieldData: string(data)},
		}).Err()
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to write dead letter", "error", err, "message_id", msg.ID)
	}
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.rdb.XAck(ctx, string(c.cfg.Stream), string(c.cfg.Group), entryID).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", entryID)
	}
}

func (c *Consumer) count(outcome string) {
	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), outcome).Inc()
}

// pending owner 为空时列出整个组
func (c *Consumer) pending(ctx context.Context, owner string) []redis.XPendingExt {
	p, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Start:    "-",
		End:      "+",
		Count:    pendingBatch,
		Consumer: owner,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		logger.FromContext(ctx).Error("failed to list pending messages", "error", err)
	}
	return p
}

// retryDue 重投本消费者名下退避已到期的消息
func (c *Consumer) retryDue(ctx context.Context) {
	for _, p := range c.pending(ctx, c.cfg.Name) {
		if int(p.RetryCount) >= c.cfg.MaxDeliveries {
			c.takeOver(ctx, p, 0)
			continue
		}
		wait := c.cfg.Backoff.Delay(int(p.RetryCount))
		if p.Idle >= wait {
			c.takeOver(ctx, p, wait)
		}
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pending(ctx, "") {
		if p.Consumer != c.cfg.Name && p.Idle >= c.cfg.ClaimMinIdle {
			c.takeOver(ctx, p, c.cfg.ClaimMinIdle)
		}
	}
}

// takeOver XCLAIM 成功后重新处理；投递次数已用尽的直接进入死信流
func (c *Consumer) takeOver(ctx context.Context, p redis.XPendingExt, minIdle time.Duration) {
	entries, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.Name,
		MinIdle:  minIdle,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", p.ID)
		return
	}

	exhausted := int(p.RetryCount) >= c.cfg.MaxDeliveries
	for _, entry := range entries {
		if !exhausted {
			c.process(ctx, entry)
			continue
		}
		if msg, err := decodeEntry(entry); err == nil {
			c.bury(ctx, msg, errMaxDeliveries)
		}
		c.ack(ctx, entry.ID)
	}
}

// WatchDeadLetters 周期上报死信流长度，直到 ctx 取消
func (c *Consumer) WatchDeadLetters(ctx context.Context) {
	dlq := c.cfg.Stream.DeadLetter()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := c.rdb.XLen(ctx, dlq).Result()
		if err != nil {
			continue
		}
		metrics.StreamDeadLetters.WithLabelValues(string(c.cfg.Stream)).Set(float64(n))
		if n > c.cfg.DeadLetterAlert {
			logger.FromContext(ctx).Warn("dead letter stream is growing", "stream", dlq, "count", n)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
