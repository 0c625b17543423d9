// Package messaging 提供基于 Redis Stream 的生成任务队列
package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream Redis Stream 名称
type Stream string

// ConsumerGroup 消费者组名称
type ConsumerGroup string

const (
	StreamForgeGen          Stream        = "stream:forge:gen"
	ConsumerGroupGenWorkers ConsumerGroup = "forge-gen-workers"

	// MessageTypeGenerationJob 载荷为 GenerationJobMessage
	MessageTypeGenerationJob = "generation_job"
)

// DeadLetter 死信流名称
func (s Stream) DeadLetter() string {
	return string(s) + ":dlq"
}

// Message 写入 stream data 字段的信封；Metadata 携带请求 ID 与 trace 上下文
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// GenerationJobMessage 生成任务载荷，任务详情从任务表读取
type GenerationJobMessage struct {
	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Theme   string `json:"theme"`
}

func NewMessage(id, kind string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Message{ID: id, Type: kind, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}

func (m *Message) Header(key string) string {
	return m.Metadata[key]
}

func (m *Message) SetHeader(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, 4)
	}
	m.Metadata[key] = value
}

// Decode 解析载荷到 v
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload of %s: %w", m.Type, m.ID, err)
	}
	return nil
}

func decodeEntry(entry redis.XMessage) (*Message, error) {
	raw, ok := entry.Values[fieldData].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry %s has no %s field", entry.ID, fieldData)
	}
	msg := new(Message)
	if err := json.Unmarshal([]byte(raw), msg); err != nil {
		return nil, fmt.Errorf("decode stream entry %s: %w", entry.ID, err)
	}
	return msg, nil
}

// Backoff 失败消息再次投递前的等待：Initial * Factor^deliveries，不超过 Max
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

var defaultBackoff = Backoff{Initial: 2 * time.Second, Max: time.Minute, Factor: 2}

// Delay deliveries 为已投递次数
func (b Backoff) Delay(deliveries int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Factor, float64(max(deliveries, 0)))
	if d > float64(b.Max) || math.IsInf(d, 0) {
		return b.Max
	}
	return time.Duration(d)
}
