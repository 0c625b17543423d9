package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 2 * time.Second, Max: 10 * time.Second, Factor: 2}
	tests := []struct {
		deliveries int
		want       time.Duration
	}{
		{-1, 2 * time.Second},
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 10 * time.Second},
		{5000, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.deliveries); got != tt.want {
			t.Fatalf("deliveries %d: expected %s, got %s", tt.deliveries, tt.want, got)
		}
	}
}

func TestStreamNames(t *testing.T) {
	if got := StreamForgeGen.DeadLetter(); got != "stream:forge:gen:dlq" {
		t.Fatalf("expected stream:forge:gen:dlq, got %q", got)
	}
	if ConsumerGroupGenWorkers != "forge-gen-workers" {
		t.Fatalf("expected forge-gen-workers, got %q", ConsumerGroupGenWorkers)
	}
}

func TestConsumerConfigDefaults(t *testing.T) {
	cfg := ConsumerConfig{Backoff: Backoff{Initial: time.Second, Max: 15 * time.Minute, Factor: 2}}.withDefaults()
	if cfg.Stream != StreamForgeGen || cfg.Group != ConsumerGroupGenWorkers {
		t.Fatalf("expected default stream and group, got %s/%s", cfg.Stream, cfg.Group)
	}
	if cfg.Name == "" {
		t.Fatal("expected a generated consumer name")
	}
	if cfg.MaxDeliveries != 3 {
		t.Fatalf("expected 3 deliveries, got %d", cfg.MaxDeliveries)
	}
	if cfg.ClaimMinIdle != 30*time.Minute {
		t.Fatalf("expected claim idle of twice the max backoff, got %s", cfg.ClaimMinIdle)
	}

	bad := ConsumerConfig{Backoff: Backoff{Initial: time.Second, Factor: 0.5}}.withDefaults()
	if bad.Backoff != defaultBackoff {
		t.Fatalf("expected default backoff for a shrinking factor, got %+v", bad.Backoff)
	}
}

func TestDecodeEntry(t *testing.T) {
	msg, err := NewMessage("job-1", MessageTypeGenerationJob, &GenerationJobMessage{JobID: "job-1", JobType: "map_gen", Theme: "crypt"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	msg.SetHeader("request_id", "req-9")
	data, _ := json.Marshal(msg)

	got, err := decodeEntry(redis.XMessage{ID: "1-0", Values: map[string]any{fieldData: string(data)}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header("request_id") != "req-9" {
		t.Fatalf("expected request id header, got %v", got.Metadata)
	}
	var payload GenerationJobMessage
	if err := got.Decode(&payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.JobType != "map_gen" || payload.Theme != "crypt" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	bad := []redis.XMessage{
		{ID: "2-0", Values: map[string]any{}},
		{ID: "3-0", Values: map[string]any{fieldData: "{"}},
	}
	for _, entry := range bad {
		if _, err := decodeEntry(entry); err == nil {
			t.Fatalf("entry %s: expected decode error", entry.ID)
		}
	}
}

func TestHandleJSON(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{Name: "test"})
	var got *GenerationJobMessage
	HandleJSON(c, MessageTypeGenerationJob, func(_ context.Context, p *GenerationJobMessage) error {
		got = p
		return nil
	})
	h := c.handlers[MessageTypeGenerationJob]

	msg, _ := NewMessage("job-3", MessageTypeGenerationJob, &GenerationJobMessage{JobID: "job-3"})
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got == nil || got.JobID != "job-3" {
		t.Fatalf("expected decoded payload, got %+v", got)
	}

	broken := &Message{ID: "job-4", Type: MessageTypeGenerationJob, Payload: json.RawMessage(`"nope"`)}
	if err := h(context.Background(), broken); !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error for bad payload, got %v", err)
	}
}
