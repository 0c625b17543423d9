package structured

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type step func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error)

type scriptedModel struct {
	mu    sync.Mutex
	calls int
	steps []step
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	return m.steps[i](ctx, input)
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func reply(content string) step {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return &schema.Message{
			Role:    schema.Assistant,
			Content: content,
			ResponseMeta: &schema.ResponseMeta{
				Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			},
		}, nil
	}
}

func fail(err error) step {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, err
	}
}

func repeat(s step, n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = s
	}
	return out
}

type monster struct {
	Name  string `json:"name" validate:"required"`
	Level int    `json:"level" jsonschema:"minimum=1,maximum=10" validate:"min=1,max=10"`
}

type monsterPack struct {
	Items []monster `json:"items" validate:"required,min=1,dive"`
}

func (p *monsterPack) Check() error {
	seen := map[string]bool{}
	for _, m := range p.Items {
		if seen[m.Name] {
			return fmt.Errorf("duplicate monster %q", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

func newTestClient(m model.BaseChatModel, policy RetryPolicy) *Client {
	return NewClient(m, ClientOptions{Provider: "test", Model: "test-model", Policy: policy})
}

func prompt() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage("You design monsters."),
		schema.UserMessage("Create a monster."),
	}
}

func TestGenerateSucceedsOnFifthAttempt(t *testing.T) {
	steps := append(repeat(reply(`{"name": "ghoul", "level": 42}`), 4), reply(`{"name": "ghoul", "level": 4}`))
	m := &scriptedModel{steps: steps}
	c := newTestClient(m, RetryPolicy{})

	out, err := Generate[monster](context.Background(), c, "monster", prompt())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Name != "ghoul" || out.Level != 4 {
		t.Fatalf("unexpected output %+v", out)
	}
	if m.Calls() != 5 {
		t.Fatalf("expected 5 calls, got %d", m.Calls())
	}

	usage := c.Usage().Snapshot()["test-model"]
	if usage.Calls != 5 || usage.InputTokens != 50 || usage.OutputTokens != 25 {
		t.Fatalf("expected usage for 5 responses, got %+v", usage)
	}
	if usage.FailedAttempts != 4 {
		t.Fatalf("expected 4 failed attempts, got %d", usage.FailedAttempts)
	}
	if stage := c.Usage().PerStage()["monster"]; stage.Calls != 5 {
		t.Fatalf("expected per-stage calls 5, got %+v", stage)
	}
}

func TestGenerateExhaustsBudget(t *testing.T) {
	m := &scriptedModel{steps: []step{reply("not json at all")}}
	c := newTestClient(m, RetryPolicy{})

	_, err := Generate[monster](context.Background(), c, "monster", prompt())
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 5 || exhausted.Stage != "monster" {
		t.Fatalf("unexpected exhausted error %+v", exhausted)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected last error to be a ValidationError, got %v", exhausted.Last)
	}
	if m.Calls() != 5 {
		t.Fatalf("expected 5 calls, got %d", m.Calls())
	}
}

func TestGenerateValidationKinds(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    ValidationKind
	}{
		{name: "syntax", content: `{"name": "ghoul", `, kind: KindSyntax},
		{name: "shape", content: `{"name": 7, "level": 1}`, kind: KindShape},
		{name: "rules", content: `{"name": "", "level": 1}`, kind: KindRules},
		{name: "empty", content: "   ", kind: KindEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{steps: []step{reply(tt.content)}}
			c := newTestClient(m, RetryPolicy{MaxAttempts: 1})

			_, err := Generate[monster](context.Background(), c, "monster", prompt())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, ve.Kind)
			}
		})
	}
}

func TestGenerateRunsChecks(t *testing.T) {
	m := &scriptedModel{steps: []step{
		reply(`{"items": [{"name": "rat", "level": 1}, {"name": "rat", "level": 2}]}`),
		reply(`{"items": [{"name": "rat", "level": 1}]}`),
		reply(`{"items": [{"name": "rat", "level": 1}, {"name": "bat", "level": 2}]}`),
	}}
	c := newTestClient(m, RetryPolicy{})

	wantTwo := func(p *monsterPack) error {
		if len(p.Items) != 2 {
			return fmt.Errorf("expected 2 monsters, got %d", len(p.Items))
		}
		return nil
	}
	out, err := Generate(context.Background(), c, "pack", prompt(), wantTwo)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(out.Items) != 2 || m.Calls() != 3 {
		t.Fatalf("expected third response to pass, got %d items after %d calls", len(out.Items), m.Calls())
	}
}

func TestGenerateAbortsOnAuthError(t *testing.T) {
	m := &scriptedModel{steps: []step{fail(errors.New("error, status code: 401, message: Invalid API Key"))}}
	c := newTestClient(m, RetryPolicy{Classify: Chain(RetryAll, AbortOnAuth)})

	_, err := Generate[monster](context.Background(), c, "monster", prompt())
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatalf("expected abort instead of exhaustion, got %v", err)
	}
	if m.Calls() != 1 {
		t.Fatalf("expected a single call, got %d", m.Calls())
	}
	if usage := c.Usage().Snapshot()["test-model"]; usage.Calls != 0 {
		t.Fatalf("expected no usage for failed call, got %+v", usage)
	}
}

func TestGenerateRetriesAttemptTimeout(t *testing.T) {
	hang := func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := &scriptedModel{steps: []step{hang, reply(`{"name": "wraith", "level": 7}`)}}
	c := newTestClient(m, RetryPolicy{AttemptTimeout: 20 * time.Millisecond})

	out, err := Generate[monster](context.Background(), c, "monster", prompt())
	if err != nil {
		t.Fatalf("expected success after timeout, got %v", err)
	}
	if out.Name != "wraith" {
		t.Fatalf("unexpected output %+v", out)
	}
	usage := c.Usage().Snapshot()["test-model"]
	if usage.Calls != 1 || usage.FailedAttempts != 1 {
		t.Fatalf("expected 1 recorded response and 1 failure, got %+v", usage)
	}
}

func TestGenerateStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := func(context.Context, []*schema.Message) (*schema.Message, error) {
		cancel()
		return nil, errors.New("connection reset")
	}
	m := &scriptedModel{steps: []step{cancelling}}
	c := newTestClient(m, RetryPolicy{})

	_, err := Generate[monster](ctx, c, "monster", prompt())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.Calls() != 1 {
		t.Fatalf("expected no retry after cancel, got %d calls", m.Calls())
	}
}

func TestGenerateFallsBackToPromptOnly(t *testing.T) {
	var sawSchema bool
	m := &scriptedModel{steps: []step{
		fail(errors.New("400: response_format json_schema is not supported by this model")),
		func(_ context.Context, msgs []*schema.Message) (*schema.Message, error) {
			last := msgs[len(msgs)-1].Content
			sawSchema = strings.Contains(last, "JSON Schema") && strings.Contains(last, `"level"`)
			return reply(`Sure! {"name": "imp", "level": 2}`)(context.Background(), msgs)
		},
	}}
	c := newTestClient(m, RetryPolicy{})
	msgs := prompt()

	out, err := Generate[monster](context.Background(), c, "monster", msgs)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Name != "imp" || !c.PromptOnly() || !sawSchema {
		t.Fatalf("expected prompt-only fallback with schema, got out=%+v promptOnly=%v sawSchema=%v", out, c.PromptOnly(), sawSchema)
	}
	if strings.Contains(msgs[len(msgs)-1].Content, "JSON Schema") {
		t.Fatal("expected caller messages to stay untouched")
	}
}

func TestGenerateText(t *testing.T) {
	m := &scriptedModel{steps: []step{reply("  "), reply("A city overrun by the dead.")}}
	c := newTestClient(m, RetryPolicy{})

	text, err := GenerateText(context.Background(), c, "expand", prompt())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if text != "A city overrun by the dead." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 300 * time.Millisecond},
		{attempt: 0, want: 0},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %s, got %s", tt.attempt, tt.want, got)
		}
	}
	if got := (Backoff{}).Delay(3); got != 0 {
		t.Fatalf("expected zero backoff, got %s", got)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\": {\"b\": 2}}\n```", want: `{"a": {"b": 2}}`},
		{name: "prose around", in: `Here you go: {"a":"x"} hope it helps {"b":1}`, want: `{"a":"x"}`},
		{name: "brace in string", in: `{"a":"}{"}`, want: `{"a":"}{"}`},
		{name: "escaped quote", in: `{"a":"say \"}\""}`, want: `{"a":"say \"}\""}`},
		{name: "no object", in: "  nothing  ", want: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONObject(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSchemaForIsCached(t *testing.T) {
	a, err := SchemaFor[monster]()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	b, _ := SchemaFor[monster]()
	props, ok := a["properties"].(map[string]any)
	if !ok || props["level"] == nil {
		t.Fatalf("expected level property in schema, got %v", a)
	}
	if fmt.Sprintf("%p", a) != fmt.Sprintf("%p", b) {
		t.Fatal("expected cached schema instance")
	}
}
