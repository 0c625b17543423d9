package bundle

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/service"
	wfmodel "roguelike-forge-api/internal/workflow/model"
	"roguelike-forge-api/internal/workflow/port"
	"roguelike-forge-api/internal/workflow/structured"
)

// stageModel 按 context 中的阶段名返回预置回复
type stageModel struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   map[string]int
}

func newStageModel(replies map[string][]string) *stageModel {
	return &stageModel{replies: replies, calls: make(map[string]int)}
}

func (m *stageModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	stage := service.StageFromContext(ctx)
	m.mu.Lock()
	i := m.calls[stage]
	m.calls[stage]++
	m.mu.Unlock()

	list, ok := m.replies[stage]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("no reply scripted for stage %s", stage)
	}
	if i >= len(list) {
		i = len(list) - 1
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: list[i],
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
		},
	}, nil
}

func (m *stageModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *stageModel) Calls(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

type fakeFactory struct {
	chat model.BaseChatModel
}

func (f *fakeFactory) Get(_ context.Context, sel port.ModelSelection) (model.BaseChatModel, port.ModelSelection, error) {
	if sel.Provider == "" {
		sel.Provider = "groq"
	}
	if sel.Model == "" {
		sel.Model = "openai/gpt-oss-120b"
	}
	return f.chat, sel, nil
}

// fakeSearcher 每个查询返回确定的候选，并记录调用次数
type fakeSearcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{calls: make(map[string]int)}
}

func (f *fakeSearcher) Search(_ context.Context, query string, category retrieval.Category, k int) ([]retrieval.TileMatch, error) {
	f.mu.Lock()
	f.calls[string(category)+"|"+query]++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return expectedMatches(query, category, k), nil
}

func (f *fakeSearcher) Calls(category retrieval.Category, query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[string(category)+"|"+query]
}

func expectedMatches(query string, category retrieval.Category, k int) []retrieval.TileMatch {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(category) + query))
	base := int(h.Sum32() % 64)
	out := make([]retrieval.TileMatch, k)
	for i := range out {
		out[i] = retrieval.TileMatch{
			X:           base + i,
			Y:           i,
			Description: fmt.Sprintf("%s sprite %d for %s", category, i, query),
			Score:       1 - float32(i)/10,
		}
	}
	return out
}

const (
	zombieTheme = "Create a roguelike with the theme as zombie post apocalyptic world."

	playerJSON = `{"tile":{"name":"survivor","description":"ragged survivor in a hooded coat holding a crowbar"},"back_history":"A former paramedic searching for a cure."}`
	levelsJSON = `{"items":[
		{"name":"The Quarantine Gate","description":"Barricades and burning cars.","depth":1,
		 "wall_tile":{"name":"barricade","description":"stacked sandbags and rusty fences"},
		 "floor_tile":{"name":"asphalt","description":"cracked grey asphalt with oil stains"}},
		{"name":"The Flooded Metro","description":"Dark tunnels full of water.","depth":2,
		 "wall_tile":{"name":"tunnel_wall","description":"tiled subway wall covered in moss"},
		 "floor_tile":{"name":"wet_tiles","description":"wet cracked subway floor tiles"}}]}`
	enemiesJSON = `{"items":[
		{"tile":{"name":"walker","description":"slow rotting zombie in a torn suit"},"weight":8,"thread":2},
		{"tile":{"name":"walker_twin","description":"slow rotting zombie in a torn suit"},"weight":6,"thread":3}]}`
	weaponsJSON = `{"items":[
		{"tile":{"name":"crowbar","description":"bent iron crowbar"},"rarity":1,"weight":4,"mana_cost":0,"weapon_type":"melee"},
		{"tile":{"name":"nail_gun","description":"yellow construction nail gun"},"rarity":5,"weight":3,"mana_cost":2,"weapon_type":"range"},
		{"tile":{"name":"cure_rifle","description":"rifle with a glowing green vial"},"rarity":10,"weight":6,"mana_cost":8,"weapon_type":"range"}]}`
	objectiveJSON = `{"tile":{"name":"cure_vial","description":"glowing green vial in a steel case"},"back_history":"The only sample of the cure."}`
)

func zombieReplies() map[string][]string {
	return map[string][]string{
		wfmodel.StageExpand:         {"Necropolis Zero is a ruined city overrun by the dead."},
		wfmodel.StageTitle:          {`{"name":"Souls of the Dead City"}`},
		wfmodel.StagePlayer:         {playerJSON},
		wfmodel.StageDungeonLevels:  {levelsJSON},
		wfmodel.StageEnemies:        {enemiesJSON},
		wfmodel.StageWeapons:        {weaponsJSON},
		wfmodel.StageFinalObjective: {objectiveJSON},
	}
}

func testConfig() config.GenerationConfig {
	return config.GenerationConfig{
		LevelCount:         2,
		EnemyCount:         2,
		WeaponCount:        3,
		MaxDepth:           20,
		Retry:              config.RetryConfig{MaxAttempts: 5, AttemptTimeout: time.Second},
		TextureConcurrency: 4,
		TextureMemo:        true,
	}
}

func newTestGenerator(chat model.BaseChatModel, store TextureSearcher, cfg config.GenerationConfig) *Generator {
	g := NewGenerator(&fakeFactory{chat: chat}, store, cfg)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	g.now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(2700 * time.Millisecond)
	}
	return g
}

func TestGenerateZombieBundle(t *testing.T) {
	chat := newStageModel(zombieReplies())
	store := newFakeSearcher()
	g := newTestGenerator(chat, store, testConfig())

	var stages []string
	b, err := g.Generate(context.Background(), zombieTheme, WithProgress(func(stage string, pct int) {
		stages = append(stages, fmt.Sprintf("%s:%d", stage, pct))
	}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if b.Name != "Souls of the Dead City" {
		t.Fatalf("expected title, got %q", b.Name)
	}
	if b.RawDescription != strings.TrimSpace(zombieTheme) {
		t.Fatalf("expected raw description to be the theme, got %q", b.RawDescription)
	}
	if !strings.HasPrefix(b.Description, "Necropolis Zero") {
		t.Fatalf("expected expanded description, got %q", b.Description)
	}
	if b.GenerationTimeSeconds != 2 {
		t.Fatalf("expected floored 2 seconds, got %d", b.GenerationTimeSeconds)
	}
	if b.LLMProvider != "groq" || b.LLMModel != "openai/gpt-oss-120b" {
		t.Fatalf("unexpected provider/model %s/%s", b.LLMProvider, b.LLMModel)
	}
	if len(b.DungeonLevels.Items) != 2 || len(b.Enemies.Items) != 2 || len(b.Weapons.Items) != 3 {
		t.Fatalf("unexpected batch sizes %d/%d/%d", len(b.DungeonLevels.Items), len(b.Enemies.Items), len(b.Weapons.Items))
	}
	if missing := b.Unresolved(); len(missing) != 0 {
		t.Fatalf("expected every tile resolved, missing %v", missing)
	}

	assertTop1 := func(path string, category retrieval.Category, tile entity.TileWithTexture) {
		t.Helper()
		want := expectedMatches(tile.Description, category, 1)[0]
		if tile.Texture.Category != string(category) {
			t.Fatalf("%s: expected category %s, got %s", path, category, tile.Texture.Category)
		}
		if tile.Texture.Position.X != want.X || tile.Texture.Position.Y != want.Y || tile.Texture.Description != want.Description {
			t.Fatalf("%s: expected top-1 %+v, got %+v", path, want, tile.Texture)
		}
	}
	assertTop1("player", retrieval.CategoryEntities, b.Player.TileWithTexture)
	assertTop1("final_objective", retrieval.CategoryItems, b.FinalObjective.TileWithTexture)
	for i, level := range b.DungeonLevels.Items {
		assertTop1(fmt.Sprintf("level %d wall", i), retrieval.CategoryEnvironments, level.WallTileWithTexture)
		assertTop1(fmt.Sprintf("level %d floor", i), retrieval.CategoryEnvironments, level.FloorTileWithTexture)
	}
	for i, enemy := range b.Enemies.Items {
		assertTop1(fmt.Sprintf("enemy %d", i), retrieval.CategoryEntities, enemy.TileWithTexture)
	}
	for i, weapon := range b.Weapons.Items {
		assertTop1(fmt.Sprintf("weapon %d", i), retrieval.CategoryItems, weapon.TileWithTexture)
	}

	usage, ok := b.UsageMetadata["openai/gpt-oss-120b"]
	if !ok {
		t.Fatalf("expected usage keyed by model, got %v", b.UsageMetadata)
	}
	if usage.Calls != 7 || usage.InputTokens != 700 || usage.OutputTokens != 280 || usage.FailedAttempts != 0 {
		t.Fatalf("unexpected usage %+v", usage)
	}

	wantStages := []string{"expand:5", "title:10", "player:20", "dungeon_levels:35", "enemies:50", "weapons:65", "final_objective:75", "textures:95", "assemble:100"}
	if strings.Join(stages, ",") != strings.Join(wantStages, ",") {
		t.Fatalf("expected progress %v, got %v", wantStages, stages)
	}
}

func TestTextureMemo(t *testing.T) {
	desc := "slow rotting zombie in a torn suit"

	t.Run("memo on resolves identical descriptions once", func(t *testing.T) {
		store := newFakeSearcher()
		g := newTestGenerator(newStageModel(zombieReplies()), store, testConfig())
		b, err := g.Generate(context.Background(), zombieTheme)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if got := store.Calls(retrieval.CategoryEntities, desc); got != 1 {
			t.Fatalf("expected 1 search, got %d", got)
		}
		if b.Enemies.Items[0].TileWithTexture.Texture != b.Enemies.Items[1].TileWithTexture.Texture {
			t.Fatal("expected identical textures for identical descriptions")
		}
	})

	t.Run("memo off searches every element", func(t *testing.T) {
		cfg := testConfig()
		cfg.TextureMemo = false
		store := newFakeSearcher()
		g := newTestGenerator(newStageModel(zombieReplies()), store, cfg)
		if _, err := g.Generate(context.Background(), zombieTheme); err != nil {
			t.Fatalf("generate: %v", err)
		}
		if got := store.Calls(retrieval.CategoryEntities, desc); got != 2 {
			t.Fatalf("expected 2 searches, got %d", got)
		}
	})
}

func TestTextureMemoKeepsDistinctDescriptions(t *testing.T) {
	store := newFakeSearcher()
	r := newTextureResolver(store, true, 0, nil)
	tiles := []entity.Tile{
		{Name: "zombie", Description: "Slow rotting zombie"},
		{Name: "zombie_alt", Description: "slow   rotting ZOMBIE"},
		{Name: "zombie_twin", Description: "Slow rotting zombie"},
	}

	for _, tile := range tiles {
		got, err := r.Resolve(context.Background(), retrieval.CategoryEntities, tile)
		if err != nil {
			t.Fatalf("resolve %s: %v", tile.Name, err)
		}
		want := textureFromMatch(retrieval.CategoryEntities, expectedMatches(tile.Description, retrieval.CategoryEntities, 1)[0])
		if got != want {
			t.Fatalf("%s: expected top-1 texture %+v for its own description, got %+v", tile.Name, want, got)
		}
	}
	if n := store.Calls(retrieval.CategoryEntities, "Slow rotting zombie"); n != 1 {
		t.Fatalf("expected exact duplicate to be memoized, got %d searches", n)
	}
	if n := store.Calls(retrieval.CategoryEntities, "slow   rotting ZOMBIE"); n != 1 {
		t.Fatalf("expected look-alike description to be searched, got %d searches", n)
	}
}

func TestGenerateRetriesWrongLevelCount(t *testing.T) {
	replies := zombieReplies()
	oneLevel := `{"items":[{"name":"The Quarantine Gate","description":"Barricades.","depth":1,
		"wall_tile":{"name":"barricade","description":"stacked sandbags"},
		"floor_tile":{"name":"asphalt","description":"cracked asphalt"}}]}`
	replies[wfmodel.StageDungeonLevels] = []string{oneLevel, levelsJSON}
	chat := newStageModel(replies)

	b, err := newTestGenerator(chat, newFakeSearcher(), testConfig()).Generate(context.Background(), zombieTheme)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := chat.Calls(wfmodel.StageDungeonLevels); got != 2 {
		t.Fatalf("expected 2 level attempts, got %d", got)
	}
	usage := b.UsageMetadata.Total()
	if usage.Calls != 8 || usage.FailedAttempts != 1 {
		t.Fatalf("expected 8 calls and 1 failed attempt, got %+v", usage)
	}
	if len(b.DungeonLevels.Items) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(b.DungeonLevels.Items))
	}
}

func TestGenerateFailures(t *testing.T) {
	t.Run("empty theme", func(t *testing.T) {
		_, err := newTestGenerator(newStageModel(zombieReplies()), newFakeSearcher(), testConfig()).Generate(context.Background(), "   ")
		if !errors.Is(err, ErrEmptyTheme) {
			t.Fatalf("expected ErrEmptyTheme, got %v", err)
		}
	})

	t.Run("invalid enemies exhaust the budget", func(t *testing.T) {
		replies := zombieReplies()
		replies[wfmodel.StageEnemies] = []string{`{"items":[{"tile":{"name":"x","description":"bad"},"weight":11,"thread":2}]}`}
		chat := newStageModel(replies)
		_, err := newTestGenerator(chat, newFakeSearcher(), testConfig()).Generate(context.Background(), zombieTheme)

		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != wfmodel.StageEnemies {
			t.Fatalf("expected enemies StageError, got %v", err)
		}
		var exhausted *structured.ExhaustedError
		if !errors.As(err, &exhausted) || exhausted.Attempts != 5 {
			t.Fatalf("expected ExhaustedError after 5 attempts, got %v", err)
		}
		if got := chat.Calls(wfmodel.StageWeapons); got != 0 {
			t.Fatalf("expected later stages to be skipped, got %d weapon calls", got)
		}
	})

	t.Run("empty category is fatal", func(t *testing.T) {
		store := newFakeSearcher()
		store.err = fmt.Errorf("%w: items", retrieval.ErrEmptyCategory)
		b, err := newTestGenerator(newStageModel(zombieReplies()), store, testConfig()).Generate(context.Background(), zombieTheme)
		if b != nil {
			t.Fatal("expected no partial bundle")
		}
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != wfmodel.StageTextures {
			t.Fatalf("expected textures StageError, got %v", err)
		}
		if !errors.Is(err, retrieval.ErrEmptyCategory) {
			t.Fatalf("expected ErrEmptyCategory, got %v", err)
		}
	})
}

func TestRerankStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.TextureStrategy = StrategyRerank
	cfg.TextureCandidates = 3
	cfg.TextureMemo = false

	replies := zombieReplies()
	store := newFakeSearcher()
	chat := &rerankModel{stageModel: newStageModel(replies)}

	b, err := newTestGenerator(chat, store, cfg).Generate(context.Background(), zombieTheme)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := expectedMatches(b.Player.Tile.Description, retrieval.CategoryEntities, 3)[1]
	got := b.Player.TileWithTexture.Texture
	if got.Position.X != want.X || got.Position.Y != want.Y || got.Description != want.Description {
		t.Fatalf("expected second candidate %+v, got %+v", want, got)
	}
	if chat.invalid == 0 {
		t.Fatal("expected the invalid first pick to be retried")
	}
}

// rerankModel 重排序阶段先给出一个无效坐标，之后总是选第二个候选
type rerankModel struct {
	*stageModel
	mu      sync.Mutex
	invalid int
}

func (m *rerankModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if service.StageFromContext(ctx) != wfmodel.StageTextureRerank {
		return m.stageModel.Generate(ctx, input, opts...)
	}

	m.mu.Lock()
	first := m.invalid == 0
	if first {
		m.invalid++
	}
	m.mu.Unlock()
	if first {
		return &schema.Message{Role: schema.Assistant, Content: `{"x":9999,"y":9999}`}, nil
	}

	user := input[len(input)-1].Content
	var lines []string
	for _, line := range strings.Split(user, "\n") {
		if strings.HasPrefix(line, "- (") {
			lines = append(lines, line)
		}
	}
	var x, y int
	if _, err := fmt.Sscanf(lines[1], "- (%d, %d)", &x, &y); err != nil {
		return nil, err
	}
	return &schema.Message{Role: schema.Assistant, Content: fmt.Sprintf(`{"x":%d,"y":%d}`, x, y)}, nil
}
