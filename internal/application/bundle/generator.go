// Package bundle 实现资产包生成流水线
package bundle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/service"
	wfmodel "roguelike-forge-api/internal/workflow/model"
	"roguelike-forge-api/internal/workflow/port"
	"roguelike-forge-api/internal/workflow/prompt"
	"roguelike-forge-api/internal/workflow/structured"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
	"roguelike-forge-api/pkg/tracer"
)

const pipelineName = "bundle"

// Generator 资产包生成器
type Generator struct {
	factory port.ChatModelFactory
	store   TextureSearcher
	cfg     config.GenerationConfig
	prompts *prompt.Registry
	now     func() time.Time
}

// NewGenerator 创建资产包生成器
func NewGenerator(factory port.ChatModelFactory, store TextureSearcher, cfg config.GenerationConfig) *Generator {
	if cfg.LevelCount <= 0 {
		cfg.LevelCount = 6
	}
	if cfg.EnemyCount <= 0 {
		cfg.EnemyCount = 20
	}
	if cfg.WeaponCount <= 0 {
		cfg.WeaponCount = 30
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 20
	}
	if cfg.TextureConcurrency <= 0 {
		cfg.TextureConcurrency = 4
	}
	if cfg.TextureStrategy == "" {
		cfg.TextureStrategy = StrategyNearest
	}
	return &Generator{
		factory: factory,
		store:   store,
		cfg:     cfg,
		prompts: prompt.NewRegistry(),
		now:     time.Now,
	}
}

// session 单次生成的私有状态
type session struct {
	theme       string
	description string
	client      *structured.Client
	selection   port.ModelSelection

	title     string
	player    entity.Player
	levels    entity.DungeonLevelList
	enemies   entity.EnemyList
	weapons   entity.WeaponList
	objective entity.FinalObjective

	playerTex    entity.Texture
	objectiveTex entity.Texture
	wallTex      []entity.Texture
	floorTex     []entity.Texture
	enemyTex     []entity.Texture
	weaponTex    []entity.Texture
}

type stage struct {
	name string
	pct  int
	run  func(ctx context.Context, s *session) error
}

func (g *Generator) stages() []stage {
	return []stage{
		{wfmodel.StageExpand, 5, g.expand},
		{wfmodel.StageTitle, 10, g.generateTitle},
		{wfmodel.StagePlayer, 20, g.generatePlayer},
		{wfmodel.StageDungeonLevels, 35, g.generateLevels},
		{wfmodel.StageEnemies, 50, g.generateEnemies},
		{wfmodel.StageWeapons, 65, g.generateWeapons},
		{wfmodel.StageFinalObjective, 75, g.generateObjective},
		{wfmodel.StageTextures, 95, g.resolveTextures},
	}
}

// Generate 由主题描述生成完整资产包；任一阶段失败返回 *StageError
func (g *Generator) Generate(ctx context.Context, theme string, opts ...Option) (*entity.AssetBundle, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, ErrEmptyTheme
	}
	ro := applyOptions(opts)
	start := g.now()

	ctx, span := tracer.Start(ctx, "bundle.Generate", trace.WithAttributes(attribute.Int("theme_length", len(theme))))
	defer span.End()

	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	chat, sel, err := g.factory.Get(ctx, port.ModelSelection{Provider: g.cfg.Provider, Model: g.cfg.Model})
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(pipelineName, "error").Inc()
		tracer.Fail(span, err)
		return nil, &StageError{Stage: "setup", Err: err}
	}
	ctx = service.WithPipeline(ctx, pipelineName)
	ctx = service.WithProvider(ctx, sel.Provider)

	s := &session{
		theme:     theme,
		selection: sel,
		client: structured.NewClient(chat, structured.ClientOptions{
			Provider: sel.Provider,
			Model:    sel.Model,
			Policy:   structured.PolicyFromConfig(g.cfg.Retry),
		}),
	}

	for _, st := range g.stages() {
		if err := g.runStage(ctx, s, st); err != nil {
			metrics.GenerationTotal.WithLabelValues(pipelineName, "error").Inc()
			tracer.Fail(span, err)
			return nil, err
		}
		ro.report(st.name, st.pct)
	}

	bundle, err := g.assemble(s, g.now().Sub(start))
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(pipelineName, "error").Inc()
		tracer.Fail(span, err)
		return nil, &StageError{Stage: wfmodel.StageAssemble, Err: err}
	}
	ro.report(wfmodel.StageAssemble, 100)

	metrics.GenerationTotal.WithLabelValues(pipelineName, "success").Inc()
	total := bundle.UsageMetadata.Total()
	logger.Info(ctx, "asset bundle generated",
		"name", bundle.Name,
		"model", sel.Model,
		"seconds", bundle.GenerationTimeSeconds,
		"calls", total.Calls,
		"tokens", total.TotalTokens,
	)
	return bundle, nil
}

func (g *Generator) runStage(ctx context.Context, s *session, st stage) error {
	ctx = service.WithStage(ctx, st.name)
	ctx = logger.WithContext(ctx, logger.StageKey, st.name)
	ctx, span := tracer.Start(ctx, "bundle."+st.name)
	defer span.End()

	start := time.Now()
	err := st.run(ctx, s)
	metrics.GenerationStageDuration.WithLabelValues(pipelineName, st.name).Observe(time.Since(start).Seconds())
	if err != nil {
		tracer.Fail(span, err)
		logger.Error(ctx, "bundle stage failed", err, "stage", st.name)
		return &StageError{Stage: st.name, Err: err}
	}
	logger.Debug(ctx, "bundle stage completed", "stage", st.name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (g *Generator) render(ctx context.Context, id prompt.PromptID, s *session) ([]*schema.Message, error) {
	return g.prompts.Render(ctx, id, map[string]any{
		"theme":        s.theme,
		"description":  s.description,
		"level_count":  g.cfg.LevelCount,
		"max_depth":    g.cfg.MaxDepth,
		"enemy_count":  g.cfg.EnemyCount,
		"weapon_count": g.cfg.WeaponCount,
	})
}

func (g *Generator) expand(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleExpandV1, s)
	if err != nil {
		return err
	}
	text, err := structured.GenerateText(ctx, s.client, wfmodel.StageExpand, msgs)
	if err != nil {
		return err
	}
	s.description = text
	return nil
}

func (g *Generator) generateTitle(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleTitleV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate[wfmodel.TitleOutput](ctx, s.client, wfmodel.StageTitle, msgs)
	if err != nil {
		return err
	}
	s.title = out.Name
	return nil
}

func (g *Generator) generatePlayer(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundlePlayerV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate[entity.Player](ctx, s.client, wfmodel.StagePlayer, msgs)
	if err != nil {
		return err
	}
	s.player = *out
	return nil
}

func (g *Generator) generateLevels(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleDungeonLevelsV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, s.client, wfmodel.StageDungeonLevels, msgs,
		func(l *entity.DungeonLevelList) error {
			if err := exactCount("dungeon levels", len(l.Items), g.cfg.LevelCount); err != nil {
				return err
			}
			for _, level := range l.Items {
				if level.Depth <= 0 || level.Depth >= g.cfg.MaxDepth {
					return fmt.Errorf("level %q depth %d outside (0, %d)", level.Name, level.Depth, g.cfg.MaxDepth)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}
	s.levels = *out
	return nil
}

func (g *Generator) generateEnemies(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleEnemiesV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, s.client, wfmodel.StageEnemies, msgs,
		func(l *entity.EnemyList) error {
			return exactCount("enemies", len(l.Items), g.cfg.EnemyCount)
		})
	if err != nil {
		return err
	}
	s.enemies = *out
	return nil
}

func (g *Generator) generateWeapons(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleWeaponsV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, s.client, wfmodel.StageWeapons, msgs,
		func(l *entity.WeaponList) error {
			return exactCount("weapons", len(l.Items), g.cfg.WeaponCount)
		})
	if err != nil {
		return err
	}
	s.weapons = *out
	return nil
}

func (g *Generator) generateObjective(ctx context.Context, s *session) error {
	msgs, err := g.render(ctx, prompt.PromptBundleFinalObjectiveV1, s)
	if err != nil {
		return err
	}
	out, err := structured.Generate[entity.FinalObjective](ctx, s.client, wfmodel.StageFinalObjective, msgs)
	if err != nil {
		return err
	}
	s.objective = *out
	return nil
}

func exactCount(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("expected %d %s, got %d", want, what, got)
	}
	return nil
}

// resolveTextures 为每个可视元素检索 top-1 纹理，检索之间相互独立
func (g *Generator) resolveTextures(ctx context.Context, s *session) error {
	if g.store == nil {
		return retrieval.ErrVectorDisabled
	}

	var pick pickFunc
	limit := g.cfg.TextureConcurrency
	if g.cfg.TextureStrategy == StrategyRerank {
		pick = g.rerankPicker(s)
		// 重排序需要调用模型，保持会话内模型调用串行
		limit = 1
	}
	resolver := newTextureResolver(g.store, g.cfg.TextureMemo, g.cfg.TextureCandidates, pick)

	s.wallTex = make([]entity.Texture, len(s.levels.Items))
	s.floorTex = make([]entity.Texture, len(s.levels.Items))
	s.enemyTex = make([]entity.Texture, len(s.enemies.Items))
	s.weaponTex = make([]entity.Texture, len(s.weapons.Items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	submit := func(path string, category retrieval.Category, tile entity.Tile, dst *entity.Texture) {
		eg.Go(func() error {
			tex, err := resolver.Resolve(egCtx, category, tile)
			if err != nil {
				return fmt.Errorf("resolve texture for %s: %w", path, err)
			}
			*dst = tex
			return nil
		})
	}

	submit("player", retrieval.CategoryEntities, s.player.Tile, &s.playerTex)
	for i, level := range s.levels.Items {
		submit(fmt.Sprintf("dungeon_levels[%d].wall", i), retrieval.CategoryEnvironments, level.WallTile, &s.wallTex[i])
		submit(fmt.Sprintf("dungeon_levels[%d].floor", i), retrieval.CategoryEnvironments, level.FloorTile, &s.floorTex[i])
	}
	for i, enemy := range s.enemies.Items {
		submit(fmt.Sprintf("enemies[%d]", i), retrieval.CategoryEntities, enemy.Tile, &s.enemyTex[i])
	}
	for i, weapon := range s.weapons.Items {
		submit(fmt.Sprintf("weapons[%d]", i), retrieval.CategoryItems, weapon.Tile, &s.weaponTex[i])
	}
	submit("final_objective", retrieval.CategoryItems, s.objective.Tile, &s.objectiveTex)

	return eg.Wait()
}

// rerankPicker 让模型在候选中选择一个坐标，选择不在候选中视为校验失败
func (g *Generator) rerankPicker(s *session) pickFunc {
	return func(ctx context.Context, tile entity.Tile, candidates []retrieval.TileMatch) (retrieval.TileMatch, error) {
		msgs, err := g.prompts.Render(ctx, prompt.PromptTextureRerankV1, map[string]any{
			"asset_name":        tile.Name,
			"asset_description": tile.Description,
			"candidates":        formatCandidates(candidates),
		})
		if err != nil {
			return retrieval.TileMatch{}, err
		}
		ctx = service.WithStage(ctx, wfmodel.StageTextureRerank)
		out, err := structured.Generate(ctx, s.client, wfmodel.StageTextureRerank, msgs,
			func(p *wfmodel.TexturePick) error {
				if _, ok := candidateAt(candidates, p.X, p.Y); !ok {
					return fmt.Errorf("%w: (%d, %d)", ErrPickNotCandidate, p.X, p.Y)
				}
				return nil
			})
		if err != nil {
			return retrieval.TileMatch{}, err
		}
		m, _ := candidateAt(candidates, out.X, out.Y)
		return m, nil
	}
}

func withTexture(tile entity.Tile, tex entity.Texture) entity.TileWithTexture {
	return entity.TileWithTexture{Tile: tile, Texture: tex}
}

func (g *Generator) assemble(s *session, elapsed time.Duration) (*entity.AssetBundle, error) {
	b := &entity.AssetBundle{
		Name:                  s.title,
		RawDescription:        s.theme,
		Description:           s.description,
		GenerationTimeSeconds: int(elapsed / time.Second),
		LLMProvider:           s.selection.Provider,
		LLMModel:              s.selection.Model,
		Player: entity.PlayerWithTexture{
			Player:          s.player,
			TileWithTexture: withTexture(s.player.Tile, s.playerTex),
		},
		FinalObjective: entity.FinalObjectiveWithTexture{
			FinalObjective:  s.objective,
			TileWithTexture: withTexture(s.objective.Tile, s.objectiveTex),
		},
		UsageMetadata: s.client.Usage().Snapshot(),
	}

	b.DungeonLevels.Items = make([]entity.DungeonLevelWithTexture, len(s.levels.Items))
	for i, level := range s.levels.Items {
		b.DungeonLevels.Items[i] = entity.DungeonLevelWithTexture{
			DungeonLevel:         level,
			WallTileWithTexture:  withTexture(level.WallTile, s.wallTex[i]),
			FloorTileWithTexture: withTexture(level.FloorTile, s.floorTex[i]),
		}
	}
	b.Enemies.Items = make([]entity.EnemyWithTexture, len(s.enemies.Items))
	for i, enemy := range s.enemies.Items {
		b.Enemies.Items[i] = entity.EnemyWithTexture{Enemy: enemy, TileWithTexture: withTexture(enemy.Tile, s.enemyTex[i])}
	}
	b.Weapons.Items = make([]entity.WeaponWithTexture, len(s.weapons.Items))
	for i, weapon := range s.weapons.Items {
		b.Weapons.Items[i] = entity.WeaponWithTexture{Weapon: weapon, TileWithTexture: withTexture(weapon.Tile, s.weaponTex[i])}
	}

	if missing := b.Unresolved(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedTiles, strings.Join(missing, ", "))
	}
	return b, nil
}
