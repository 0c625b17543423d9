// Package mapgen 实现六阶段地图生成与编译
package mapgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
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

const (
	pipelineName       = "map"
	textureConcurrency = 4
)

// TextureSearcher 瓦片集相似度检索
type TextureSearcher interface {
	Search(ctx context.Context, query string, category retrieval.Category, k int) ([]retrieval.TileMatch, error)
}

// ProgressFunc 阶段完成回调
type ProgressFunc func(stage string, pct int)

// Option 单次生成参数
type Option func(*mapState)

// WithProgress 注册进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(st *mapState) {
		st.progress = fn
	}
}

// Result 地图生成结果
type Result struct {
	Catalogs    entity.MapCatalogs   `json:"catalogs"`
	Map         *entity.CompiledMap  `json:"map"`
	Usage       entity.UsageMetadata `json:"usage_metadata"`
	LLMProvider string               `json:"llm_provider"`
	LLMModel    string               `json:"llm_model"`
	DurationMs  int64                `json:"duration_ms"`
}

// mapState 在链路各节点之间传递的单次生成状态
type mapState struct {
	theme     string
	client    *structured.Client
	selection port.ModelSelection
	progress  ProgressFunc

	catalogs entity.MapCatalogs
	textures map[string]entity.ResolvedMapTexture
	compiled *entity.CompiledMap
}

// Generator 地图生成器
type Generator struct {
	factory port.ChatModelFactory
	store   TextureSearcher
	cfg     config.MapGenConfig
	prompts *prompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*mapState, *mapState]
	chainErr  error
}

// NewGenerator 创建地图生成器
func NewGenerator(factory port.ChatModelFactory, store TextureSearcher, cfg config.MapGenConfig) *Generator {
	return &Generator{
		factory: factory,
		store:   store,
		cfg:     cfg,
		prompts: prompt.NewRegistry(),
	}
}

// Generate 由主题生成完整地图
func (g *Generator) Generate(ctx context.Context, theme string, opts ...Option) (*Result, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, ErrEmptyTheme
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "mapgen.Generate")
	defer span.End()
	metrics.ActiveGenerations.Inc()
	defer metrics.ActiveGenerations.Dec()

	chain, err := g.getChain()
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	chat, sel, err := g.factory.Get(ctx, port.ModelSelection{Provider: g.cfg.Provider, Model: g.cfg.Model})
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(pipelineName, "error").Inc()
		tracer.Fail(span, err)
		return nil, &StageError{Stage: "setup", Err: err}
	}
	ctx = service.WithPipeline(ctx, pipelineName)
	ctx = service.WithProvider(ctx, sel.Provider)

	st := &mapState{
		theme:     theme,
		selection: sel,
		client: structured.NewClient(chat, structured.ClientOptions{
			Provider: sel.Provider,
			Model:    sel.Model,
			Policy:   structured.PolicyFromConfig(g.cfg.Retry),
		}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(st)
		}
	}

	out, err := chain.Invoke(ctx, st)
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(pipelineName, "error").Inc()
		tracer.Fail(span, err)
		return nil, unwrapStageError(err)
	}
	metrics.GenerationTotal.WithLabelValues(pipelineName, "success").Inc()

	res := &Result{
		Catalogs:    out.catalogs,
		Map:         out.compiled,
		Usage:       out.client.Usage().Snapshot(),
		LLMProvider: sel.Provider,
		LLMModel:    sel.Model,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	logger.Info(ctx, "map generated",
		"textures", len(res.Catalogs.Textures.Items),
		"rows", len(res.Catalogs.Grid.Representation),
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

// unwrapStageError 链路会包装节点错误，取回最内层的 *StageError
func unwrapStageError(err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return err
}

type mapStage struct {
	name string
	pct  int
	run  func(ctx context.Context, st *mapState) error
}

func (g *Generator) stages() []mapStage {
	return []mapStage{
		{wfmodel.StageMapTextures, 15, g.textureCatalog},
		{wfmodel.StageMapTilePresets, 30, g.tilePresets},
		{wfmodel.StageMapEntities, 45, g.entityPresets},
		{wfmodel.StageMapItems, 55, g.itemPresets},
		{wfmodel.StageMapLegend, 70, g.legend},
		{wfmodel.StageMapGrid, 85, g.grid},
		{wfmodel.StageMapResolve, 95, g.resolveTextures},
		{wfmodel.StageMapCompile, 100, g.compile},
	}
}

func (g *Generator) getChain() (compose.Runnable[*mapState, *mapState], error) {
	g.chainOnce.Do(func() {
		g.chain, g.chainErr = g.buildChain(context.Background())
	})
	return g.chain, g.chainErr
}

func (g *Generator) buildChain(ctx context.Context) (compose.Runnable[*mapState, *mapState], error) {
	chain := compose.NewChain[*mapState, *mapState]()
	for _, s := range g.stages() {
		s := s
		chain.AppendLambda(
			compose.InvokableLambda(func(ctx context.Context, st *mapState) (*mapState, error) {
				if st == nil {
					return nil, fmt.Errorf("state is nil")
				}
				if err := g.runStage(ctx, st, s); err != nil {
					return nil, err
				}
				return st, nil
			}),
			compose.WithNodeName("mapgen."+s.name),
		)
	}
	return chain.Compile(ctx)
}

func (g *Generator) runStage(ctx context.Context, st *mapState, s mapStage) error {
	ctx = service.WithStage(ctx, s.name)
	ctx = logger.WithContext(ctx, logger.StageKey, s.name)
	ctx, span := tracer.Start(ctx, "mapgen."+s.name)
	defer span.End()

	start := time.Now()
	err := s.run(ctx, st)
	metrics.GenerationStageDuration.WithLabelValues(pipelineName, s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		tracer.Fail(span, err)
		logger.Error(ctx, "map stage failed", err, "stage", s.name)
		return &StageError{Stage: s.name, Err: err}
	}
	if st.progress != nil {
		st.progress(s.name, s.pct)
	}
	return nil
}

func (g *Generator) render(ctx context.Context, id prompt.PromptID, st *mapState, vars map[string]any) ([]*schema.Message, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	vars["theme"] = st.theme
	return g.prompts.Render(ctx, id, vars)
}

func (g *Generator) textureCatalog(ctx context.Context, st *mapState) error {
	msgs, err := g.render(ctx, prompt.PromptMapTexturesV1, st, nil)
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapTextures, msgs, checkTextures)
	if err != nil {
		return err
	}
	st.catalogs.Textures = *out
	return nil
}

func (g *Generator) tilePresets(ctx context.Context, st *mapState) error {
	names := st.catalogs.Textures.Names()
	msgs, err := g.render(ctx, prompt.PromptMapTilePresetsV1, st, map[string]any{
		"texture_names": joinNames(names),
	})
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapTilePresets, msgs, checkTilePresets(newNameSet(names)))
	if err != nil {
		return err
	}
	st.catalogs.Tiles = *out
	return nil
}

func (g *Generator) entityPresets(ctx context.Context, st *mapState) error {
	tiles := st.catalogs.Tiles.Names(entity.TileRoleEntities)
	msgs, err := g.render(ctx, prompt.PromptMapEntitiesV1, st, map[string]any{
		"entity_tiles": joinNames(tiles),
	})
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapEntities, msgs, checkEntities(newNameSet(tiles)))
	if err != nil {
		return err
	}
	st.catalogs.Entities = *out
	return nil
}

func (g *Generator) itemPresets(ctx context.Context, st *mapState) error {
	tiles := st.catalogs.Tiles.Names(entity.TileRoleItems)
	msgs, err := g.render(ctx, prompt.PromptMapItemsV1, st, map[string]any{
		"item_tiles": joinNames(tiles),
	})
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapItems, msgs, checkItems(newNameSet(tiles)))
	if err != nil {
		return err
	}
	st.catalogs.Items = *out
	return nil
}

func (g *Generator) legend(ctx context.Context, st *mapState) error {
	tiles := append(st.catalogs.Tiles.Names(entity.TileRolePlayer), st.catalogs.Tiles.Names(entity.TileRoleEnvironment)...)
	entityList := presetNames(st.catalogs.Entities)
	itemList := itemNames(st.catalogs.Items)
	msgs, err := g.render(ctx, prompt.PromptMapLegendV1, st, map[string]any{
		"tile_names":   joinNames(tiles),
		"entity_names": joinNames(entityList),
		"item_names":   joinNames(itemList),
	})
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapLegend, msgs,
		checkLegend(&st.catalogs.Tiles, newNameSet(entityList), newNameSet(itemList)))
	if err != nil {
		return err
	}
	st.catalogs.Legend = *out
	return nil
}

func (g *Generator) grid(ctx context.Context, st *mapState) error {
	msgs, err := g.render(ctx, prompt.PromptMapGridV1, st, map[string]any{
		"legend": formatLegend(st.catalogs.Legend),
	})
	if err != nil {
		return err
	}
	out, err := structured.Generate(ctx, st.client, wfmodel.StageMapGrid, msgs, checkGrid(&st.catalogs.Legend))
	if err != nil {
		return err
	}
	st.catalogs.Grid = *out
	return nil
}

// textureCategories 纹理名 -> 引用它的分区对应的检索类别，未引用的归入环境
func textureCategories(c *entity.MapCatalogs) map[string]retrieval.Category {
	out := make(map[string]retrieval.Category, len(c.Textures.Items))
	c.Tiles.Each(func(role entity.TilePresetRole, p *entity.TilePreset) {
		if _, ok := out[p.TextureID]; ok {
			return
		}
		switch role {
		case entity.TileRolePlayer, entity.TileRoleEntities:
			out[p.TextureID] = retrieval.CategoryEntities
		case entity.TileRoleItems:
			out[p.TextureID] = retrieval.CategoryItems
		default:
			out[p.TextureID] = retrieval.CategoryEnvironments
		}
	})
	for _, t := range c.Textures.Items {
		if _, ok := out[t.Name]; !ok {
			out[t.Name] = retrieval.CategoryEnvironments
		}
	}
	return out
}

func (g *Generator) resolveTextures(ctx context.Context, st *mapState) error {
	if g.store == nil {
		return retrieval.ErrVectorDisabled
	}
	categories := textureCategories(&st.catalogs)
	items := st.catalogs.Textures.Items
	resolved := make([]entity.ResolvedMapTexture, len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(textureConcurrency)
	for i, t := range items {
		i, t := i, t
		eg.Go(func() error {
			category := categories[t.Name]
			matches, err := g.store.Search(egCtx, t.Description, category, 1)
			if err != nil {
				return fmt.Errorf("resolve texture %s: %w", t.Name, err)
			}
			metrics.TextureLookups.WithLabelValues(string(category), "off").Inc()
			resolved[i] = entity.ResolvedMapTexture{
				X:                          matches[0].X,
				Y:                          matches[0].Y,
				Color:                      t.Color,
				DescriptionFromTexture:     t.Description,
				DescriptionFromVectorStore: matches[0].Description,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	st.textures = make(map[string]entity.ResolvedMapTexture, len(items))
	for i, t := range items {
		st.textures[t.Name] = resolved[i]
	}
	return nil
}

func (g *Generator) compile(_ context.Context, st *mapState) error {
	m, err := Compile(CompileInput{Catalogs: st.catalogs, Textures: st.textures})
	if err != nil {
		return err
	}
	st.compiled = m
	return nil
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

func presetNames(l entity.EntityPresetList) []string {
	out := make([]string, 0, len(l.Items))
	for _, e := range l.Items {
		out = append(out, e.Name)
	}
	return out
}

func itemNames(l entity.ItemPresetList) []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, it.Name)
	}
	return out
}

func formatLegend(l entity.CharTileRepresentationList) string {
	orNone := func(p *string) string {
		if p == nil {
			return "-"
		}
		return *p
	}
	var b strings.Builder
	for _, c := range l.Items {
		fmt.Fprintf(&b, "%q tile=%s entity=%s item=%s (%s)\n", c.Char, orNone(c.Tile), orNone(c.Entity), orNone(c.Item), c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
