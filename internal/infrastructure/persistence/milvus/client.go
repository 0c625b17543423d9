// Package milvus 保存纹理描述向量，每个类别一个集合
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"roguelike-forge-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const connectTimeout = 10 * time.Second

// Client 持有 SDK 连接与集合命名、索引参数
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 连接 Milvus；仅在账号与密码都配置时启用认证
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	sdkCfg := client.Config{Address: cfg.Addr()}
	if cfg.User != "" && cfg.Password != "" {
		sdkCfg.Username, sdkCfg.Password = cfg.User, cfg.Password
	}
	mc, err := client.NewClient(dialCtx, sdkCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", sdkCfg.Address, err)
	}
	return &Client{milvus: mc, config: cfg}, nil
}

func (c *Client) Milvus() client.Client { return c.milvus }

func (c *Client) Close() error { return c.milvus.Close() }

// HealthCheck 列出集合以确认连接可用
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	colls, err := c.milvus.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus unreachable: %w", err)
	}
	owned := 0
	for _, coll := range colls {
		if c.owns(coll.Name) {
			owned++
		}
	}
	span.SetAttributes(attribute.Int("tileset_collections", owned))
	return nil
}

// CollectionName 加上部署前缀，便于多套环境共用一个实例
func (c *Client) CollectionName(name string) string {
	if c.config.CollectionPrefix == "" {
		return name
	}
	return c.config.CollectionPrefix + "_" + name
}

func (c *Client) owns(full string) bool {
	return strings.HasPrefix(full, c.CollectionName(tilesCollectionPrefix))
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := c.startCollectionSpan(ctx, "milvus.HasCollection", name)
	defer span.End()

	ok, err := c.milvus.HasCollection(ctx, c.CollectionName(name))
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return ok, nil
}

// LoadCollection 同步加载集合，返回后即可检索
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	ctx, span := c.startCollectionSpan(ctx, "milvus.LoadCollection", name)
	defer span.End()

	if err := c.milvus.LoadCollection(ctx, c.CollectionName(name), false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	ctx, span := c.startCollectionSpan(ctx, "milvus.DropCollection", name)
	defer span.End()

	if err := c.milvus.DropCollection(ctx, c.CollectionName(name)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	return nil
}

func (c *Client) startCollectionSpan(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("collection", c.CollectionName(name)),
	))
}
