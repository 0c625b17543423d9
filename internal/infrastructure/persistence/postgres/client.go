// Package postgres 资产包与生成任务的 GORM 存储
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/pkg/logger"
)

var tracer = otel.Tracer("postgres")

const (
	applicationName = "roguelike-forge"
	pingTimeout     = 5 * time.Second
	slowQuery       = time.Second
)

// Client 共享的 GORM 连接池
type Client struct {
	db *gorm.DB
}

// DSN 拼出 libpq 风格的连接串；空字段不输出
func DSN(cfg *config.PostgresConfig) string {
	pairs := []struct{ k, v string }{
		{"host", cfg.Host},
		{"port", portString(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Database},
		{"sslmode", cfg.SSLMode},
		{"application_name", applicationName},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.v != "" {
			parts = append(parts, p.k+"="+p.v)
		}
	}
	return strings.Join(parts, " ")
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprint(port)
}

// NewClient 打开连接池并 ping 一次
func NewClient(cfg *config.PostgresConfig) (*Client, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		// 资产包 JSON 较大，只记录慢查询与错误
		Logger: gormlogger.New(slogWriter{}, gormlogger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("postgres %s unreachable: %w", cfg.Host, err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *gorm.DB {
	return c.db
}

func (c *Client) Close() error {
	pool, err := c.db.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// HealthCheck 连接池 ping
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.HealthCheck")
	defer span.End()

	pool, err := c.db.DB()
	if err == nil {
		err = pool.PingContext(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return nil
}

// AutoMigrate 创建或升级资产包与任务表
func (c *Client) AutoMigrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	if err := c.db.WithContext(ctx).AutoMigrate(&bundleModel{}, &jobModel{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// slogWriter 把 GORM 的慢查询与错误转到结构化日志
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logger.Warn(context.Background(), "gorm", "detail", strings.TrimSpace(fmt.Sprintf(format, args...)))
}
