// Package logger 基于 slog 的结构化日志，context 中的链路字段自动附加到每条记录
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey 写入 context 的日志字段键
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	RequestIDKey ContextKey = "request_id"
	JobIDKey     ContextKey = "job_id"
	BundleIDKey  ContextKey = "bundle_id"
	StageKey     ContextKey = "stage"
)

// 输出顺序固定，便于按列检索
var contextKeys = [...]ContextKey{TraceIDKey, SpanIDKey, RequestIDKey, JobIDKey, BundleIDKey, StageKey}

// 输出目标
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// FileOptions lumberjack 滚动参数
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Options struct {
	Level  string
	Format string
	Output string
	File   FileOptions
}

var current atomic.Pointer[slog.Logger]

// Init 只输出到标准输出
func Init(level, format string) {
	InitWithOptions(Options{Level: level, Format: format, Output: OutputStdout})
}

// InitWithOptions 替换全局日志器并设为 slog 默认
func InitWithOptions(opts Options) {
	l := slog.New(newHandler(writerFor(opts), opts))
	current.Store(l)
	slog.SetDefault(l)
}

// writerFor file / both 未配置路径时退回标准输出
func writerFor(opts Options) io.Writer {
	output := strings.ToLower(strings.TrimSpace(opts.Output))
	if output == OutputStderr {
		return os.Stderr
	}
	if (output != OutputFile && output != OutputBoth) || strings.TrimSpace(opts.File.Path) == "" {
		return os.Stdout
	}

	file := &lumberjack.Logger{
		Filename:   opts.File.Path,
		MaxSize:    opts.File.MaxSizeMB,
		MaxBackups: opts.File.MaxBackups,
		MaxAge:     opts.File.MaxAgeDays,
		Compress:   opts.File.Compress,
	}
	if output == OutputBoth {
		return io.MultiWriter(os.Stdout, file)
	}
	return file
}

func newHandler(w io.Writer, opts Options) slog.Handler {
	ho := &slog.HandlerOptions{Level: parseLevel(opts.Level), AddSource: true}
	if strings.EqualFold(opts.Format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// parseLevel 无法识别时为 info
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Default 未初始化时按 info / json 初始化
func Default() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init("info", "json")
	return current.Load()
}

// FromContext 附加 ctx 中已设置的链路字段
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	var fields []any
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			fields = append(fields, string(key), v)
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Error err 为 nil 时不输出 error 字段
func Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	FromContext(ctx).Error(msg, args...)
}

// Fatal 记录后以状态码 1 退出
func Fatal(ctx context.Context, msg string, err error, args ...any) {
	Error(ctx, msg, err, args...)
	os.Exit(1)
}
