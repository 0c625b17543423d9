package structured

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"roguelike-forge-api/internal/config"
	"roguelike-forge-api/internal/domain/service"
	"roguelike-forge-api/pkg/logger"
	"roguelike-forge-api/pkg/metrics"
)

// DefaultMaxAttempts 每个阶段的默认尝试次数
const DefaultMaxAttempts = 5

// Decision 分类器对一次失败的判定
type Decision int

const (
	DecisionRetry Decision = iota
	DecisionAbort
)

// Classifier 判定错误是否值得重试
type Classifier func(err error) Decision

// RetryAll 所有错误都重试
func RetryAll(error) Decision {
	return DecisionRetry
}

// 401 / 403 只在 status、status code 或 http 之后才算鉴权失败
var authErrorPattern = regexp.MustCompile(`(?i)` +
	`\b(?:status(?:[ _]code)?|http)\s*[:=]?\s*40[13]\b` +
	`|\b(?:unauthorized|forbidden)\b` +
	`|\b(?:invalid|incorrect)[ _]api[ _]key\b` +
	`|\bauthentication(?:_error)?\b`)

// AbortOnAuth 鉴权类错误立即终止，输出校验失败始终重试
func AbortOnAuth(err error) Decision {
	if err == nil || IsValidationError(err) {
		return DecisionRetry
	}
	if authErrorPattern.MatchString(err.Error()) {
		return DecisionAbort
	}
	return DecisionRetry
}

// Chain 组合多个分类器，任一判定 Abort 即终止
func Chain(classifiers ...Classifier) Classifier {
	return func(err error) Decision {
		for _, c := range classifiers {
			if c != nil && c(err) == DecisionAbort {
				return DecisionAbort
			}
		}
		return DecisionRetry
	}
}

// Backoff 指数退避参数，Initial 为 0 时不等待
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay 第 attempt 次失败后的等待时长（attempt 从 1 开始）
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(b.Initial) * math.Pow(mult, float64(attempt-1)))
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// RetryPolicy 结构化生成的重试策略
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        Backoff
	Classify       Classifier
}

// PolicyFromConfig 由配置构造重试策略
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		Backoff: Backoff{
			Initial:    cfg.Backoff.Initial,
			Max:        cfg.Backoff.Max,
			Multiplier: cfg.Backoff.Multiplier,
		},
		Classify: RetryAll,
	}
	if cfg.FailFastOnAuth {
		p.Classify = Chain(RetryAll, AbortOnAuth)
	}
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) classify(err error) Decision {
	if p.Classify == nil {
		return RetryAll(err)
	}
	return p.Classify(err)
}

// Retry 在预算内反复执行 fn，每次尝试有独立超时
//
// 单次超时计入预算并继续；父 context 取消立即返回。阶段名取自 context。
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	stage := service.StageFromContext(ctx)
	maxAttempts := policy.attempts()

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		v, err := fn(attemptCtx, attempt)
		cancel()

		if err == nil {
			metrics.GenerationAttempts.WithLabelValues(stage, "ok").Inc()
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		last = err
		metrics.GenerationAttempts.WithLabelValues(stage, outcomeOf(err)).Inc()

		if policy.classify(err) == DecisionAbort {
			logger.Warn(ctx, "structured generation aborted",
				"stage", stage,
				"attempt", attempt,
				"error", err.Error(),
			)
			return zero, fmt.Errorf("stage %s aborted on attempt %d: %w", stage, attempt, err)
		}

		if IsValidationError(err) {
			logger.Debug(ctx, "structured output rejected",
				"stage", stage,
				"attempt", attempt,
				"error", err.Error(),
			)
		} else {
			logger.Warn(ctx, "structured generation attempt failed",
				"stage", stage,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err.Error(),
			)
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, policy.Backoff.Delay(attempt)); err != nil {
				return zero, err
			}
		}
	}

	return zero, &ExhaustedError{Stage: stage, Attempts: maxAttempts, Last: last}
}

func outcomeOf(err error) string {
	switch {
	case IsValidationError(err):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
