package handler

import (
	"context"
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/application/bundle"
	"roguelike-forge-api/internal/application/job"
	"roguelike-forge-api/internal/application/mapgen"
	"roguelike-forge-api/internal/application/retrieval"
	"roguelike-forge-api/internal/domain/entity"
	"roguelike-forge-api/internal/domain/repository"
	"roguelike-forge-api/internal/interfaces/http/dto"
	"roguelike-forge-api/internal/workflow/structured"
	"roguelike-forge-api/pkg/errors"
	"roguelike-forge-api/pkg/logger"
)

// JobService 异步任务入口
type JobService interface {
	Submit(ctx context.Context, jobType entity.JobType, theme, idempotencyKey string) (*entity.GenerationJob, error)
	Get(ctx context.Context, id string) (*entity.GenerationJob, error)
	List(ctx context.Context, filter *repository.JobFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationJob], error)
}

// IdempotencyKeyHeader 异步提交的幂等键请求头
const IdempotencyKeyHeader = "Idempotency-Key"

// toAppError 将应用层错误映射为 AppError
func toAppError(err error) *errors.AppError {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}

	var (
		bundleStage *bundle.StageError
		mapStage    *mapgen.StageError
		exhausted   *structured.ExhaustedError
		stage       string
	)
	switch {
	case stderrors.As(err, &bundleStage):
		stage = bundleStage.Stage
	case stderrors.As(err, &mapStage):
		stage = mapStage.Stage
	}

	var appErr *errors.AppError
	switch {
	case stderrors.Is(err, job.ErrJobNotFound):
		appErr = errors.ErrJobNotFound
	case stderrors.Is(err, bundle.ErrEmptyTheme), stderrors.Is(err, mapgen.ErrEmptyTheme),
		stderrors.Is(err, job.ErrEmptyTheme), stderrors.Is(err, job.ErrUnknownJobType),
		stderrors.Is(err, retrieval.ErrUnknownCategory), stderrors.Is(err, retrieval.ErrEmptyQuery),
		stderrors.Is(err, retrieval.ErrInvalidTopK):
		appErr = errors.ErrInvalidParam
	case stderrors.Is(err, entity.ErrInvalidTitle):
		appErr = errors.ErrValidationFailed
	case stderrors.Is(err, retrieval.ErrIndexNotBuilt), stderrors.Is(err, retrieval.ErrVectorDisabled):
		appErr = errors.ErrIndexNotBuilt
	case stderrors.Is(err, retrieval.ErrEmptyCategory):
		appErr = errors.ErrRetrievalFailed
	case stderrors.Is(err, mapgen.ErrDanglingReference), stderrors.Is(err, mapgen.ErrUnknownSymbol),
		stderrors.Is(err, mapgen.ErrPlayerSpawn):
		appErr = errors.ErrMapCompileFailed
	case stderrors.Is(err, context.DeadlineExceeded):
		appErr = errors.ErrGenerationTimeout
	case stderrors.As(err, &exhausted), stage != "":
		appErr = errors.ErrGenerationFailed
	default:
		return errors.ErrInternalError.WithError(err)
	}

	detail := err.Error()
	if stage != "" {
		detail = "stage " + stage + ": " + detail
	}
	return appErr.WithDetail(detail).WithError(err)
}

// respondError 输出错误响应，5xx 记录日志
func respondError(c *gin.Context, op string, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), "failed to "+op, err)
	}
	if appErr.Code == errors.CodeInternalError {
		dto.InternalError(c, "failed to "+op)
		return
	}
	dto.FromAppError(c, appErr)
}
