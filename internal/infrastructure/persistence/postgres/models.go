package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"roguelike-forge-api/internal/domain/entity"
)

// bundleModel asset_bundles 表，完整资产包以 JSON 存于 bundle_data
type bundleModel struct {
	ID                    string         `gorm:"type:uuid;primaryKey"`
	Name                  string         `gorm:"type:varchar(150);not null"`
	RawDescription        string         `gorm:"type:text;not null"`
	LLMProvider           string         `gorm:"type:varchar(64)"`
	LLMModel              string         `gorm:"type:varchar(128)"`
	GenerationTimeSeconds int            `gorm:"not null;default:0"`
	LevelNames            pq.StringArray `gorm:"type:text[]"`
	BundleData            []byte         `gorm:"type:jsonb;not null"`
	CreatedAt             time.Time      `gorm:"not null;index:idx_asset_bundles_created_at,sort:desc"`
	UpdatedAt             time.Time      `gorm:"not null"`
}

func (bundleModel) TableName() string { return "asset_bundles" }

func newBundleModel(b *entity.AssetBundle) (*bundleModel, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	return &bundleModel{
		ID:                    b.ID,
		Name:                  b.Name,
		RawDescription:        b.RawDescription,
		LLMProvider:           b.LLMProvider,
		LLMModel:              b.LLMModel,
		GenerationTimeSeconds: b.GenerationTimeSeconds,
		LevelNames:            pq.StringArray(b.LevelNames()),
		BundleData:            data,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.CreatedAt,
	}, nil
}

// toEntity 列值优先于 JSON 中的同名字段（重命名只改列）
func (m *bundleModel) toEntity() (*entity.AssetBundle, error) {
	var b entity.AssetBundle
	if err := json.Unmarshal(m.BundleData, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", m.ID, err)
	}
	b.ID = m.ID
	b.Name = m.Name
	b.CreatedAt = m.CreatedAt
	return &b, nil
}

// bundleSummaryRow 列表查询投影
type bundleSummaryRow struct {
	ID                    string
	Name                  string
	LLMModel              string
	GenerationTimeSeconds int
	CreatedAt             time.Time
}

// jobModel generation_jobs 表
type jobModel struct {
	ID             string     `gorm:"type:uuid;primaryKey"`
	JobType        string     `gorm:"type:varchar(32);not null;index"`
	Status         string     `gorm:"type:varchar(16);not null;index"`
	Theme          string     `gorm:"type:text;not null"`
	InputParams    []byte     `gorm:"type:jsonb"`
	Stage          string     `gorm:"type:varchar(64)"`
	Progress       int        `gorm:"not null;default:0"`
	ResultID       string     `gorm:"type:varchar(64)"`
	OutputResult   []byte     `gorm:"type:jsonb"`
	ErrorMessage   string     `gorm:"type:text"`
	LLMProvider    string     `gorm:"type:varchar(64)"`
	LLMModel       string     `gorm:"type:varchar(128)"`
	TokensPrompt   int        `gorm:"not null;default:0"`
	TokensComplete int        `gorm:"column:tokens_completion;not null;default:0"`
	DurationMs     int        `gorm:"not null;default:0"`
	RetryCount     int        `gorm:"not null;default:0"`
	IdempotencyKey *string    `gorm:"type:varchar(128);uniqueIndex"`
	CreatedAt      time.Time  `gorm:"not null;index"`
	UpdatedAt      time.Time  `gorm:"not null"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func (jobModel) TableName() string { return "generation_jobs" }

func newJobModel(j *entity.GenerationJob) *jobModel {
	m := &jobModel{
		ID:             j.ID,
		JobType:        string(j.JobType),
		Status:         string(j.Status),
		Theme:          j.Theme,
		InputParams:    nullableJSON(j.InputParams),
		Stage:          j.Stage,
		Progress:       j.Progress,
		ResultID:       j.ResultID,
		OutputResult:   nullableJSON(j.OutputResult),
		ErrorMessage:   j.ErrorMessage,
		LLMProvider:    j.LLMProvider,
		LLMModel:       j.LLMModel,
		TokensPrompt:   j.TokensPrompt,
		TokensComplete: j.TokensComplete,
		DurationMs:     j.DurationMs,
		RetryCount:     j.RetryCount,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
	if j.IdempotencyKey != "" {
		key := j.IdempotencyKey
		m.IdempotencyKey = &key
	}
	return m
}

func (m *jobModel) toEntity() *entity.GenerationJob {
	j := &entity.GenerationJob{
		ID:             m.ID,
		JobType:        entity.JobType(m.JobType),
		Status:         entity.JobStatus(m.Status),
		Theme:          m.Theme,
		InputParams:    m.InputParams,
		Stage:          m.Stage,
		Progress:       m.Progress,
		ResultID:       m.ResultID,
		OutputResult:   m.OutputResult,
		ErrorMessage:   m.ErrorMessage,
		LLMProvider:    m.LLMProvider,
		LLMModel:       m.LLMModel,
		TokensPrompt:   m.TokensPrompt,
		TokensComplete: m.TokensComplete,
		DurationMs:     m.DurationMs,
		RetryCount:     m.RetryCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
	if m.IdempotencyKey != nil {
		j.IdempotencyKey = *m.IdempotencyKey
	}
	return j
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
