package entity

import (
	"encoding/json"
	"time"
)

// JobType 任务类型
type JobType string

const (
	JobTypeBundleGen JobType = "bundle_gen"
	JobTypeMapGen    JobType = "map_gen"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeBundleGen, JobTypeMapGen:
		return true
	}
	return false
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal 终态任务不会再被 worker 执行
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// GenerationJob 异步生成任务
type GenerationJob struct {
	ID             string          `json:"id"`
	JobType        JobType         `json:"job_type"`
	Status         JobStatus       `json:"status"`
	Theme          string          `json:"theme"`
	InputParams    json.RawMessage `json:"input_params,omitempty"`
	Stage          string          `json:"stage,omitempty"`
	Progress       int             `json:"progress"`
	ResultID       string          `json:"result_id,omitempty"`
	OutputResult   json.RawMessage `json:"output_result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	LLMProvider    string          `json:"llm_provider,omitempty"`
	LLMModel       string          `json:"llm_model,omitempty"`
	TokensPrompt   int             `json:"tokens_prompt,omitempty"`
	TokensComplete int             `json:"tokens_completion,omitempty"`
	DurationMs     int             `json:"duration_ms,omitempty"`
	RetryCount     int             `json:"retry_count"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewGenerationJob 待处理任务，ID 由存储层分配
func NewGenerationJob(jobType JobType, theme string) *GenerationJob {
	return &GenerationJob{JobType: jobType, Status: JobStatusPending, Theme: theme, CreatedAt: time.Now()}
}

// Start 进入执行；消息重投递时累计重试次数
func (j *GenerationJob) Start() {
	if j.StartedAt != nil {
		j.RetryCount++
	}
	now := time.Now()
	j.Status, j.StartedAt, j.ErrorMessage = JobStatusRunning, &now, ""
}

// Complete 资产包任务记录 resultID，地图任务内联编译结果
func (j *GenerationJob) Complete(resultID string, result json.RawMessage) {
	j.ResultID, j.OutputResult = resultID, result
	j.UpdateProgress(j.Stage, 100)
	j.finish(JobStatusCompleted)
}

func (j *GenerationJob) Fail(errMsg string) {
	j.ErrorMessage = errMsg
	j.finish(JobStatusFailed)
}

func (j *GenerationJob) finish(status JobStatus) {
	now := time.Now()
	j.Status, j.CompletedAt = status, &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

func (j *GenerationJob) SetLLMMetrics(provider, model string, promptTokens, completionTokens int) {
	j.LLMProvider, j.LLMModel = provider, model
	j.TokensPrompt, j.TokensComplete = promptTokens, completionTokens
}

// UpdateProgress progress 收敛到 0-100
func (j *GenerationJob) UpdateProgress(stage string, progress int) {
	j.Stage = stage
	j.Progress = min(max(progress, 0), 100)
}
