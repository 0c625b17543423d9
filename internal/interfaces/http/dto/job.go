// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"time"

	"roguelike-forge-api/internal/domain/entity"
)

// JobResponse 任务响应
type JobResponse struct {
	ID               string          `json:"id"`
	JobType          string          `json:"job_type"`
	Status           string          `json:"status"`
	Theme            string          `json:"theme"`
	Stage            string          `json:"stage,omitempty"`
	Progress         int             `json:"progress"`
	ResultID         string          `json:"result_id,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	ErrorMsg         string          `json:"error_msg,omitempty"`
	LLMProvider      string          `json:"llm_provider,omitempty"`
	LLMModel         string          `json:"llm_model,omitempty"`
	TokensPrompt     int             `json:"tokens_prompt,omitempty"`
	TokensCompletion int             `json:"tokens_completion,omitempty"`
	DurationMs       int             `json:"duration_ms,omitempty"`
	RetryCount       int             `json:"retry_count"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// JobListResponse 任务列表响应
type JobListResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// ToJobResponse 将领域实体转换为响应 DTO
func ToJobResponse(j *entity.GenerationJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:               j.ID,
		JobType:          string(j.JobType),
		Status:           string(j.Status),
		Theme:            j.Theme,
		Stage:            j.Stage,
		Progress:         j.Progress,
		ResultID:         j.ResultID,
		Result:           j.OutputResult,
		ErrorMsg:         j.ErrorMessage,
		LLMProvider:      j.LLMProvider,
		LLMModel:         j.LLMModel,
		TokensPrompt:     j.TokensPrompt,
		TokensCompletion: j.TokensComplete,
		DurationMs:       j.DurationMs,
		RetryCount:       j.RetryCount,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// ToJobListResponse 将领域实体列表转换为响应 DTO
func ToJobListResponse(jobs []*entity.GenerationJob) *JobListResponse {
	resp := &JobListResponse{
		Jobs: make([]*JobResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, ToJobResponse(j))
	}
	return resp
}
