// Package metrics 进程内的 Prometheus 指标，统一挂在 forge 命名空间下
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forge"

// 耗时桶：HTTP 覆盖同步生成的长请求，模型与阶段按秒级分布
var (
	httpBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 60, 300}
	stageBuckets  = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300}
	llmBuckets    = []float64{1, 5, 10, 30, 60, 120}
	searchBuckets = []float64{.01, .05, .1, .25, .5, 1}
)

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// HTTP
var (
	HTTPRequestsTotal   = counter("http", "requests_total", "HTTP requests by route and status", "method", "path", "status")
	HTTPRequestDuration = histogram("http", "request_duration_seconds", "HTTP request latency", httpBuckets, "method", "path")
	RateLimitHits       = counter("http", "rate_limited_total", "Requests rejected by the rate limiter", "path")
)

// 生成流水线
var (
	GenerationTotal         = counter("generation", "total", "Pipeline runs by outcome", "pipeline", "status")
	GenerationStageDuration = histogram("generation", "stage_duration_seconds", "Duration of one pipeline stage", stageBuckets, "pipeline", "stage")
	// outcome: ok / invalid / error / timeout
	GenerationAttempts = counter("generation", "attempts_total", "Structured generation attempts by outcome", "stage", "outcome")
	TextureLookups     = counter("generation", "texture_lookups_total", "Texture resolutions by category and memo hit", "category", "memo")

	ActiveGenerations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "active",
		Help:      "Pipelines currently running",
	})
)

// 模型调用
var (
	// type: prompt / completion
	LLMTokensUsed   = counter("llm", "tokens_used_total", "Tokens consumed by chat model calls", "provider", "model", "type")
	LLMCallDuration = histogram("llm", "call_duration_seconds", "Chat model call latency", llmBuckets, "provider", "model")
	LLMCallTotal    = counter("llm", "call_total", "Chat model calls by status", "provider", "model", "status")

	EmbeddingDuration = histogram("embedding", "call_duration_seconds", "Embedding call latency", searchBuckets, "status")
	EmbeddingTexts    = counter("embedding", "texts_total", "Texts sent to the embedding model")
)

// 纹理索引
var (
	MilvusSearchDuration = histogram("milvus", "search_duration_seconds", "Nearest-description search latency", searchBuckets, "collection")
	MilvusSearchTotal    = counter("milvus", "search_total", "Nearest-description searches by status", "collection", "status")
	TilesetRowsIndexed   = counter("milvus", "tileset_rows_indexed_total", "Tileset rows embedded and inserted", "category")
)

// 任务队列
var (
	RedisStreamProcessed = counter("redis", "stream_processed_total", "Stream entries handled by status", "stream", "status")
	JobsProcessed        = counter("job", "processed_total", "Generation jobs processed by type and status", "type", "status")

	StreamDeadLetters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "stream_dead_letters",
		Help:      "Entries waiting in the dead letter stream",
	}, []string{"stream"})
)
