package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLM 调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "Text-completion call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"operation", "status"},
	)

	// LLM token 用量
	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_used_total",
			Help: "Total tokens consumed by text-completion calls",
		},
		[]string{"kind"}, // kind: prompt, completion
	)

	// 邮件生成计数
	EmailGeneratedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_generated_count",
			Help: "Total number of sprint emails generated",
		},
		[]string{"path"}, // path: template, from_scratch, failed
	)

	// 占位符填充计数
	PlaceholderFillCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placeholder_fill_count",
			Help: "Total number of template placeholders filled",
		},
		[]string{"source"}, // source: context, generated, fallback
	)

	// 训练邮件分析计数
	TrainingEmailAnalyzedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_email_analyzed_count",
			Help: "Total number of training emails analyzed",
		},
		[]string{"status"}, // status: success, failed
	)

	// 模板回退计数
	TemplateFallbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "template_fallback_count",
			Help: "Total number of synthesized templates that used the skeleton fallback",
		},
		[]string{"email_type"},
	)

	// 通用写作助手调用计数
	AssistantOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_operation_count",
			Help: "Total number of general email assistant operations",
		},
		[]string{"operation", "status"}, // status: success, failed, cached
	)

	// 相似度匹配得分
	SimilarityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "similarity_best_score",
			Help:    "Best cosine similarity found per generation request",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
		[]string{"sql"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordLLMCallLatency 记录 LLM 调用延迟
func RecordLLMCallLatency(operation, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// AddTokenUsage 累计 token 用量
func AddTokenUsage(prompt, completion int) {
	LLMTokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	LLMTokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrementEmailGenerated 增加邮件生成计数
func IncrementEmailGenerated(path string) {
	EmailGeneratedCount.WithLabelValues(path).Inc()
}

// IncrementPlaceholderFill 增加占位符填充计数
func IncrementPlaceholderFill(source string) {
	PlaceholderFillCount.WithLabelValues(source).Inc()
}

// IncrementTrainingEmailAnalyzed 增加训练邮件分析计数
func IncrementTrainingEmailAnalyzed(status string) {
	TrainingEmailAnalyzedCount.WithLabelValues(status).Inc()
}

// IncrementTemplateFallback 增加模板回退计数
func IncrementTemplateFallback(emailType string) {
	TemplateFallbackCount.WithLabelValues(emailType).Inc()
}

// IncrementAssistantOperation 增加写作助手调用计数
func IncrementAssistantOperation(operation, status string) {
	AssistantOperationCount.WithLabelValues(operation, status).Inc()
}

// ObserveSimilarity 记录最佳相似度
func ObserveSimilarity(score float64) {
	SimilarityScore.Observe(score)
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
