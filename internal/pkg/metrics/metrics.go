package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AI 模型调用
	ModelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_model_requests_total",
			Help: "Total number of AI model invocations",
		},
		[]string{"model", "status"},
	)

	ModelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_model_request_duration_seconds",
			Help:    "AI model invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"model"},
	)

	CostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_usd_total",
			Help: "Total AI cost charged to user budgets in USD",
		},
		[]string{"model"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallback_total",
			Help: "Number of times the fallback chain advanced to another model",
		},
		[]string{"from", "to"},
	)

	AllModelsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_all_models_failed_total",
			Help: "Number of analyses where every model in the chain failed",
		},
		[]string{"reason"},
	)

	ModelSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_model_selections_total",
			Help: "Model selector decisions",
		},
		[]string{"model", "reason"},
	)

	// 分析流水线
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of document analyses by final status",
		},
		[]string{"status"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_progress_connections",
			Help: "Open websocket connections receiving analysis progress",
		},
	)
)
