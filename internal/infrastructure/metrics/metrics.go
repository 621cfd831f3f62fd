package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/tool"
)

const namespace = "chat_api"

// Chat API metrics
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint", "status"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by model and final message status",
		},
		[]string{"model", "status"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of streamed chat turns",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	TurnSteps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_steps",
			Help:      "Model round trips per turn",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"model"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by kind",
		},
		[]string{"model", "kind"},
	)

	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events written to chat streams",
		},
		[]string{"type"},
	)

	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Settled tool invocations by terminal state",
		},
		[]string{"tool", "state"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"tool"},
	)

	BackgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Background task attempts by outcome",
		},
		[]string{"kind", "outcome"},
	)

	BackgroundTaskFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_task_failures_total",
			Help:      "Background task attempts that returned an error",
		},
		[]string{"kind", "final"},
	)

	BackgroundTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "background_task_duration_seconds",
			Help:      "Background task execution time",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queued background tasks",
		},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently processing a task",
		},
	)
)

// ObserveRequest records one HTTP request.
func ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	RequestDuration.WithLabelValues(method, endpoint, code).Observe(elapsed.Seconds())
}

// ObserveTurn records a finished chat turn.
func ObserveTurn(s chat.TurnSummary) {
	TurnsTotal.WithLabelValues(s.ModelID, string(s.Status)).Inc()
	TurnDuration.WithLabelValues(s.ModelID).Observe(s.Duration.Seconds())
	if s.Steps > 0 {
		TurnSteps.WithLabelValues(s.ModelID).Observe(float64(s.Steps))
	}
	TokensTotal.WithLabelValues(s.ModelID, "prompt").Add(float64(s.Usage.PromptTokens))
	TokensTotal.WithLabelValues(s.ModelID, "completion").Add(float64(s.Usage.CompletionTokens))
}

// ObserveToolSettlement records one settled tool call.
func ObserveToolSettlement(s tool.Settlement) {
	ToolInvocationsTotal.WithLabelValues(s.Call.Name, string(s.State)).Inc()
	ToolDuration.WithLabelValues(s.Call.Name).Observe(s.Duration.Seconds())
}

// ObserveBackgroundTask records one task attempt.
func ObserveBackgroundTask(kind string, elapsed time.Duration, err error, final bool) {
	BackgroundTaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err == nil {
		BackgroundTasksTotal.WithLabelValues(kind, "completed").Inc()
		return
	}
	outcome := "retried"
	if final {
		outcome = "failed"
	}
	BackgroundTasksTotal.WithLabelValues(kind, outcome).Inc()
	BackgroundTaskFailuresTotal.WithLabelValues(kind, strconv.FormatBool(final)).Inc()
}
