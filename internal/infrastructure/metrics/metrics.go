package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Loanflow Chat API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Chat message counters
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "messages_processed_total",
			Help:      "Chat messages processed, labelled by conversation stage and detected intent",
		},
		[]string{"stage", "intent"},
	)

	// Agent task execution counters
	AgentTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "agent_tasks_total",
			Help:      "Agent task executions by agent type and outcome",
		},
		[]string{"agent_type", "status"},
	)

	// Agent task duration histogram
	AgentTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "agent_task_duration_seconds",
			Help:      "Agent task execution duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"agent_type"},
	)

	// Agent task retry counter
	AgentTaskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "agent_task_retries_total",
			Help:      "Agent task retry attempts",
		},
		[]string{"agent_type"},
	)

	// External API call counters
	ExternalAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "external_api_calls_total",
			Help:      "Outbound API calls by target and result source",
		},
		[]string{"api", "source", "status"},
	)

	// Circuit breaker state gauge (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per external API (0 closed, 1 open, 2 half-open)",
		},
		[]string{"api"},
	)

	// Underwriting decision counter
	UnderwritingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "underwriting_decisions_total",
			Help:      "Underwriting decisions by type",
		},
		[]string{"decision"},
	)

	// Active session gauge
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "active_sessions",
			Help:      "Number of active chat sessions",
		},
	)

	// Sanction letter counter
	SanctionLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "sanction_letters_total",
			Help:      "Sanction letter generations by outcome",
		},
		[]string{"status"},
	)

	// Escalations raised when a worker agent keeps failing
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loanflow",
			Subsystem: "chat_api",
			Name:      "escalations_total",
			Help:      "Worker agent escalations by agent type",
		},
		[]string{"agent_type"},
	)
)
