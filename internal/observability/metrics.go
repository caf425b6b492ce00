package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipable_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipable_http_request_duration_seconds",
			Help: "HTTP request latency by route.",
			// /generate waits on the model and /train on a whole fine-tune.
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"route"},
	)

	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipable_ask_total",
			Help: "Total number of ask and ask_and_execute calls by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	askDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipable_ask_duration_seconds",
			Help:    "End to end latency of ask calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
	promptSkippedFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipable_prompt_skipped_fragments_total",
			Help: "Context fragments dropped because they did not parse as CREATE TABLE.",
		},
	)
	generateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipable_generate_total",
			Help: "Total number of /generate requests served by outcome.",
		},
		[]string{"outcome"},
	)
	trainRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipable_train_runs_total",
			Help: "Total number of training runs by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		askTotal,
		askDurationSeconds,
		promptSkippedFragmentsTotal,
		generateTotal,
		trainRunsTotal,
	)
}

// ObserveAsk records one orchestrator call. outcome is "ok" or an error kind.
func ObserveAsk(operation, outcome string, elapsed time.Duration) {
	askTotal.WithLabelValues(operation, outcome).Inc()
	askDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func AddPromptSkippedFragments(n int) {
	if n > 0 {
		promptSkippedFragmentsTotal.Add(float64(n))
	}
}

func IncrementGenerate(outcome string) {
	generateTotal.WithLabelValues(outcome).Inc()
}

func IncrementTrainRun(status string) {
	trainRunsTotal.WithLabelValues(status).Inc()
}
