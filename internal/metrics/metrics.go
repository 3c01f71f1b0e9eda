package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/crewguard/internal/core/retry"
)

var (
	// RetryAttemptsTotal tracks attempts made per policy
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewguard_retry_attempts_total",
			Help: "Total number of guarded call attempts",
		},
		[]string{"policy"},
	)

	// RetryWaitsTotal tracks scheduled retries by classification
	RetryWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewguard_retry_waits_total",
			Help: "Total number of retries scheduled after a transient error",
		},
		[]string{"policy", "class"},
	)

	// RetryWaitSeconds tracks time spent suspended
	RetryWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewguard_retry_wait_seconds",
			Help:    "Suspension time before a retry or call in seconds",
			Buckets: []float64{1, 3, 10, 30, 60, 90, 120, 180, 300},
		},
		[]string{"policy", "kind"},
	)

	// RetryOutcomesTotal tracks how logical calls ended
	RetryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewguard_retry_outcomes_total",
			Help: "Total number of logical calls by outcome",
		},
		[]string{"policy", "outcome"},
	)

	// LLMRequestsTotal tracks chat-completion requests
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewguard_llm_requests_total",
			Help: "Total number of chat-completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	// LLMLatency tracks chat-completion latency
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewguard_llm_latency_seconds",
			Help:    "Chat-completion request latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		},
		[]string{"provider", "model"},
	)

	// PipelineRunsTotal tracks pipeline runs by status
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewguard_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// PipelineRunDuration tracks end-to-end run time
	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crewguard_pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1800},
		},
	)
)

// Observer records controller events.
func Observer() retry.Observer {
	return retry.ObserverFunc(func(e retry.Event) {
		switch e.Kind {
		case retry.EventAttempt:
			RetryAttemptsTotal.WithLabelValues(e.Policy).Inc()
		case retry.EventThrottle:
			if e.Wait > 0 {
				RetryWaitSeconds.WithLabelValues(e.Policy, "throttle").Observe(e.Wait.Seconds())
			}
		case retry.EventRetry:
			RetryWaitsTotal.WithLabelValues(e.Policy, e.Class.String()).Inc()
			RetryWaitSeconds.WithLabelValues(e.Policy, "retry").Observe(e.Wait.Seconds())
		case retry.EventSuccess, retry.EventFatal, retry.EventExhausted:
			RetryOutcomesTotal.WithLabelValues(e.Policy, string(e.Kind)).Inc()
		}
	})
}

// ObserveLLMRequest records one chat-completion request.
func ObserveLLMRequest(provider, model string, latency time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = retry.DefaultClassifier(err).String()
	}
	LLMRequestsTotal.WithLabelValues(provider, model, status).Inc()
	LLMLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// ObservePipelineRun records a finished pipeline run.
func ObservePipelineRun(status string, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}
