// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for distributed tracing and exposes
// Prometheus instrumentation for HTTP traffic, AI provider calls, and
// interview-level outcomes.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// SelectorOutcomesTotal tracks how each question was ultimately chosen
	// (llm, rules, followup, closing) and why the LLM path was abandoned
	// (timeout, invalid_id, duplicate).
	SelectorOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selector_outcomes_total",
			Help: "Question selection outcomes by source",
		},
		[]string{"source"},
	)
	SelectorAnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selector_anomalies_total",
			Help: "Invalid LLM selections discarded by the selector",
		},
		[]string{"reason"},
	)

	ScoreCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_corrections_total",
			Help: "Rubric corrections applied by the score validator",
		},
		[]string{"correction"},
	)

	SessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_started_total",
			Help: "Interview sessions started by route",
		},
		[]string{"route"},
	)
	SessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_completed_total",
			Help: "Interview sessions completed by route",
		},
		[]string{"route"},
	)

	ReportsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_enqueued_total",
			Help: "Total number of report tasks enqueued",
		},
		[]string{"type"},
	)
	ReportsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reports_processing",
			Help: "Number of report tasks currently processing",
		},
		[]string{"type"},
	)
	ReportsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_completed_total",
			Help: "Total number of report tasks completed",
		},
		[]string{"type"},
	)
	ReportsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_failed_total",
			Help: "Total number of report tasks failed",
		},
		[]string{"type"},
	)

	// ContentScoreHistogram observes corrected per-answer content scores.
	ContentScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answer_content_score",
			Help:    "Distribution of corrected per-answer content scores [0,100]",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(SelectorOutcomesTotal)
	prometheus.MustRegister(SelectorAnomaliesTotal)
	prometheus.MustRegister(ScoreCorrectionsTotal)
	prometheus.MustRegister(SessionsStartedTotal)
	prometheus.MustRegister(SessionsCompletedTotal)
	prometheus.MustRegister(ReportsEnqueuedTotal)
	prometheus.MustRegister(ReportsProcessing)
	prometheus.MustRegister(ReportsCompletedTotal)
	prometheus.MustRegister(ReportsFailedTotal)
	prometheus.MustRegister(ContentScoreHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAICall records one AI provider call.
func ObserveAICall(operation, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

// RecordSelection records how a question was chosen.
func RecordSelection(source string) {
	SelectorOutcomesTotal.WithLabelValues(source).Inc()
}

// RecordSelectorAnomaly records a discarded LLM selection.
func RecordSelectorAnomaly(reason string) {
	SelectorAnomaliesTotal.WithLabelValues(reason).Inc()
}

// EnqueueReport increments the report-enqueued counter.
func EnqueueReport(taskType string) {
	ReportsEnqueuedTotal.WithLabelValues(taskType).Inc()
}
