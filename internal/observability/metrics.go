package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	gradingTasksTotal     *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	gradingDurationSecond *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradewise_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradewise_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradewise_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradewise_grading_tasks_total",
			Help: "Grading tasks by terminal outcome.",
		}, []string{"scope", "outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradewise_submissions_total",
			Help: "Per-submission grading outcomes.",
		}, []string{"outcome"})

		gradingDurationSecond = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradewise_grading_duration_seconds",
			Help:    "Duration of one submission's grading pipeline.",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradingTasksTotal,
			submissionsTotal,
			gradingDurationSecond,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingTasks exposes the grading task outcome counter.
func GradingTasks() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingTasksTotal
}

// Submissions exposes the per-submission outcome counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradingDuration exposes the per-submission pipeline duration histogram.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDurationSecond
}
