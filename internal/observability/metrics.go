package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	examsGeneratedTotal  prometheus.Counter
	examsGradedTotal     *prometheus.CounterVec
	manualGradesTotal    prometheus.Counter
	examPercentage       prometheus.Histogram
	resultCacheLookups   *prometheus.CounterVec
	lifecycleEventsTotal *prometheus.CounterVec
	proctoringSignals    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the exam engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		examsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_generated_total",
			Help: "Number of exam instances generated.",
		})

		examsGradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_graded_total",
			Help: "Number of submissions auto-graded, by qualification outcome.",
		}, []string{"qualified"})

		manualGradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_manual_grades_total",
			Help: "Number of manual grades recorded by reviewers.",
		})

		examPercentage = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_score_percentage",
			Help:    "Distribution of exam percentages after grading.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		})

		resultCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_result_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"outcome"})

		lifecycleEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_lifecycle_events_total",
			Help: "Lifecycle events published, by type.",
		}, []string{"type"})

		proctoringSignals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_proctoring_signals_total",
			Help: "Proctoring signals recorded, by type and severity.",
		}, []string{"type", "severity"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			examsGeneratedTotal, examsGradedTotal, manualGradesTotal, examPercentage,
			resultCacheLookups, lifecycleEventsTotal, proctoringSignals,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ExamsGenerated counts generated exams.
func ExamsGenerated() prometheus.Counter {
	RegisterMetrics()
	return examsGeneratedTotal
}

// ExamsGraded counts auto-graded submissions.
func ExamsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return examsGradedTotal
}

// ManualGrades counts reviewer grades.
func ManualGrades() prometheus.Counter {
	RegisterMetrics()
	return manualGradesTotal
}

// ExamPercentage observes graded percentages.
func ExamPercentage() prometheus.Histogram {
	RegisterMetrics()
	return examPercentage
}

// ResultCacheLookups counts cache hits and misses.
func ResultCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return resultCacheLookups
}

// LifecycleEvents counts published lifecycle events.
func LifecycleEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return lifecycleEventsTotal
}

// ProctoringSignals counts proctoring signals by type and severity.
func ProctoringSignals() *prometheus.CounterVec {
	RegisterMetrics()
	return proctoringSignals
}
