package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "chaptermaker"

	jobsFinishedTotal     = "jobs_finished_total"
	jobsSubmittedTotal    = "jobs_submitted_total"
	stageDurationSeconds  = "stage_duration_seconds"
	uploadTicketsTotal    = "upload_tickets_total"
	retentionDeletedTotal = "retention_deleted_total"
	retentionErrorsTotal  = "retention_errors_total"

	statusLabel = "status"
	stageLabel  = "stage"
	kindLabel   = "kind"
	scopeLabel  = "scope"
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var jobsSubmittedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsSubmittedTotal,
		Help:      "number of accepted job submissions",
	},
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      stageDurationSeconds,
		Help:      "time spent in each pipeline stage",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	},
	[]string{stageLabel, statusLabel},
)

var uploadTicketsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      uploadTicketsTotal,
		Help:      "number of issued upload tickets",
	},
	[]string{kindLabel},
)

var retentionDeletedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      retentionDeletedTotal,
		Help:      "number of objects and job records removed by the retention sweeper",
	},
	[]string{scopeLabel},
)

var retentionErrorsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      retentionErrorsTotal,
		Help:      "number of deletions the retention sweeper could not perform",
	},
)

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseJobsSubmittedMetric(n int) {
	jobsSubmittedMetric.Add(float64(n))
}

func ObserveStageDuration(stage, status string, seconds float64) {
	stageDurationMetric.With(prometheus.Labels{stageLabel: stage, statusLabel: status}).Observe(seconds)
}

func IncreaseUploadTicketsMetric(kind string) {
	uploadTicketsMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func IncreaseRetentionDeletedMetric(scope string, n int) {
	retentionDeletedMetric.With(prometheus.Labels{scopeLabel: scope}).Add(float64(n))
}

func IncreaseRetentionErrorsMetric(n int) {
	retentionErrorsMetric.Add(float64(n))
}

// NewPrometheusMetricsHandler serves the default registry.
func NewPrometheusMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(stageDurationMetric)
	prometheus.MustRegister(uploadTicketsMetric)
	prometheus.MustRegister(retentionDeletedMetric)
	prometheus.MustRegister(retentionErrorsMetric)
}
