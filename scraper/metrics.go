package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the downloader.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	OutcomesTotal    *prometheus.CounterVec
	BooksSavedTotal  prometheus.Counter
	BackoffsTotal    prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	FetchErrorsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_requests_total",
			Help: "Total HTTP requests issued, by resource.",
		},
		[]string{"resource"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tululu_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_outcomes_total",
			Help: "Identifiers processed, by outcome.",
		},
		[]string{"outcome"},
	)
	booksSaved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_books_saved_total",
			Help: "Total number of books written to disk.",
		},
	)
	backoffs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_backoffs_total",
			Help: "Total number of network back-off pauses.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_errors_total",
			Help: "Identifiers skipped, by error type.",
		},
		[]string{"error_type"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_fetch_errors_total",
			Help: "Failed HTTP requests, by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, outcomes, booksSaved, backoffs, errorsTotal, fetchErrors)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		OutcomesTotal:    outcomes,
		BooksSavedTotal:  booksSaved,
		BackoffsTotal:    backoffs,
		ErrorsTotal:      errorsTotal,
		FetchErrorsTotal: fetchErrors,
	}
}

// ObserveFetch implements fetch.Observer.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
	if err != nil {
		m.FetchErrorsTotal.WithLabelValues(errorTypeLabel(err)).Inc()
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(resource string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(resource).Inc()
}

// IncOutcome counts one processed identifier.
func (m *Metrics) IncOutcome(kind OutcomeKind) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind.String()).Inc()
}

// IncBooksSaved increments the saved books counter.
func (m *Metrics) IncBooksSaved() {
	if m == nil {
		return
	}
	m.BooksSavedTotal.Inc()
}

// IncBackoffs increments the back-off counter.
func (m *Metrics) IncBackoffs() {
	if m == nil {
		return
	}
	m.BackoffsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
