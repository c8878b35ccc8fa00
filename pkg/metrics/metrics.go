package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	ListingPages    prometheus.Counter
	DetailPages     *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	TasksInQueue    prometheus.Gauge
}

// New registers every metric on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_sessions_total",
				Help: "Search sessions run, by outcome.",
			},
			[]string{"outcome"}, // completed, aborted, cancelled, write_failed
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_session_duration_seconds",
				Help:    "Duration of search sessions.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		ListingPages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_listing_pages_total",
				Help: "Listing pages processed.",
			},
		),
		DetailPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_detail_pages_total",
				Help: "Detail pages visited, by status.",
			},
			[]string{"status"}, // success, failure
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Extracted records, by write result.",
			},
			[]string{"result"}, // written, duplicate, invalid, error
		),
		TasksInQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_tasks_in_queue",
				Help: "Current number of search tasks waiting in the queue.",
			},
		),
	}
}
