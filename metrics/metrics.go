package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code", "service"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "service"},
	)

	// Crawl metrics
	CrawlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_runs_total",
			Help: "Total number of crawl runs",
		},
		[]string{"source", "mode", "status"},
	)

	CrawlRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawl_run_duration_seconds",
			Help:    "Crawl run duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"source", "mode"},
	)

	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_pages_fetched_total",
			Help: "Total number of listing pages requested",
		},
		[]string{"source", "status"},
	)

	RecordsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_records_reconciled_total",
			Help: "Total number of records reconciled, by outcome",
		},
		[]string{"source", "outcome"},
	)

	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawl_cursor_next_page",
			Help: "Next page persisted for rotating sources",
		},
		[]string{"source"},
	)

	// Notification metrics
	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notification events created",
		},
		[]string{"source", "type"},
	)

	NotificationFanoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_fanout_total",
			Help: "Total number of fan-out attempts",
		},
		[]string{"status"},
	)

	// Database metrics
	MongoOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongo_operations_total",
			Help: "Total number of MongoDB operations",
		},
		[]string{"operation", "collection", "status"},
	)

	MongoOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mongo_operation_duration_seconds",
			Help:    "MongoDB operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	// NATS metrics
	NatsMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject", "status"},
	)

	NatsMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"subject", "status"},
	)

	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "application_info",
			Help: "Application information",
		},
		[]string{"service", "version", "environment"},
	)
)

// Init sets the static application info gauge.
func Init(serviceName, version, environment string) {
	ApplicationInfo.WithLabelValues(serviceName, version, environment).Set(1)
}

func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
