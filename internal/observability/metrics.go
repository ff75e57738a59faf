package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal"

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	snapshotReloadsTotal  *prometheus.CounterVec
	snapshotRecords       prometheus.Gauge
	malformedRecordsTotal prometheus.Counter
	readMarksTotal        *prometheus.CounterVec
	verifyActionsTotal    *prometheus.CounterVec
	streamClientsActive   *prometheus.GaugeVec
	assistantLatency      *prometheus.HistogramVec
	assistantFailures     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors exported by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		snapshotReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "snapshot_reloads_total",
			Help:      "Activity snapshot reloads by result.",
		}, []string{"result"})

		snapshotRecords = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "snapshot_records",
			Help:      "Number of records in the current activity snapshot.",
		})

		malformedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "malformed_records_total",
			Help:      "Data-quality warnings raised while normalizing records.",
		})

		readMarksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "read_marks_total",
			Help:      "Read-mark writes by result (ok, error, retried).",
		}, []string{"result"})

		verifyActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "verify_actions_total",
			Help:      "Registration verify actions by result.",
		}, []string{"result"})

		streamClientsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_clients_active",
			Help:      "Connected feed stream clients.",
		}, []string{"transport"})

		assistantLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "request_duration_seconds",
			Help:      "Duration of assistant completion requests.",
		}, []string{"model"})

		assistantFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "failures_total",
			Help:      "Number of failed assistant completion requests.",
		}, []string{"model"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			snapshotReloadsTotal, snapshotRecords, malformedRecordsTotal,
			readMarksTotal, verifyActionsTotal, streamClientsActive,
			assistantLatency, assistantFailures,
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

// SnapshotReloads counts snapshot loads labelled ok or error.
func SnapshotReloads() *prometheus.CounterVec {
	RegisterMetrics()
	return snapshotReloadsTotal
}

// SnapshotRecords tracks the size of the active snapshot.
func SnapshotRecords() prometheus.Gauge {
	RegisterMetrics()
	return snapshotRecords
}

// MalformedRecords counts normalization warnings.
func MalformedRecords() prometheus.Counter {
	RegisterMetrics()
	return malformedRecordsTotal
}

// ReadMarks counts read-mark persistence attempts.
func ReadMarks() *prometheus.CounterVec {
	RegisterMetrics()
	return readMarksTotal
}

// VerifyActions counts verify actions.
func VerifyActions() *prometheus.CounterVec {
	RegisterMetrics()
	return verifyActionsTotal
}

// StreamClients tracks connected SSE and websocket clients.
func StreamClients() *prometheus.GaugeVec {
	RegisterMetrics()
	return streamClientsActive
}

// AssistantLatency exposes the assistant request histogram.
func AssistantLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return assistantLatency
}

// AssistantFailures exposes the assistant failure counter.
func AssistantFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return assistantFailures
}
