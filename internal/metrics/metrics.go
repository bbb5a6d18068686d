// Package metrics exposes the Prometheus collectors for the ledger daemon.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the daemon-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dat_ledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dat_ledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dat_ledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dat_ledger",
			Subsystem: "node",
			Name:      "submissions_total",
			Help:      "Submissions processed, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	settlements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dat_ledger",
			Subsystem: "ledger",
			Name:      "settlements_total",
			Help:      "Accepted query settlements.",
		},
	)

	settledVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dat_ledger",
			Subsystem: "ledger",
			Name:      "settled_volume_units_total",
			Help:      "Sum of amounts moved by accepted settlements, in smallest currency units.",
		},
	)

	blockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dat_ledger",
			Subsystem: "node",
			Name:      "block_height",
			Help:      "Height of the most recently sealed block.",
		},
	)

	sealDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dat_ledger",
			Subsystem: "node",
			Name:      "seal_duration_seconds",
			Help:      "Time spent executing and sealing one block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	blockSubmissions = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dat_ledger",
			Subsystem: "node",
			Name:      "block_submissions",
			Help:      "Submissions sealed per block.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	journalLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dat_ledger",
			Subsystem: "journal",
			Name:      "facts_total",
			Help:      "Sequence number of the most recent journalled fact.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		submissions,
		settlements,
		settledVolume,
		blockHeight,
		sealDuration,
		blockSubmissions,
		journalLength,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSubmission counts one sealed submission by operation and outcome.
func RecordSubmission(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	submissions.WithLabelValues(operation, outcome).Inc()
}

// RecordSettlement counts one accepted settlement and its moved amount.
func RecordSettlement(amountPaid uint64) {
	settlements.Inc()
	settledVolume.Add(float64(amountPaid))
}

// RecordBlock records one sealed block.
func RecordBlock(height uint64, submissionCount int, duration time.Duration) {
	blockHeight.Set(float64(height))
	if submissionCount > 0 {
		blockSubmissions.Observe(float64(submissionCount))
	}
	sealDuration.Observe(duration.Seconds())
}

// SetJournalLength publishes the journal's last sequence number.
func SetJournalLength(lastSeq uint64) {
	journalLength.Set(float64(lastSeq))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	switch parts[1] {
	case "assets":
		if len(parts) > 2 {
			return "/v1/assets/:id"
		}
		return "/v1/assets"
	case "balances":
		if len(parts) > 2 {
			return "/v1/balances/:account"
		}
		return "/v1/balances"
	default:
		return "/v1/" + parts[1]
	}
}
