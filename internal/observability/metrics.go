package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pddbwire",
			Subsystem: "transfer",
			Name:      "total",
			Help:      "Buffer transfers to a remote endpoint.",
		},
		[]string{"node", "opcode", "mode", "success"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pddbwire",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Time blocked waiting for the remote to return the buffer.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "opcode", "mode", "success"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pddbwire",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Valid bytes carried by transfers, by direction.",
		},
		[]string{"node", "opcode", "direction"},
	)
	statusReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pddbwire",
			Subsystem: "client",
			Name:      "status_total",
			Help:      "Remote status codes seen by operation.",
		},
		[]string{"op", "status"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pddbwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by route and status.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pddbwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	activeStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pddbwire",
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Stream connections currently served.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transfers, transferDuration, transferBytes, statusReplies, httpRequests, httpDuration, activeStreams)
	})
}

func RecordTransfer(node string, opcode uint32, mode string, sent, received int, duration time.Duration, success bool) {
	RegisterMetrics()
	op := strconv.FormatUint(uint64(opcode), 10)
	successLabel := strconv.FormatBool(success)
	transfers.WithLabelValues(node, op, mode, successLabel).Inc()
	transferDuration.WithLabelValues(node, op, mode, successLabel).Observe(duration.Seconds())
	transferBytes.WithLabelValues(node, op, "out").Add(float64(sent))
	if received > 0 {
		transferBytes.WithLabelValues(node, op, "in").Add(float64(received))
	}
}

func RecordStatus(op, status string) {
	RegisterMetrics()
	statusReplies.WithLabelValues(op, status).Inc()
}

func SetActiveStreams(node string, n int64) {
	RegisterMetrics()
	activeStreams.WithLabelValues(node).Set(float64(n))
}

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
