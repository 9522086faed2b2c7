package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"server", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scenebridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "route", "status"},
	)
	roundTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "session",
			Name:      "round_trips_total",
			Help:      "Request/reply exchanges by sent state and received state.",
		},
		[]string{"sent", "received"},
	)
	roundTripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scenebridge",
			Subsystem: "session",
			Name:      "round_trip_seconds",
			Help:      "Time from request write to reply read.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"sent"},
	)
	replyTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "session",
			Name:      "reply_timeouts_total",
			Help:      "Requests that received no reply within the attempt timeout.",
		},
	)
	reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Forced reconnects after the attempt cap.",
		},
	)
	payloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "session",
			Name:      "payload_bytes_total",
			Help:      "Uncompressed payload bytes by direction.",
		},
		[]string{"direction"},
	)
	pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "pipeline",
			Name:      "pushes_total",
			Help:      "Prepared pushes by mode.",
		},
		[]string{"mode"},
	)
	recordsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenebridge",
			Subsystem: "pipeline",
			Name:      "records_built_total",
			Help:      "Records serialized for sending.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			roundTrips, roundTripDuration, replyTimeouts, reconnects, payloadBytes,
			pushes, recordsBuilt,
		)
	})
}

func RecordHTTPRequest(server, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, route, statusLabel).Observe(duration.Seconds())
}

// RecordRoundTrip counts one answered request.
func RecordRoundTrip(sent, received string, duration time.Duration) {
	RegisterMetrics()
	roundTrips.WithLabelValues(sent, received).Inc()
	roundTripDuration.WithLabelValues(sent).Observe(duration.Seconds())
}

func RecordReplyTimeout() {
	RegisterMetrics()
	replyTimeouts.Inc()
}

func RecordReconnect() {
	RegisterMetrics()
	reconnects.Inc()
}

// RecordPayload adds n bytes for direction "sent" or "received".
func RecordPayload(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	payloadBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordPush(selected bool, meshes, nodes int) {
	RegisterMetrics()
	mode := "all"
	if selected {
		mode = "selected"
	}
	pushes.WithLabelValues(mode).Inc()
	recordsBuilt.WithLabelValues("mesh").Add(float64(meshes))
	recordsBuilt.WithLabelValues("node").Add(float64(nodes))
}
