// Package metrics defines the Prometheus metrics the proxy exposes.
// Every observation here is purely additive to the request handler's
// control flow: nothing in this package can affect a response.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// connectionsTotal counts accepted sockets.
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_connections_total",
			Help: "Total TCP connections accepted by the proxy",
		},
	)
	// connectionsActive tracks sockets currently being handled.
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_connections_active",
			Help: "Number of connections currently being handled",
		},
	)
	// cacheResultsTotal counts HTTP requests by cache outcome (hit/miss).
	cacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_cache_results_total",
			Help: "Total HTTP requests by cache outcome",
		},
		[]string{"result"},
	)
	// blockedTotal counts connections refused because of the blacklist, by scheme.
	blockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_blocked_total",
			Help: "Total connections refused by the blacklist, by scheme",
		},
		[]string{"scheme"},
	)
	// upstreamStatusTotal counts upstream responses by status class ("2xx", "4xx", ...).
	upstreamStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_upstream_status_total",
			Help: "Total upstream responses observed, by status class",
		},
		[]string{"class"},
	)
	// upstreamTimeoutsTotal counts upstream connect/read timeouts.
	upstreamTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_upstream_timeouts_total",
			Help: "Total upstream connect or read timeouts",
		},
	)
	// relayBytesTotal counts bytes relayed, split by direction.
	relayBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_relay_bytes_total",
			Help: "Total bytes relayed between client and upstream, by direction",
		},
		[]string{"direction"},
	)
	// relayErrorsTotal counts HTTPS tunnel relay errors.
	relayErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_relay_errors_total",
			Help: "Total HTTPS tunnel relay errors",
		},
	)
	// handlerErrorsTotal counts recovered handler-level errors.
	handlerErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_handler_errors_total",
			Help: "Total unexpected errors recovered inside a connection worker",
		},
	)
	// connDuration measures how long a worker spends handling one connection.
	connDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_connection_duration_seconds",
			Help:    "Time spent handling one accepted connection, by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	// admissionRejectedTotal counts connections refused by the admission limiter.
	admissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_admission_rejected_total",
			Help: "Total connections rejected by the admission limiter",
		},
	)
	// admissionWait measures time spent waiting for an admission slot.
	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxy_admission_wait_seconds",
			Help:    "Time spent waiting for an admission slot before a connection is handled",
			Buckets: prometheus.DefBuckets,
		},
	)
	// admissionInUse tracks how many admission slots are currently held.
	admissionInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_admission_in_use",
			Help: "Number of admission-limiter slots currently in use",
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsActive,
		cacheResultsTotal,
		blockedTotal,
		upstreamStatusTotal,
		upstreamTimeoutsTotal,
		relayBytesTotal,
		relayErrorsTotal,
		handlerErrorsTotal,
		connDuration,
		admissionRejectedTotal,
		admissionWait,
		admissionInUse,
	)
}

// ConnOpened records an accepted connection.
func ConnOpened() {
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

// ConnClosed records a worker finishing, with its mode and duration.
func ConnClosed(mode string, dur time.Duration) {
	connectionsActive.Dec()
	connDuration.WithLabelValues(mode).Observe(dur.Seconds())
}

// CacheHit records an HTTP cache hit.
func CacheHit() { cacheResultsTotal.WithLabelValues("hit").Inc() }

// CacheMiss records an HTTP cache miss.
func CacheMiss() { cacheResultsTotal.WithLabelValues("miss").Inc() }

// Blocked records a connection refused by the blacklist for scheme
// ("http" or "https").
func Blocked(scheme string) { blockedTotal.WithLabelValues(scheme).Inc() }

// UpstreamStatus records an upstream response status class, e.g. "2xx".
func UpstreamStatus(class string) { upstreamStatusTotal.WithLabelValues(class).Inc() }

// UpstreamTimeout records an upstream connect or read timeout.
func UpstreamTimeout() { upstreamTimeoutsTotal.Inc() }

// RelayBytes records n bytes relayed in direction ("client_to_upstream"
// or "upstream_to_client").
func RelayBytes(direction string, n int) {
	relayBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RelayError records an HTTPS tunnel relay error.
func RelayError() { relayErrorsTotal.Inc() }

// HandlerError records a recovered handler-level error.
func HandlerError() { handlerErrorsTotal.Inc() }

// AdmissionRejected records a connection refused by the admission limiter.
func AdmissionRejected() { admissionRejectedTotal.Inc() }

// AdmissionWaitObserve records time spent waiting for an admission slot.
func AdmissionWaitObserve(d time.Duration) { admissionWait.Observe(d.Seconds()) }

// AdmissionInUseSet sets the number of admission slots currently held.
func AdmissionInUseSet(n int) { admissionInUse.Set(float64(n)) }
