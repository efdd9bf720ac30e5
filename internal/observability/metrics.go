package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dermalink", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dermalink", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	RPCCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dermalink", Name: "rpc_calls_total", Help: "RPC calls by method and code."},
		[]string{"method", "code"},
	)
	RPCLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dermalink", Name: "rpc_duration_seconds",
			Help:    "RPC duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dermalink", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dermalink", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dermalink", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dermalink", Name: "bookings_total", Help: "Booking attempts by outcome."},
		[]string{"outcome"}, // outcome: booked|conflict|unavailable|error
	)
	RealtimeClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "dermalink", Name: "realtime_clients", Help: "Open websocket connections."},
	)
)

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, RPCCalls, RPCLatency,
		ExternalRequests, ExternalLatency, CacheEvents, Bookings, RealtimeClients,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveRPC(method, code string, dur time.Duration) {
	RPCCalls.WithLabelValues(method, code).Inc()
	RPCLatency.WithLabelValues(method).Observe(dur.Seconds())
}

// ObserveExternal records an outbound call. status 0 means the request failed
// before a response arrived.
func ObserveExternal(service string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) {
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveBooking(outcome string) {
	Bookings.WithLabelValues(outcome).Inc()
}
