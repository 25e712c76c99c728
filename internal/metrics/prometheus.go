// Package metrics exposes SNTP client and server counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

var (
	once     sync.Once
	registry *Registry
)

// Exchange results.
const (
	ResultAccepted       = "accepted"
	ResultReplayMismatch = "replay_mismatch"
	ResultNonCompliant   = "non_compliant"
	ResultTransportError = "transport_error"
)

// Server request results.
const (
	RequestServed      = "served"
	RequestRateLimited = "rate_limited"
	RequestMalformed   = "malformed"
	RequestWriteError  = "write_error"
)

// Registry holds all SNTP metrics.
type Registry struct {
	gatherer prometheus.Gatherer

	// Client metrics
	ClientExchanges *prometheus.CounterVec
	ClientOffset    prometheus.Gauge
	ClientDelay     prometheus.Gauge

	// Server metrics
	ServerRequests   *prometheus.CounterVec
	ServerProcessing prometheus.Histogram
	ServerStratum    prometheus.Gauge
	ServerLeap       prometheus.Gauge

	// System metrics
	StartTime    prometheus.Gauge
	ConfigReload *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return registry
}

// New registers a fresh set of metrics with reg. Tests pass a
// prometheus.NewRegistry() for both arguments.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	f := promauto.With(reg)
	r := &Registry{gatherer: gatherer}

	r.ClientExchanges = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sntp_client_exchanges_total",
		Help: "Client exchanges by outcome",
	}, []string{"result"})

	r.ClientOffset = f.NewGauge(prometheus.GaugeOpts{
		Name: "sntp_client_offset_seconds",
		Help: "Clock offset from the last accepted exchange",
	})

	r.ClientDelay = f.NewGauge(prometheus.GaugeOpts{
		Name: "sntp_client_delay_seconds",
		Help: "Round-trip delay of the last accepted exchange",
	})

	r.ServerRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sntp_server_requests_total",
		Help: "Server requests by outcome",
	}, []string{"result"})

	r.ServerProcessing = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "sntp_server_processing_seconds",
		Help:    "Time between receive and transmit timestamps",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	})

	r.ServerStratum = f.NewGauge(prometheus.GaugeOpts{
		Name: "sntp_server_stratum",
		Help: "Stratum advertised by the server",
	})

	r.ServerLeap = f.NewGauge(prometheus.GaugeOpts{
		Name: "sntp_server_leap_indicator",
		Help: "Leap indicator advertised by the server",
	})

	r.StartTime = f.NewGauge(prometheus.GaugeOpts{
		Name: "sntp_start_time_seconds",
		Help: "Unix time the process started",
	})

	r.ConfigReload = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sntp_config_reloads_total",
		Help: "Configuration reloads",
	}, []string{"status"})

	return r
}

// ExchangeResult classifies a client exchange for the result label.
func ExchangeResult(res *sntp.Result, err error) string {
	switch {
	case err != nil:
		return ResultTransportError
	case res.Accepted():
		return ResultAccepted
	case errors.Is(res.Reason, sntp.ErrReplayMismatch):
		return ResultReplayMismatch
	default:
		return ResultNonCompliant
	}
}

// RecordExchange records the outcome of one client exchange.
func (r *Registry) RecordExchange(res *sntp.Result, err error) {
	result := ExchangeResult(res, err)
	r.ClientExchanges.WithLabelValues(result).Inc()
	if result == ResultAccepted {
		r.ClientOffset.Set(res.Offset)
		r.ClientDelay.Set(res.Delay)
	}
}

// RecordRequest records one server request. Processing time is only
// observed for served requests.
func (r *Registry) RecordRequest(result string, processing time.Duration) {
	r.ServerRequests.WithLabelValues(result).Inc()
	if result == RequestServed {
		r.ServerProcessing.Observe(processing.Seconds())
	}
}

// SetServerState publishes the advertised stratum and leap indicator.
func (r *Registry) SetServerState(stratum, leap uint8) {
	r.ServerStratum.Set(float64(stratum))
	r.ServerLeap.Set(float64(leap))
}

// IncrementConfigReload counts a reload attempt.
func (r *Registry) IncrementConfigReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	r.ConfigReload.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
