package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on the packets dropped counter.
const (
	ReasonMalformed    = "malformed"
	ReasonIncompatible = "incompatible"
	ReasonOther        = "other"
)

// Metrics holds Prometheus counters and gauges for the waveform plotter.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	packetsIngestedTotal  prometheus.Counter
	packetsDroppedTotal   *prometheus.CounterVec
	samplesIngestedTotal  prometheus.Counter
	rendersTotal          prometheus.Counter
	renderFailuresTotal   prometheus.Counter
	transportFailureTotal prometheus.Counter
	channels              prometheus.Gauge
	ingestRunning         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the plotter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		packetsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_packets_ingested_total",
			Help: "Total number of waveform packets merged into channel buffers",
		}),
		packetsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waveplot_packets_dropped_total",
			Help: "Total number of waveform packets rejected by the buffer manager",
		}, []string{"reason"}),
		samplesIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_samples_ingested_total",
			Help: "Total number of samples carried by accepted packets",
		}),
		rendersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_renders_total",
			Help: "Total number of successful channel renders",
		}),
		renderFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_render_failures_total",
			Help: "Total number of renders that failed in the rasterizer",
		}),
		transportFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waveplot_transport_failures_total",
			Help: "Total number of ingest sessions ended by a transport failure",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waveplot_channels",
			Help: "Number of channels known to the buffer manager",
		}),
		ingestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waveplot_ingest_running",
			Help: "1 while the ingest loop is running, 0 otherwise",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.packetsIngestedTotal,
		m.packetsDroppedTotal,
		m.samplesIngestedTotal,
		m.rendersTotal,
		m.renderFailuresTotal,
		m.transportFailureTotal,
		m.channels,
		m.ingestRunning,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObservePacket records one accepted packet carrying n samples.
func (m *Metrics) ObservePacket(n int) {
	m.packetsIngestedTotal.Inc()
	m.samplesIngestedTotal.Add(float64(n))
}

// IncPacketsDropped increments the dropped counter for reason.
func (m *Metrics) IncPacketsDropped(reason string) {
	m.packetsDroppedTotal.WithLabelValues(reason).Inc()
}

// IncRenders increments the successful render counter.
func (m *Metrics) IncRenders() {
	m.rendersTotal.Inc()
}

// IncRenderFailures increments the failed render counter.
func (m *Metrics) IncRenderFailures() {
	m.renderFailuresTotal.Inc()
}

// IncTransportFailures increments the transport failure counter.
func (m *Metrics) IncTransportFailures() {
	m.transportFailureTotal.Inc()
}

// SetChannels sets the known channels gauge.
func (m *Metrics) SetChannels(n int) {
	m.channels.Set(float64(n))
}

// SetIngestRunning sets the ingest running gauge.
func (m *Metrics) SetIngestRunning(running bool) {
	if running {
		m.ingestRunning.Set(1)
		return
	}
	m.ingestRunning.Set(0)
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. channel count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
