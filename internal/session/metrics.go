// ABOUTME: Prometheus instrumentation for session lifecycle events.
// ABOUTME: Live-session gauge plus created/removed/reaped counters.

package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the registry's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	live    prometheus.Gauge
	created prometheus.Counter
	removed prometheus.Counter
	reaped  prometheus.Counter
}

// NewMetrics creates and registers the session collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_gateway_sessions_live",
			Help: "Number of live MCP sessions.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_gateway_sessions_created_total",
			Help: "Total MCP sessions created.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_gateway_sessions_removed_total",
			Help: "Total MCP sessions removed, for any reason.",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_gateway_sessions_reaped_total",
			Help: "Total MCP sessions removed by the idle reaper.",
		}),
	}
	reg.MustRegister(m.live, m.created, m.removed, m.reaped)
	return m
}

func (m *Metrics) sessionCreated(live int) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.live.Set(float64(live))
}

func (m *Metrics) sessionRemoved(live int) {
	if m == nil {
		return
	}
	m.removed.Inc()
	m.live.Set(float64(live))
}

func (m *Metrics) sessionReaped(live int) {
	if m == nil {
		return
	}
	m.removed.Inc()
	m.reaped.Inc()
	m.live.Set(float64(live))
}

func (m *Metrics) setLive(live int) {
	if m == nil {
		return
	}
	m.live.Set(float64(live))
}
