// Package metrics holds the Prometheus instrumentation for the bancho
// server: session gauges, login and packet counters, and reaper activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bancho"

// Label names.
const (
	labelResult = "result"
	labelKind   = "kind"
)

// Collector holds all bancho Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// OnlineSessions tracks the number of currently live sessions, set from
	// the session store after every poll and reaper sweep.
	OnlineSessions prometheus.Gauge

	// Logins counts login attempts by outcome ("success", "invalid_credentials",
	// "banned", "refused", "malformed").
	Logins *prometheus.CounterVec

	// Polls counts bancho poll requests by outcome ("ok", "invalid_token").
	Polls *prometheus.CounterVec

	// PacketsDispatched counts inbound packets by kind name and outcome
	// ("ok", "error").
	PacketsDispatched *prometheus.CounterVec

	// ReapedSessions counts sessions logged out by the idle reaper.
	ReapedSessions prometheus.Counter

	// NotifyBusMessages tracks the number of messages currently retained by
	// the server-wide notify bus.
	NotifyBusMessages prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, a fresh private registry is
// created; Handler serves whatever registry the collector was built on.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of currently live sessions.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{labelResult}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Bancho poll requests by outcome.",
		}, []string{labelResult}),
		PacketsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dispatched_total",
			Help:      "Inbound packets processed by kind and outcome.",
		}, []string{labelKind, labelResult}),
		ReapedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_sessions_total",
			Help:      "Sessions logged out by the idle reaper.",
		}),
		NotifyBusMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notify_bus_messages",
			Help:      "Messages currently retained by the notify broadcast bus.",
		}),
	}

	reg.MustRegister(
		c.OnlineSessions,
		c.Logins,
		c.Polls,
		c.PacketsDispatched,
		c.ReapedSessions,
		c.NotifyBusMessages,
	)
	return c
}

// Handler returns the HTTP handler serving the collector's registry in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
