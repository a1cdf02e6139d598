// Package metrics exports clock and relay counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hlcrelay/internal/clock"
)

// Collector holds the counters for every node of one process. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	advances    *prometheus.CounterVec
	merges      *prometheus.CounterVec
	regressions *prometheus.CounterVec
	sent        *prometheus.CounterVec
	received    *prometheus.CounterVec
	physical    *prometheus.GaugeVec
	logical     *prometheus.GaugeVec
}

// New creates a collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlc_advance_total",
			Help: "Local clock advances.",
		}, []string{"node"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlc_merge_total",
			Help: "Remote timestamps merged into the local clock.",
		}, []string{"node"}),
		regressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hlc_regression_total",
			Help: "Time source readings behind the clock's physical time.",
		}, []string{"node"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sent_total",
			Help: "Messages handed to the transport.",
		}, []string{"node"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_received_total",
			Help: "Messages received and merged.",
		}, []string{"node"}),
		physical: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlc_physical_millis",
			Help: "Physical component of the latest timestamp.",
		}, []string{"node"}),
		logical: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hlc_logical_counter",
			Help: "Logical component of the latest timestamp.",
		}, []string{"node"}),
	}

	c.registry.MustRegister(c.advances, c.merges, c.regressions, c.sent, c.received, c.physical, c.logical)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Sent records a clock advance for an outgoing message.
func (c *Collector) Sent(node string, ts clock.Timestamp) {
	if c == nil {
		return
	}
	c.advances.WithLabelValues(node).Inc()
	c.sent.WithLabelValues(node).Inc()
	c.observe(node, ts)
}

// Received records a merge for an incoming message.
func (c *Collector) Received(node string, ts clock.Timestamp) {
	if c == nil {
		return
	}
	c.merges.WithLabelValues(node).Inc()
	c.received.WithLabelValues(node).Inc()
	c.observe(node, ts)
}

// Regression records a time source reading behind the held physical time.
func (c *Collector) Regression(node string) {
	if c == nil {
		return
	}
	c.regressions.WithLabelValues(node).Inc()
}

func (c *Collector) observe(node string, ts clock.Timestamp) {
	c.physical.WithLabelValues(node).Set(float64(ts.Physical))
	c.logical.WithLabelValues(node).Set(float64(ts.Logical))
}
