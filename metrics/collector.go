package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/lexauth"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type droppedSource interface {
	AuditDropped() uint64
}

// Collector counts audit events. It is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	reasons  *prometheus.CounterVec
	byEvent  map[string][]counterDef
}

type counterDef struct {
	counter  prometheus.Counter
	failures bool
}

// NewCollector creates a collector on its own registry. Go runtime and
// process collectors are registered as well.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexauth_auth_events_total",
			Help: "Audit events by type and outcome.",
		}, []string{"event", "outcome"}),
		reasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexauth_auth_failures_total",
			Help: "Failed audit events by reason code.",
		}, []string{"reason"}),
		byEvent: make(map[string][]counterDef, len(Defs)),
	}

	c.registry.MustRegister(
		c.events,
		c.reasons,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, def := range Defs {
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: def.Name, Help: def.Help})
		c.registry.MustRegister(counter)
		c.byEvent[def.Event] = append(c.byEvent[def.Event], counterDef{counter: counter, failures: def.Failures})
	}
	return c
}

// Emit implements lexauth.AuditSink.
func (c *Collector) Emit(_ context.Context, event lexauth.AuditEvent) {
	if c == nil {
		return
	}
	outcome := outcomeSuccess
	if !event.Success {
		outcome = outcomeFailure
		if event.Reason != "" {
			c.reasons.WithLabelValues(event.Reason).Inc()
		}
	}
	c.events.WithLabelValues(event.Type, outcome).Inc()

	for _, def := range c.byEvent[event.Type] {
		if def.failures != event.Success {
			def.counter.Inc()
		}
	}
}

// WatchDropped exports the engine's dropped audit event count.
func (c *Collector) WatchDropped(source droppedSource) {
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "lexauth_audit_dropped_total",
		Help: "Dropped audit events due to dispatcher backpressure.",
	}, func() float64 {
		return float64(source.AuditDropped())
	}))
}

// Registry returns the collector's registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ lexauth.AuditSink = (*Collector)(nil)
