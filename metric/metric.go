// Package metric exports dispatch events as Prometheus metrics.
//
// Metrics implements msgdispatch.Observer. Pass it to the publisher, the
// listeners and the outbox worker, then expose Registry.Handler:
//
//	reg := metric.NewRegistry()
//	pub, _ := msgdispatch.NewPublisher(
//	    msgdispatch.WithPublisherBroker(broker),
//	    msgdispatch.WithPublisherObserver(reg.Metrics),
//	)
//	http.Handle("/metrics", reg.Handler())
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "msgdispatch"

// unknownLabel replaces the empty UNKNOWN tag in label values.
const unknownLabel = "unknown"

// Metrics contains the dispatch metrics.
type Metrics struct {
	MessagesPublished  *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	MessagesDispatched *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	ConsumeFailures    *prometheus.CounterVec
	MessagesIgnored    *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
}

// NewMetrics creates unregistered dispatch metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publisher",
				Name:      "published_total",
				Help:      "Total number of messages accepted by the broker",
			},
			[]string{"destination", "type"},
		),

		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publisher",
				Name:      "failures_total",
				Help:      "Total number of failed publish calls by error code",
			},
			[]string{"destination", "reason"},
		),

		MessagesDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "dispatched_total",
				Help:      "Total number of messages handled by a consumer",
			},
			[]string{"listener", "type"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "dispatch_duration_seconds",
				Help:      "Consumer invocation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"listener"},
		),

		ConsumeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "failures_total",
				Help:      "Total number of messages that failed decoding, validation or consumption",
			},
			[]string{"listener", "type", "stage"},
		),

		MessagesIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "listener",
				Name:      "ignored_total",
				Help:      "Total number of messages without a bound consumer",
			},
			[]string{"listener"},
		),

		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "deliveries_total",
				Help:      "Total number of outbox delivery attempts by outcome",
			},
			[]string{"listener", "outcome"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesPublished,
		m.PublishFailures,
		m.MessagesDispatched,
		m.DispatchDuration,
		m.ConsumeFailures,
		m.MessagesIgnored,
		m.Deliveries,
	}
}

// MessagePublished implements msgdispatch.Observer.
func (m *Metrics) MessagePublished(destination, messageType string) {
	m.MessagesPublished.WithLabelValues(destination, typeLabel(messageType)).Inc()
}

// PublishFailed implements msgdispatch.Observer.
func (m *Metrics) PublishFailed(destination, reason string) {
	m.PublishFailures.WithLabelValues(destination, reason).Inc()
}

// MessageDispatched implements msgdispatch.Observer.
func (m *Metrics) MessageDispatched(listenerID, messageType string, elapsed time.Duration) {
	m.MessagesDispatched.WithLabelValues(listenerID, typeLabel(messageType)).Inc()
	m.DispatchDuration.WithLabelValues(listenerID).Observe(elapsed.Seconds())
}

// ConsumeFailed implements msgdispatch.Observer.
func (m *Metrics) ConsumeFailed(listenerID, messageType, reason string) {
	m.ConsumeFailures.WithLabelValues(listenerID, typeLabel(messageType), reason).Inc()
}

// MessageIgnored implements msgdispatch.Observer.
func (m *Metrics) MessageIgnored(listenerID string) {
	m.MessagesIgnored.WithLabelValues(listenerID).Inc()
}

// DeliveryCompleted implements msgdispatch.Observer.
func (m *Metrics) DeliveryCompleted(listenerID, outcome string) {
	m.Deliveries.WithLabelValues(listenerID, outcome).Inc()
}

func typeLabel(messageType string) string {
	if messageType == "" {
		return unknownLabel
	}
	return messageType
}

// Registry owns a Prometheus registry holding the dispatch metrics and the
// Go runtime and process collectors.
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates a registry with all dispatch metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		Metrics:  NewMetrics(),
	}

	r.registry.MustRegister(r.Metrics.collectors()...)
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
