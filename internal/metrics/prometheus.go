package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus. Metrics are
// registered on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	publishes        *prometheus.CounterVec
	matchLatency     prometheus.Histogram
	matchedHistogram prometheus.Histogram
	delivered        prometheus.Counter
	deliveryFailures prometheus.Counter
	dropped          prometheus.Counter
	activeMailboxes  prometheus.Gauge
	subscriptions    prometheus.Gauge
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed collector.
//
// Parameters:
//   - reg: registerer to use (prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace ("topichub" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "topichub"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "publishes_total",
			Help:      "Total publish attempts by result (accepted, rejected).",
		}, []string{"result"})

		p.matchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "match_duration_seconds",
			Help:      "Time spent resolving a published topic to subscribers.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs .. ~0.26s
		})

		p.matchedHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "matched_subscribers",
			Help:      "Number of subscribers matched per publish.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
		})

		p.delivered = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "delivered_total",
			Help:      "Total messages handed to a sink without error.",
		})

		p.deliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "delivery_failures_total",
			Help:      "Total sink errors. Failed deliveries are not retried.",
		})

		p.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Total messages dropped because a subscriber mailbox was full.",
		})

		p.activeMailboxes = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "active_mailboxes",
			Help:      "Current number of subscriber mailboxes with a running pump.",
		})

		p.subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "subscriptions",
			Help:      "Current number of (pattern, subscriber) registrations.",
		})

		p.reg.MustRegister(p.publishes)
		p.reg.MustRegister(p.matchLatency)
		p.reg.MustRegister(p.matchedHistogram)
		p.reg.MustRegister(p.delivered)
		p.reg.MustRegister(p.deliveryFailures)
		p.reg.MustRegister(p.dropped)
		p.reg.MustRegister(p.activeMailboxes)
		p.reg.MustRegister(p.subscriptions)
	})
}

// RecordPublish increments the publish counter for result.
func (p *PrometheusCollector) RecordPublish(result string) {
	p.ensureRegistered()
	p.publishes.WithLabelValues(result).Inc()
}

// ObserveMatch records match latency and fan-out.
func (p *PrometheusCollector) ObserveMatch(seconds float64, subscribers int) {
	p.ensureRegistered()
	p.matchLatency.Observe(seconds)
	p.matchedHistogram.Observe(float64(subscribers))
}

// IncrementDelivered increments the delivered counter.
func (p *PrometheusCollector) IncrementDelivered() {
	p.ensureRegistered()
	p.delivered.Inc()
}

// IncrementDeliveryFailure increments the delivery failure counter.
func (p *PrometheusCollector) IncrementDeliveryFailure() {
	p.ensureRegistered()
	p.deliveryFailures.Inc()
}

// IncrementDropped increments the dropped counter.
func (p *PrometheusCollector) IncrementDropped() {
	p.ensureRegistered()
	p.dropped.Inc()
}

// AddActiveMailboxes adjusts the active mailbox gauge.
func (p *PrometheusCollector) AddActiveMailboxes(delta int) {
	p.ensureRegistered()
	p.activeMailboxes.Add(float64(delta))
}

// SetSubscriptions sets the subscription gauge.
func (p *PrometheusCollector) SetSubscriptions(count int) {
	p.ensureRegistered()
	p.subscriptions.Set(float64(count))
}
