package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

const namespace = "boringmetrics"

// DeliveryMetrics holds the Prometheus metrics for the delivery engine and
// implements telemetry.Observer.
type DeliveryMetrics struct {
	EnqueuedTotal    *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
	ItemsTotal       *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	DiagnosticsTotal *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
}

// NewDeliveryMetrics registers the metrics with reg. A nil reg uses the
// default registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &DeliveryMetrics{
		EnqueuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "enqueued_total",
			Help:      "Total number of items accepted into a queue, by stream.",
		}, []string{"stream"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "deliveries_total",
			Help:      "Total number of transport deliveries by stream and status.",
		}, []string{"stream", "status"}), // status: success, failure
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "delivered_items_total",
			Help:      "Total number of items delivered successfully, by stream.",
		}, []string{"stream"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Total number of retried transport calls, by stream.",
		}, []string{"stream"}),
		DiagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "diagnostics_total",
			Help:      "Total number of delivery diagnostics by stream and kind.",
		}, []string{"stream", "kind"}), // kind: abandoned, dropped, recovered
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "delivery_duration_seconds",
			Help:      "Time from first attempt to final outcome, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"stream"}),
	}
}

func (m *DeliveryMetrics) ObserveEnqueued(stream telemetry.Stream) {
	m.EnqueuedTotal.WithLabelValues(string(stream)).Inc()
}

func (m *DeliveryMetrics) ObserveDelivery(stream telemetry.Stream, items, attempts int, elapsed time.Duration, err error) {
	s := string(stream)
	if attempts > 1 {
		m.RetriesTotal.WithLabelValues(s).Add(float64(attempts - 1))
	}
	m.DeliveryDuration.WithLabelValues(s).Observe(elapsed.Seconds())

	if err != nil {
		m.DeliveriesTotal.WithLabelValues(s, "failure").Inc()
		return
	}
	m.DeliveriesTotal.WithLabelValues(s, "success").Inc()
	m.ItemsTotal.WithLabelValues(s).Add(float64(items))
}

func (m *DeliveryMetrics) ObserveDiagnostic(d telemetry.Diagnostic) {
	m.DiagnosticsTotal.WithLabelValues(string(d.Stream), string(d.Kind)).Inc()
}
