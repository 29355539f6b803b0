package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

func TestDeliveryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)

	m.ObserveEnqueued(telemetry.StreamLogs)
	m.ObserveEnqueued(telemetry.StreamLogs)
	m.ObserveEnqueued(telemetry.StreamLives)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnqueuedTotal.WithLabelValues("logs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnqueuedTotal.WithLabelValues("lives")))

	m.ObserveDelivery(telemetry.StreamLogs, 10, 3, 3*time.Second, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("logs", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("logs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("logs")))

	m.ObserveDelivery(telemetry.StreamUsers, 1, 1, time.Millisecond, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("users", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("users")))

	m.ObserveDiagnostic(telemetry.Diagnostic{Kind: telemetry.DiagnosticAbandoned, Stream: telemetry.StreamLives})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiagnosticsTotal.WithLabelValues("lives", "abandoned")))

	assert.Equal(t, 2, testutil.CollectAndCount(m.DeliveryDuration))
}

func TestDeliveryMetrics_ImplementsObserver(t *testing.T) {
	var _ telemetry.Observer = NewDeliveryMetrics(prometheus.NewRegistry())
}
