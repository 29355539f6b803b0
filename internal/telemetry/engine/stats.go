package engine

import (
	"sync"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

// Stats counts what the engine did since it was created.
type Stats struct {
	LogsEnqueued     int
	LivesEnqueued    int
	LogBatchesSent   int
	LivesSent        int
	UsersIdentified  int
	Retries          int
	ItemsAbandoned   int
	BatchesDropped   int
	DeliveriesFailed int
}

type statsCounter struct {
	mu    sync.RWMutex
	stats Stats
}

func (s *statsCounter) incEnqueued(stream telemetry.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch stream {
	case telemetry.StreamLogs:
		s.stats.LogsEnqueued++
	case telemetry.StreamLives:
		s.stats.LivesEnqueued++
	}
}

func (s *statsCounter) recordDelivery(stream telemetry.Stream, attempts int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempts > 1 {
		s.stats.Retries += attempts - 1
	}
	if err != nil {
		s.stats.DeliveriesFailed++
		return
	}
	switch stream {
	case telemetry.StreamLogs:
		s.stats.LogBatchesSent++
	case telemetry.StreamLives:
		s.stats.LivesSent++
	case telemetry.StreamUsers:
		s.stats.UsersIdentified++
	}
}

func (s *statsCounter) recordDiagnostic(d telemetry.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch d.Kind {
	case telemetry.DiagnosticAbandoned:
		s.stats.ItemsAbandoned += d.Items
	case telemetry.DiagnosticDropped:
		s.stats.BatchesDropped++
		s.stats.ItemsAbandoned += d.Items
	}
}

func (s *statsCounter) GetStatsStamp() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
