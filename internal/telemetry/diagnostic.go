package telemetry

import "time"

type Stream string

const (
	StreamLogs  Stream = "logs"
	StreamLives Stream = "lives"
	StreamUsers Stream = "users"
)

type DiagnosticKind string

const (
	// DiagnosticAbandoned: retries were exhausted and the items discarded.
	DiagnosticAbandoned DiagnosticKind = "abandoned"
	// DiagnosticDropped: a flushed batch found no room in the delivery
	// hand-off and was discarded without being attempted.
	DiagnosticDropped DiagnosticKind = "dropped"
	// DiagnosticRecovered: delivery succeeded after at least one retry.
	DiagnosticRecovered DiagnosticKind = "recovered"
)

// Diagnostic reports what happened to background deliveries that no
// caller is waiting on.
type Diagnostic struct {
	Kind     DiagnosticKind
	Stream   Stream
	Items    int
	Attempts int
	Err      error
	At       time.Time
}

type DiagnosticHandler func(Diagnostic)
