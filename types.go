package boringmetrics

import (
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/engine"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/httptransport"
)

type (
	LogEvent     = telemetry.LogEvent
	LiveUpdate   = telemetry.LiveUpdate
	UserIdentity = telemetry.UserIdentity
	Level        = telemetry.Level
	Operation    = telemetry.Operation

	// Transport performs the network calls. Implement it to deliver
	// somewhere other than the BoringMetrics API.
	Transport = telemetry.Transport

	Diagnostic        = telemetry.Diagnostic
	DiagnosticKind    = telemetry.DiagnosticKind
	DiagnosticHandler = telemetry.DiagnosticHandler
	Stream            = telemetry.Stream
	LiveFailurePolicy = telemetry.LiveFailurePolicy

	// Stats counts what a client did since it was created.
	Stats = engine.Stats

	// StatusError is returned by the HTTP transport for non-2xx responses.
	StatusError = httptransport.StatusError
)

const (
	LevelTrace = telemetry.LevelTrace
	LevelDebug = telemetry.LevelDebug
	LevelInfo  = telemetry.LevelInfo
	LevelWarn  = telemetry.LevelWarn
	LevelError = telemetry.LevelError
	LevelFatal = telemetry.LevelFatal
)

const (
	OperationSet       = telemetry.OperationSet
	OperationIncrement = telemetry.OperationIncrement
)

const (
	DiagnosticAbandoned = telemetry.DiagnosticAbandoned
	DiagnosticDropped   = telemetry.DiagnosticDropped
	DiagnosticRecovered = telemetry.DiagnosticRecovered
)

const (
	StreamLogs  = telemetry.StreamLogs
	StreamLives = telemetry.StreamLives
	StreamUsers = telemetry.StreamUsers
)

const (
	AbortOnError    = telemetry.AbortOnError
	ContinueOnError = telemetry.ContinueOnError
)

// RetryableStatus retries network failures and HTTP 408, 429 and 5xx
// responses only. Pass it to WithRetryable.
func RetryableStatus(err error) bool {
	return httptransport.RetryableStatus(err)
}
