package telemetry

import (
	"context"
	"time"
)

// LogType is the discriminator the collection API expects on every log.
const LogType = "log"

type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

func (l Level) Valid() bool {
	switch l {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

type Operation string

const (
	OperationSet       Operation = "set"
	OperationIncrement Operation = "increment"
)

func (o Operation) Valid() bool {
	return o == OperationSet || o == OperationIncrement
}

type LogEvent struct {
	Type        string         `json:"type"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	SentAt      time.Time      `json:"sentAt"`
}

type LiveUpdate struct {
	LiveID    string    `json:"liveId"`
	Value     float64   `json:"value"`
	Operation Operation `json:"operation"`
	SentAt    time.Time `json:"sentAt"`
}

// UserIdentity declares who is behind subsequent events. A nil UserID
// is sent as null and marks an anonymous visitor.
type UserIdentity struct {
	UserID      *string        `json:"userId"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	SentAt      time.Time      `json:"sentAt"`
}

// Transport performs the network calls. A returned error fails the whole
// call; there is no partial success.
type Transport interface {
	SendLogs(ctx context.Context, logs []LogEvent, token string) error
	UpdateLive(ctx context.Context, update LiveUpdate, token string) error
	IdentifyUser(ctx context.Context, user UserIdentity, token string) error
}

// Observer receives delivery events, typically to export metrics.
type Observer interface {
	ObserveEnqueued(stream Stream)
	ObserveDelivery(stream Stream, items, attempts int, elapsed time.Duration, err error)
	ObserveDiagnostic(d Diagnostic)
}
