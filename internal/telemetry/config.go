package telemetry

import (
	"fmt"
	"time"
)

const (
	DefaultMaxRetryAttempts  = 5
	DefaultLogsMaxBatchSize  = 100
	DefaultLogsSendInterval  = 5 * time.Second
	DefaultLivesMaxBatchSize = 20
	DefaultLivesDebounceTime = 1 * time.Second
	DefaultRetryBaseDelay    = 1 * time.Second
	DefaultPendingBatches    = 100
)

// LiveFailurePolicy decides what happens to the rest of a live batch once
// one update has exhausted its retries.
type LiveFailurePolicy int

const (
	// AbortOnError abandons the failed update and every update after it.
	AbortOnError LiveFailurePolicy = iota
	// ContinueOnError abandons only the failed update.
	ContinueOnError
)

func (p LiveFailurePolicy) String() string {
	switch p {
	case AbortOnError:
		return "abort"
	case ContinueOnError:
		return "continue"
	}
	return fmt.Sprintf("LiveFailurePolicy(%d)", int(p))
}

// ParseLiveFailurePolicy accepts "abort" or "continue".
func ParseLiveFailurePolicy(s string) (LiveFailurePolicy, error) {
	switch s {
	case "", "abort":
		return AbortOnError, nil
	case "continue":
		return ContinueOnError, nil
	}
	return 0, fmt.Errorf("%w: unknown live failure policy %q", ErrInvalidConfig, s)
}

type Config struct {
	Token             string
	MaxRetryAttempts  int
	LogsMaxBatchSize  int
	LogsSendInterval  time.Duration
	LivesMaxBatchSize int
	LivesDebounceTime time.Duration

	LiveFailurePolicy LiveFailurePolicy
	// RetryBaseDelay is the wait before the first retry; it doubles on
	// every further attempt.
	RetryBaseDelay time.Duration
	// PendingBatches bounds how many flushed batches per stream may wait
	// for the delivery worker. The worker sends one batch at a time, so
	// these wait behind any retry backoff in progress.
	PendingBatches int
	// Retryable classifies failures. Nil retries every failure.
	Retryable func(error) bool
}

func DefaultConfig(token string) Config {
	return Config{
		Token:             token,
		MaxRetryAttempts:  DefaultMaxRetryAttempts,
		LogsMaxBatchSize:  DefaultLogsMaxBatchSize,
		LogsSendInterval:  DefaultLogsSendInterval,
		LivesMaxBatchSize: DefaultLivesMaxBatchSize,
		LivesDebounceTime: DefaultLivesDebounceTime,
		LiveFailurePolicy: AbortOnError,
		RetryBaseDelay:    DefaultRetryBaseDelay,
		PendingBatches:    DefaultPendingBatches,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Token == "":
		return fmt.Errorf("%w: token is required", ErrInvalidConfig)
	case c.MaxRetryAttempts < 0:
		return fmt.Errorf("%w: max retry attempts must be >= 0, got %d", ErrInvalidConfig, c.MaxRetryAttempts)
	case c.LogsMaxBatchSize <= 0:
		return fmt.Errorf("%w: logs max batch size must be > 0, got %d", ErrInvalidConfig, c.LogsMaxBatchSize)
	case c.LogsSendInterval <= 0:
		return fmt.Errorf("%w: logs send interval must be > 0, got %s", ErrInvalidConfig, c.LogsSendInterval)
	case c.LivesMaxBatchSize <= 0:
		return fmt.Errorf("%w: lives max batch size must be > 0, got %d", ErrInvalidConfig, c.LivesMaxBatchSize)
	case c.LivesDebounceTime <= 0:
		return fmt.Errorf("%w: lives debounce time must be > 0, got %s", ErrInvalidConfig, c.LivesDebounceTime)
	case c.RetryBaseDelay <= 0:
		return fmt.Errorf("%w: retry base delay must be > 0, got %s", ErrInvalidConfig, c.RetryBaseDelay)
	case c.PendingBatches <= 0:
		return fmt.Errorf("%w: pending batches must be > 0, got %d", ErrInvalidConfig, c.PendingBatches)
	}
	return nil
}
