package boringmetrics

import (
	"errors"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

var (
	// ErrNotInitialized is returned by the package-level API before Init.
	ErrNotInitialized = errors.New("boringmetrics: not initialized, call Init first")

	ErrClosed           = telemetry.ErrClosed
	ErrInvalidConfig    = telemetry.ErrInvalidConfig
	ErrInvalidLevel     = telemetry.ErrInvalidLevel
	ErrInvalidOperation = telemetry.ErrInvalidOperation
	ErrEmptyLiveID      = telemetry.ErrEmptyLiveID
)
