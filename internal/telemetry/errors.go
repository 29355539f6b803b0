package telemetry

import "errors"

var (
	ErrClosed           = errors.New("boringmetrics: engine is closed")
	ErrInvalidConfig    = errors.New("boringmetrics: invalid config")
	ErrInvalidLevel     = errors.New("boringmetrics: invalid log level")
	ErrInvalidOperation = errors.New("boringmetrics: invalid live operation")
	ErrEmptyLiveID      = errors.New("boringmetrics: live id is empty")
)
