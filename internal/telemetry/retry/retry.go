package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
)

// MaxDelay is returned once BaseDelay * 2^n no longer fits a
// time.Duration.
const MaxDelay = time.Duration(math.MaxInt64)

// Error is the final failure of an operation and how many times it ran.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs an operation until it succeeds or the attempt bound is
// reached, sleeping BaseDelay * 2^n between attempts (n starting at 0).
type Executor struct {
	clock     clock.Clock
	baseDelay time.Duration
	retryable func(error) bool
}

// NewExecutor returns an Executor. A nil retryable treats every failure
// as transient.
func NewExecutor(c clock.Clock, baseDelay time.Duration, retryable func(error) bool) *Executor {
	return &Executor{
		clock:     c,
		baseDelay: baseDelay,
		retryable: retryable,
	}
}

// Delay returns the wait that follows failed attempt number attempt.
func (e *Executor) Delay(attempt int) time.Duration {
	if e.baseDelay <= 0 {
		return 0
	}
	if attempt >= 63 || e.baseDelay > MaxDelay>>attempt {
		return MaxDelay
	}
	return e.baseDelay << attempt
}

// Run calls op at most maxRetries+1 times. It returns the number of
// calls made and, on failure, an *Error wrapping the last failure. A
// cancelled ctx stops the loop before the next call or during a wait.
func (e *Executor) Run(ctx context.Context, maxRetries int, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, &Error{Attempts: attempts, Err: err}
		}

		err := op(ctx)
		attempts++
		if err == nil {
			return attempts, nil
		}

		retries := attempts - 1
		if retries >= maxRetries || (e.retryable != nil && !e.retryable(err)) {
			return attempts, &Error{Attempts: attempts, Err: err}
		}

		select {
		case <-e.clock.After(e.Delay(retries)):
		case <-ctx.Done():
			return attempts, &Error{Attempts: attempts, Err: errors.Join(ctx.Err(), err)}
		}
	}
}
