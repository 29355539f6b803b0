package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/batch"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/retry"
)

// Engine buffers logs and live updates, delivers them in the background
// and sends user identities straight through. Each stream has its own
// delivery goroutine so batches of one stream go out in flush order.
type Engine struct {
	config       telemetry.Config
	transport    telemetry.Transport
	clock        clock.Clock
	logger       *slog.Logger
	observer     telemetry.Observer
	onDiagnostic telemetry.DiagnosticHandler
	retry        *retry.Executor
	stats        *statsCounter

	logs        *batch.Queue[telemetry.LogEvent]
	lives       *batch.Queue[telemetry.LiveUpdate]
	logBatches  chan []telemetry.LogEvent
	liveBatches chan []telemetry.LiveUpdate

	// ctx bounds background deliveries. Close cancels it once the
	// workers are done or its deadline passes.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver attaches a metrics observer.
func WithObserver(o telemetry.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithDiagnosticHandler replaces the default handler, which logs. The
// handler may run while a queue lock is held and must not call back into
// the engine.
func WithDiagnosticHandler(h telemetry.DiagnosticHandler) Option {
	return func(e *Engine) { e.onDiagnostic = h }
}

// New validates config and starts the delivery goroutines.
func New(config telemetry.Config, transport telemetry.Transport, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", telemetry.ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		config:      config,
		transport:   transport,
		clock:       clock.Real(),
		logger:      slog.Default(),
		stats:       &statsCounter{},
		logBatches:  make(chan []telemetry.LogEvent, config.PendingBatches),
		liveBatches: make(chan []telemetry.LiveUpdate, config.PendingBatches),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "delivery_engine")
	if e.onDiagnostic == nil {
		e.onDiagnostic = e.logDiagnostic
	}

	e.retry = retry.NewExecutor(e.clock, config.RetryBaseDelay, config.Retryable)
	e.logs = batch.NewQueue(batch.Config{
		MaxBatchSize: config.LogsMaxBatchSize,
		Interval:     config.LogsSendInterval,
		Mode:         batch.ModeInterval,
	}, e.clock, e.handOffLogs)
	e.lives = batch.NewQueue(batch.Config{
		MaxBatchSize: config.LivesMaxBatchSize,
		Interval:     config.LivesDebounceTime,
		Mode:         batch.ModeDebounce,
	}, e.clock, e.handOffLives)

	e.wg.Add(2)
	go e.processLogBatches()
	go e.processLiveBatches()

	return e, nil
}

func (e *Engine) Config() telemetry.Config { return e.config }

func (e *Engine) Stats() Stats { return e.stats.GetStatsStamp() }

// AddLog stamps SentAt when missing and queues the log. Errors are only
// returned for invalid input or a closed engine, never for delivery.
// The Data map is copied, so later writes to it do not reach the queued
// log. Values nested inside Data stay shared with the caller and must not
// be modified after the call.
func (e *Engine) AddLog(log telemetry.LogEvent) error {
	if !log.Level.Valid() {
		return fmt.Errorf("%w: %q", telemetry.ErrInvalidLevel, log.Level)
	}
	log.Type = telemetry.LogType
	log.Data = maps.Clone(log.Data)
	if log.SentAt.IsZero() {
		log.SentAt = e.clock.Now().UTC()
	}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return telemetry.ErrClosed
	}

	e.logs.Enqueue(log)
	e.enqueued(telemetry.StreamLogs)
	return nil
}

// UpdateLive stamps SentAt when missing and queues the update.
func (e *Engine) UpdateLive(update telemetry.LiveUpdate) error {
	if update.LiveID == "" {
		return telemetry.ErrEmptyLiveID
	}
	if !update.Operation.Valid() {
		return fmt.Errorf("%w: %q", telemetry.ErrInvalidOperation, update.Operation)
	}
	if update.SentAt.IsZero() {
		update.SentAt = e.clock.Now().UTC()
	}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return telemetry.ErrClosed
	}

	e.lives.Enqueue(update)
	e.enqueued(telemetry.StreamLives)
	return nil
}

// IdentifyUser delivers the identity immediately, retrying like batches
// do, and returns the final failure to the caller.
func (e *Engine) IdentifyUser(ctx context.Context, user telemetry.UserIdentity) error {
	e.closeMu.RLock()
	closed := e.closed
	e.closeMu.RUnlock()
	if closed {
		return telemetry.ErrClosed
	}

	if user.SentAt.IsZero() {
		user.SentAt = e.clock.Now().UTC()
	}

	start := e.clock.Now()
	attempts, err := e.retry.Run(ctx, e.config.MaxRetryAttempts, func(ctx context.Context) error {
		return e.transport.IdentifyUser(ctx, user, e.config.Token)
	})
	e.delivered(telemetry.StreamUsers, 1, attempts, start, err)
	if err != nil {
		return fmt.Errorf("identify user: %w", err)
	}
	return nil
}

// Flush pushes whatever both queues hold to their delivery goroutines.
func (e *Engine) Flush() {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return
	}
	e.logs.Flush()
	e.lives.Flush()
}

// Close flushes both queues, refuses further events and waits for
// queued deliveries. If ctx ends first, outstanding retries are
// abandoned and ctx.Err() is returned.
func (e *Engine) Close(ctx context.Context) error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	e.logs.Flush()
	e.lives.Flush()
	e.logs.Stop()
	e.lives.Stop()
	close(e.logBatches)
	close(e.liveBatches)
	e.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline reached, abandoning pending deliveries")
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) handOffLogs(logs []telemetry.LogEvent) {
	select {
	case e.logBatches <- logs:
	default:
		e.record(telemetry.Diagnostic{
			Kind:   telemetry.DiagnosticDropped,
			Stream: telemetry.StreamLogs,
			Items:  len(logs),
			Err:    fmt.Errorf("%d log batches already pending", cap(e.logBatches)),
		})
	}
}

func (e *Engine) handOffLives(lives []telemetry.LiveUpdate) {
	select {
	case e.liveBatches <- lives:
	default:
		e.record(telemetry.Diagnostic{
			Kind:   telemetry.DiagnosticDropped,
			Stream: telemetry.StreamLives,
			Items:  len(lives),
			Err:    fmt.Errorf("%d live batches already pending", cap(e.liveBatches)),
		})
	}
}

func (e *Engine) processLogBatches() {
	defer e.wg.Done()
	for logs := range e.logBatches {
		e.sendLogs(logs)
	}
}

func (e *Engine) processLiveBatches() {
	defer e.wg.Done()
	for lives := range e.liveBatches {
		e.sendLives(lives)
	}
}

func (e *Engine) sendLogs(logs []telemetry.LogEvent) {
	start := e.clock.Now()
	attempts, err := e.retry.Run(e.ctx, e.config.MaxRetryAttempts, func(ctx context.Context) error {
		return e.transport.SendLogs(ctx, logs, e.config.Token)
	})
	e.delivered(telemetry.StreamLogs, len(logs), attempts, start, err)
	if err != nil {
		e.record(telemetry.Diagnostic{
			Kind:     telemetry.DiagnosticAbandoned,
			Stream:   telemetry.StreamLogs,
			Items:    len(logs),
			Attempts: attempts,
			Err:      err,
		})
	}
}

// sendLives sends updates one at a time. After an update exhausts its
// retries the configured policy decides whether the rest still go out.
func (e *Engine) sendLives(lives []telemetry.LiveUpdate) {
	for i, live := range lives {
		start := e.clock.Now()
		attempts, err := e.retry.Run(e.ctx, e.config.MaxRetryAttempts, func(ctx context.Context) error {
			return e.transport.UpdateLive(ctx, live, e.config.Token)
		})
		e.delivered(telemetry.StreamLives, 1, attempts, start, err)
		if err == nil {
			continue
		}

		if e.config.LiveFailurePolicy == telemetry.AbortOnError {
			e.record(telemetry.Diagnostic{
				Kind:     telemetry.DiagnosticAbandoned,
				Stream:   telemetry.StreamLives,
				Items:    len(lives) - i,
				Attempts: attempts,
				Err:      err,
			})
			return
		}
		e.record(telemetry.Diagnostic{
			Kind:     telemetry.DiagnosticAbandoned,
			Stream:   telemetry.StreamLives,
			Items:    1,
			Attempts: attempts,
			Err:      err,
		})
	}
}

func (e *Engine) enqueued(stream telemetry.Stream) {
	e.stats.incEnqueued(stream)
	if e.observer != nil {
		e.observer.ObserveEnqueued(stream)
	}
}

func (e *Engine) delivered(stream telemetry.Stream, items, attempts int, start time.Time, err error) {
	e.stats.recordDelivery(stream, attempts, err)
	if e.observer != nil {
		e.observer.ObserveDelivery(stream, items, attempts, e.clock.Now().Sub(start), err)
	}
	if err == nil && attempts > 1 {
		e.record(telemetry.Diagnostic{
			Kind:     telemetry.DiagnosticRecovered,
			Stream:   stream,
			Items:    items,
			Attempts: attempts,
		})
	}
}

func (e *Engine) record(d telemetry.Diagnostic) {
	if d.At.IsZero() {
		d.At = e.clock.Now().UTC()
	}
	e.stats.recordDiagnostic(d)
	if e.observer != nil {
		e.observer.ObserveDiagnostic(d)
	}
	e.onDiagnostic(d)
}

func (e *Engine) logDiagnostic(d telemetry.Diagnostic) {
	switch d.Kind {
	case telemetry.DiagnosticRecovered:
		e.logger.Info("delivery succeeded after retries",
			"stream", d.Stream, "items", d.Items, "attempts", d.Attempts)
	default:
		e.logger.Error("delivery abandoned",
			"kind", d.Kind, "stream", d.Stream, "items", d.Items,
			"attempts", d.Attempts, "error", d.Err)
	}
}
