package boringmetrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	engine telemetry.Config

	baseURL    string
	httpClient *http.Client
	gzip       bool
	transport  Transport

	logger       *slog.Logger
	registerer   prometheus.Registerer
	onDiagnostic DiagnosticHandler
	clock        clock.Clock

	sessionID   string
	anonymousID string
}

// Option configures the client.
type Option func(*clientConfig)

// WithMaxRetryAttempts sets how many retries follow a failed delivery.
func WithMaxRetryAttempts(n int) Option {
	return func(c *clientConfig) { c.engine.MaxRetryAttempts = n }
}

func WithLogsMaxBatchSize(n int) Option {
	return func(c *clientConfig) { c.engine.LogsMaxBatchSize = n }
}

// WithLogsSendInterval sets how long a log may wait for its batch to fill.
func WithLogsSendInterval(d time.Duration) Option {
	return func(c *clientConfig) { c.engine.LogsSendInterval = d }
}

func WithLivesMaxBatchSize(n int) Option {
	return func(c *clientConfig) { c.engine.LivesMaxBatchSize = n }
}

// WithLivesDebounceTime sets the quiet period after the last live update
// before the batch is sent.
func WithLivesDebounceTime(d time.Duration) Option {
	return func(c *clientConfig) { c.engine.LivesDebounceTime = d }
}

func WithLiveFailurePolicy(p LiveFailurePolicy) Option {
	return func(c *clientConfig) { c.engine.LiveFailurePolicy = p }
}

func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *clientConfig) { c.engine.RetryBaseDelay = d }
}

// WithPendingBatches bounds how many flushed batches per stream may queue
// behind a slow delivery before new ones are dropped. Each stream delivers
// one batch at a time, so a batch waiting out its backoff delays every
// batch queued behind it.
func WithPendingBatches(n int) Option {
	return func(c *clientConfig) { c.engine.PendingBatches = n }
}

// WithRetryable sets which failures are retried. By default all are.
func WithRetryable(fn func(error) bool) Option {
	return func(c *clientConfig) { c.engine.Retryable = fn }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithGzip compresses request bodies.
func WithGzip(enabled bool) Option {
	return func(c *clientConfig) { c.gzip = enabled }
}

// WithTransport replaces the HTTP transport. WithBaseURL, WithHTTPClient
// and WithGzip are ignored when it is set.
func WithTransport(t Transport) Option {
	return func(c *clientConfig) { c.transport = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithPrometheus registers delivery metrics with reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *clientConfig) { c.registerer = reg }
}

// WithDiagnosticHandler receives abandoned, dropped and recovered
// deliveries. It must return quickly and must not call the client.
func WithDiagnosticHandler(h DiagnosticHandler) Option {
	return func(c *clientConfig) { c.onDiagnostic = h }
}

// WithSessionID fixes the session id stamped on logs instead of
// generating one.
func WithSessionID(id string) Option {
	return func(c *clientConfig) { c.sessionID = id }
}

// WithAnonymousID fixes the anonymous id used by Users().Identify.
func WithAnonymousID(id string) Option {
	return func(c *clientConfig) { c.anonymousID = id }
}

func withClock(c clock.Clock) Option {
	return func(cfg *clientConfig) { cfg.clock = c }
}
