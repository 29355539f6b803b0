package boringmetrics

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/boringmetrics/boringmetrics-go/internal/metrics"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/engine"
	"github.com/boringmetrics/boringmetrics-go/internal/telemetry/httptransport"
)

// Client owns a delivery engine. It is safe for concurrent use.
type Client struct {
	engine      *engine.Engine
	sessionID   string
	anonymousID string

	logs  *LogsAPI
	lives *LivesAPI
	users *UsersAPI
}

// New creates a client and starts its background delivery.
func New(token string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		engine:  telemetry.DefaultConfig(token),
		baseURL: httptransport.DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := cfg.transport
	if transport == nil {
		httpOpts := []httptransport.Option{
			httptransport.WithBaseURL(cfg.baseURL),
			httptransport.WithGzip(cfg.gzip),
		}
		if cfg.httpClient != nil {
			httpOpts = append(httpOpts, httptransport.WithHTTPClient(cfg.httpClient))
		}
		transport = httptransport.New(httpOpts...)
	}

	var engineOpts []engine.Option
	if cfg.logger != nil {
		engineOpts = append(engineOpts, engine.WithLogger(cfg.logger))
	}
	if cfg.registerer != nil {
		engineOpts = append(engineOpts, engine.WithObserver(metrics.NewDeliveryMetrics(cfg.registerer)))
	}
	if cfg.onDiagnostic != nil {
		engineOpts = append(engineOpts, engine.WithDiagnosticHandler(cfg.onDiagnostic))
	}
	if cfg.clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(cfg.clock))
	}

	eng, err := engine.New(cfg.engine, transport, engineOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		engine:      eng,
		sessionID:   cfg.sessionID,
		anonymousID: cfg.anonymousID,
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	if c.anonymousID == "" {
		c.anonymousID = uuid.NewString()
	}
	c.logs = &LogsAPI{client: c}
	c.lives = &LivesAPI{client: c}
	c.users = &UsersAPI{client: c}
	return c, nil
}

func (c *Client) Logs() *LogsAPI { return c.logs }

func (c *Client) Lives() *LivesAPI { return c.lives }

func (c *Client) Users() *UsersAPI { return c.users }

// SessionID is stamped on every log that carries none.
func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) AnonymousID() string { return c.anonymousID }

func (c *Client) Stats() Stats { return c.engine.Stats() }

// Flush sends whatever is buffered without waiting for it to be delivered.
func (c *Client) Flush() { c.engine.Flush() }

// Close flushes buffered events and waits for their delivery until ctx
// ends. Sends after Close return ErrClosed.
func (c *Client) Close(ctx context.Context) error {
	return c.engine.Close(ctx)
}

// LogsAPI sends structured logs. Sends return as soon as the log is
// buffered.
type LogsAPI struct {
	client *Client
}

func (l *LogsAPI) Send(log LogEvent) error {
	if l.client == nil {
		return ErrNotInitialized
	}
	if log.SessionID == "" {
		log.SessionID = l.client.sessionID
	}
	return l.client.engine.AddLog(log)
}

// SendBatch buffers every valid log and returns the joined errors of the
// rejected ones.
func (l *LogsAPI) SendBatch(logs []LogEvent) error {
	if l.client == nil {
		return ErrNotInitialized
	}
	var errs []error
	for _, log := range logs {
		if err := l.Send(log); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LivesAPI updates live metrics. Updates are debounced and sent in
// batches.
type LivesAPI struct {
	client *Client
}

func (l *LivesAPI) Update(update LiveUpdate) error {
	if l.client == nil {
		return ErrNotInitialized
	}
	return l.client.engine.UpdateLive(update)
}

func (l *LivesAPI) UpdateBatch(updates []LiveUpdate) error {
	if l.client == nil {
		return ErrNotInitialized
	}
	var errs []error
	for _, update := range updates {
		if err := l.Update(update); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UsersAPI declares user identities. Unlike logs and lives, Identify
// waits for delivery and returns its failure.
type UsersAPI struct {
	client *Client
}

// Identify fills in the client's anonymous id when the user carries none.
func (u *UsersAPI) Identify(ctx context.Context, user UserIdentity) error {
	if u.client == nil {
		return ErrNotInitialized
	}
	if user.AnonymousID == "" {
		user.AnonymousID = u.client.anonymousID
	}
	return u.client.engine.IdentifyUser(ctx, user)
}
