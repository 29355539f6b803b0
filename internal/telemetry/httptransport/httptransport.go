package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

const (
	DefaultBaseURL = "https://api.getboringmetrics.com"
	DefaultTimeout = 5 * time.Second

	LogsPath  = "/api/v1/logs"
	LivesPath = "/api/v1/lives/"
	UsersPath = "/api/v1/users"

	// maxErrorBody caps how much of a failed response is kept in StatusError.
	maxErrorBody = 4 << 10
)

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// RetryableStatus reports whether err is worth another attempt. Network
// errors are; HTTP errors only for 408, 429 and 5xx.
func RetryableStatus(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return true
	}
	switch statusErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusErr.StatusCode >= 500
}

type LogsPayload struct {
	Logs []telemetry.LogEvent `json:"logs"`
}

type LivePayload struct {
	Live telemetry.LiveUpdate `json:"live"`
}

type UserPayload struct {
	User telemetry.UserIdentity `json:"user"`
}

// Sender speaks the collection API over HTTP.
type Sender struct {
	baseURL    string
	httpClient *http.Client
	gzip       bool
	userAgent  string
}

type Option func(*Sender)

func WithBaseURL(baseURL string) Option {
	return func(s *Sender) { s.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) { s.httpClient = client }
}

// WithGzip compresses request bodies.
func WithGzip(enabled bool) Option {
	return func(s *Sender) { s.gzip = enabled }
}

func WithUserAgent(ua string) Option {
	return func(s *Sender) { s.userAgent = ua }
}

func New(opts ...Option) *Sender {
	s := &Sender{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: "boringmetrics-go",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) SendLogs(ctx context.Context, logs []telemetry.LogEvent, token string) error {
	if len(logs) == 0 {
		return nil
	}
	return s.do(ctx, http.MethodPost, LogsPath, token, LogsPayload{Logs: logs})
}

func (s *Sender) UpdateLive(ctx context.Context, update telemetry.LiveUpdate, token string) error {
	return s.do(ctx, http.MethodPut, LivesPath+url.PathEscape(update.LiveID), token, LivePayload{Live: update})
}

func (s *Sender) IdentifyUser(ctx context.Context, user telemetry.UserIdentity, token string) error {
	return s.do(ctx, http.MethodPost, UsersPath, token, UserPayload{User: user})
}

func (s *Sender) do(ctx context.Context, method, path, token string, payload any) error {
	body, err := s.encode(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", s.userAgent)
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(responseBody),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (s *Sender) encode(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if !s.gzip {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}
