package redistransport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

const DefaultPrefix = "boringmetrics"

// Sender appends telemetry to Redis Streams, one entry per item. Tokens
// are never written; entries carry a short fingerprint instead so a
// consumer can tell projects apart.
type Sender struct {
	client redis.Cmdable
	prefix string
	maxLen int64
}

type Option func(*Sender)

func WithPrefix(prefix string) Option {
	return func(s *Sender) { s.prefix = prefix }
}

// WithMaxLen caps each stream at roughly n entries (XADD MAXLEN ~).
func WithMaxLen(n int64) Option {
	return func(s *Sender) { s.maxLen = n }
}

func New(client redis.Cmdable, opts ...Option) *Sender {
	s := &Sender{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) StreamKey(stream telemetry.Stream) string {
	return s.prefix + ":" + string(stream)
}

func (s *Sender) SendLogs(ctx context.Context, logs []telemetry.LogEvent, token string) error {
	if len(logs) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, log := range logs {
		args, err := s.addArgs(telemetry.StreamLogs, log, token)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute logs pipeline: %w", err)
	}
	return nil
}

func (s *Sender) UpdateLive(ctx context.Context, update telemetry.LiveUpdate, token string) error {
	return s.add(ctx, telemetry.StreamLives, update, token)
}

func (s *Sender) IdentifyUser(ctx context.Context, user telemetry.UserIdentity, token string) error {
	return s.add(ctx, telemetry.StreamUsers, user, token)
}

func (s *Sender) add(ctx context.Context, stream telemetry.Stream, item any, token string) error {
	args, err := s.addArgs(stream, item, token)
	if err != nil {
		return err
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to %s: %w", args.Stream, err)
	}
	return nil
}

func (s *Sender) addArgs(stream telemetry.Stream, item any, token string) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s entry: %w", stream, err)
	}

	args := &redis.XAddArgs{
		Stream: s.StreamKey(stream),
		Values: map[string]interface{}{
			"payload":  payload,
			"project":  Fingerprint(token),
			"added_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args, nil
}

// Fingerprint returns the first 8 bytes of the token's SHA-256, hex encoded.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
