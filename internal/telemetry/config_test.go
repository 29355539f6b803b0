package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("tok")

	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 5, cfg.MaxRetryAttempts)
	assert.Equal(t, 100, cfg.LogsMaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.LogsSendInterval)
	assert.Equal(t, 20, cfg.LivesMaxBatchSize)
	assert.Equal(t, time.Second, cfg.LivesDebounceTime)
	assert.Equal(t, AbortOnError, cfg.LiveFailurePolicy)
	assert.Nil(t, cfg.Retryable)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Token = "" }},
		{"negative retries", func(c *Config) { c.MaxRetryAttempts = -1 }},
		{"zero logs batch", func(c *Config) { c.LogsMaxBatchSize = 0 }},
		{"zero logs interval", func(c *Config) { c.LogsSendInterval = 0 }},
		{"zero lives batch", func(c *Config) { c.LivesMaxBatchSize = 0 }},
		{"negative debounce", func(c *Config) { c.LivesDebounceTime = -time.Second }},
		{"zero base delay", func(c *Config) { c.RetryBaseDelay = 0 }},
		{"zero pending batches", func(c *Config) { c.PendingBatches = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("tok")
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("zero retries allowed", func(t *testing.T) {
		cfg := DefaultConfig("tok")
		cfg.MaxRetryAttempts = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestParseLiveFailurePolicy(t *testing.T) {
	p, err := ParseLiveFailurePolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, ContinueOnError, p)
	assert.Equal(t, "continue", p.String())

	p, err = ParseLiveFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, AbortOnError, p)

	_, err = ParseLiveFailurePolicy("retry-forever")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLevelAndOperationValid(t *testing.T) {
	for _, l := range []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal} {
		assert.True(t, l.Valid(), l)
	}
	assert.False(t, Level("verbose").Valid())

	assert.True(t, OperationSet.Valid())
	assert.True(t, OperationIncrement.Valid())
	assert.False(t, Operation("decrement").Valid())
}

func TestUserIdentity_NullUserID(t *testing.T) {
	body, err := json.Marshal(UserIdentity{AnonymousID: "anon-1"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	v, ok := decoded["userId"]
	assert.True(t, ok, "userId must be present")
	assert.Nil(t, v)
	assert.Equal(t, "anon-1", decoded["anonymousId"])
	assert.NotContains(t, decoded, "email")
}
