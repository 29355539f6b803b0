package redistransport

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

func TestSender_AddArgs(t *testing.T) {
	s := New(nil, WithPrefix("test"), WithMaxLen(1000))

	args, err := s.addArgs(telemetry.StreamLives, telemetry.LiveUpdate{
		LiveID:    "signups",
		Value:     1,
		Operation: telemetry.OperationIncrement,
	}, "secret")
	require.NoError(t, err)

	assert.Equal(t, "test:lives", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, Fingerprint("secret"), values["project"])
	assert.NotContains(t, string(values["payload"].([]byte)), "secret")

	var live telemetry.LiveUpdate
	require.NoError(t, json.Unmarshal(values["payload"].([]byte), &live))
	assert.Equal(t, "signups", live.LiveID)
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, Fingerprint("a"), 16)
	assert.Equal(t, Fingerprint("a"), Fingerprint("a"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}

func TestSender_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "bm-test-" + Fingerprint(t.Name())
	s := New(client, WithPrefix(prefix))
	defer client.Del(ctx, s.StreamKey(telemetry.StreamLogs), s.StreamKey(telemetry.StreamUsers))

	logs := []telemetry.LogEvent{
		{Type: telemetry.LogType, Level: telemetry.LevelInfo, Message: "first"},
		{Type: telemetry.LogType, Level: telemetry.LevelWarn, Message: "second"},
	}
	require.NoError(t, s.SendLogs(ctx, logs, "secret"))
	require.NoError(t, s.IdentifyUser(ctx, telemetry.UserIdentity{AnonymousID: "anon"}, "secret"))

	entries, err := client.XRange(ctx, s.StreamKey(telemetry.StreamLogs), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var first telemetry.LogEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &first))
	assert.Equal(t, "first", first.Message)

	n, err := client.XLen(ctx, s.StreamKey(telemetry.StreamUsers)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
