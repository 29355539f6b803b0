package boringmetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
	"github.com/boringmetrics/boringmetrics-go/internal/testutils"
)

func strPtr(s string) *string { return &s }

func newTestClient(t *testing.T, transport *testutils.MockTransport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithTransport(transport), WithRetryBaseDelay(time.Millisecond)}, opts...)
	c, err := New("secret", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New("secret", WithLogsMaxBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_GeneratesIDs(t *testing.T) {
	c := newTestClient(t, &testutils.MockTransport{})
	defer c.Close(context.Background())

	assert.NotEmpty(t, c.SessionID())
	assert.NotEmpty(t, c.AnonymousID())
	assert.NotEqual(t, c.SessionID(), c.AnonymousID())

	fixed := newTestClient(t, &testutils.MockTransport{}, WithSessionID("s-1"), WithAnonymousID("a-1"))
	defer fixed.Close(context.Background())
	assert.Equal(t, "s-1", fixed.SessionID())
	assert.Equal(t, "a-1", fixed.AnonymousID())
}

func TestLogs_SendStampsSession(t *testing.T) {
	transport := &testutils.MockTransport{}
	c := newTestClient(t, transport, WithSessionID("session-1"))

	require.NoError(t, c.Logs().Send(LogEvent{Level: LevelInfo, Message: "a"}))
	require.NoError(t, c.Logs().Send(LogEvent{Level: LevelWarn, Message: "b", SessionID: "other"}))
	require.NoError(t, c.Close(context.Background()))

	batches := transport.GetSentLogs()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "session-1", batches[0][0].SessionID)
	assert.Equal(t, "other", batches[0][1].SessionID)
	assert.Equal(t, "log", batches[0][0].Type)
	assert.Equal(t, []string{"secret"}, transport.SeenTokens)
}

func TestLogs_SendBatchJoinsErrors(t *testing.T) {
	transport := &testutils.MockTransport{}
	c := newTestClient(t, transport)

	err := c.Logs().SendBatch([]LogEvent{
		{Level: LevelInfo, Message: "ok"},
		{Level: "loud", Message: "bad"},
		{Level: LevelError, Message: "also ok"},
	})
	assert.ErrorIs(t, err, ErrInvalidLevel)
	require.NoError(t, c.Close(context.Background()))

	batches := transport.GetSentLogs()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	assert.ErrorIs(t, c.Logs().SendBatch([]LogEvent{{Level: LevelInfo}}), ErrClosed)
}

func TestLives_UpdateBatch(t *testing.T) {
	transport := &testutils.MockTransport{}
	c := newTestClient(t, transport)

	err := c.Lives().UpdateBatch([]LiveUpdate{
		{LiveID: "signups", Value: 1, Operation: OperationIncrement},
		{LiveID: "", Value: 1, Operation: OperationSet},
		{LiveID: "revenue", Value: 99.5, Operation: OperationSet},
	})
	assert.ErrorIs(t, err, ErrEmptyLiveID)
	require.NoError(t, c.Close(context.Background()))

	lives := transport.GetSentLives()
	require.Len(t, lives, 2)
	assert.Equal(t, "signups", lives[0].LiveID)
	assert.Equal(t, "revenue", lives[1].LiveID)
	assert.False(t, lives[0].SentAt.IsZero())
}

func TestUsers_IdentifyFillsAnonymousID(t *testing.T) {
	transport := &testutils.MockTransport{}
	c := newTestClient(t, transport, WithAnonymousID("anon-1"))
	defer c.Close(context.Background())

	require.NoError(t, c.Users().Identify(context.Background(), UserIdentity{UserID: strPtr("u-1")}))
	require.NoError(t, c.Users().Identify(context.Background(), UserIdentity{AnonymousID: "anon-2"}))

	users := transport.GetSentUsers()
	require.Len(t, users, 2)
	assert.Equal(t, "anon-1", users[0].AnonymousID)
	require.NotNil(t, users[0].UserID)
	assert.Equal(t, "u-1", *users[0].UserID)
	assert.Equal(t, "anon-2", users[1].AnonymousID)
}

func TestUsers_IdentifyReturnsFailure(t *testing.T) {
	transport := &testutils.MockTransport{ShouldFail: true}
	c := newTestClient(t, transport, WithMaxRetryAttempts(1))
	defer c.Close(context.Background())

	err := c.Users().Identify(context.Background(), UserIdentity{UserID: strPtr("u-1")})
	assert.ErrorIs(t, err, testutils.ErrMockTransport)

	_, _, users := transport.GetCallCounts()
	assert.Equal(t, 2, users)
	assert.Equal(t, 1, c.Stats().Retries)
}

func TestClient_RetryableStopsOnPermanentFailure(t *testing.T) {
	transport := &testutils.MockTransport{ShouldFail: true}
	c := newTestClient(t, transport, WithRetryable(func(err error) bool {
		return !errors.Is(err, testutils.ErrMockTransport)
	}))
	defer c.Close(context.Background())

	err := c.Users().Identify(context.Background(), UserIdentity{UserID: strPtr("u-1")})
	require.Error(t, err)

	_, _, users := transport.GetCallCounts()
	assert.Equal(t, 1, users)
}

func TestClient_IntervalFlush(t *testing.T) {
	fake := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	transport := &testutils.MockTransport{Calls: make(chan Stream, 10)}
	c := newTestClient(t, transport, withClock(fake), WithLogsSendInterval(2*time.Second))
	defer c.Close(context.Background())

	require.NoError(t, c.Logs().Send(LogEvent{Level: LevelInfo, Message: "tick"}))
	fake.Advance(2 * time.Second)

	select {
	case stream := <-transport.Calls:
		assert.Equal(t, StreamLogs, stream)
	case <-time.After(2 * time.Second):
		t.Fatal("logs were not flushed after the send interval")
	}

	batches := transport.GetSentLogs()
	require.Len(t, batches, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), batches[0][0].SentAt)
}

func TestClient_DiagnosticsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := &testutils.DiagnosticRecorder{}
	transport := &testutils.MockTransport{ShouldFail: true}
	c := newTestClient(t, transport,
		WithMaxRetryAttempts(0),
		WithPrometheus(reg),
		WithDiagnosticHandler(recorder.Record),
	)

	require.NoError(t, c.Logs().Send(LogEvent{Level: LevelError, Message: "lost"}))
	require.NoError(t, c.Close(context.Background()))

	diags := recorder.Get()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticAbandoned, diags[0].Kind)
	assert.Equal(t, StreamLogs, diags[0].Stream)

	assert.Equal(t, 1, c.Stats().ItemsAbandoned)
	assert.Greater(t, testutil.CollectAndCount(reg), 0)
}

func TestClient_Flush(t *testing.T) {
	transport := &testutils.MockTransport{Calls: make(chan Stream, 10)}
	c := newTestClient(t, transport)
	defer c.Close(context.Background())

	require.NoError(t, c.Logs().Send(LogEvent{Level: LevelInfo, Message: "now"}))
	c.Flush()

	select {
	case stream := <-transport.Calls:
		assert.Equal(t, StreamLogs, stream)
	case <-time.After(2 * time.Second):
		t.Fatal("Flush did not deliver buffered logs")
	}
}

func TestPackageAPI_BeforeInit(t *testing.T) {
	_, err := Default()
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, Logs().Send(LogEvent{Level: LevelInfo}), ErrNotInitialized)
	assert.ErrorIs(t, Logs().SendBatch(nil), ErrNotInitialized)
	assert.ErrorIs(t, Lives().Update(LiveUpdate{LiveID: "x", Operation: OperationSet}), ErrNotInitialized)
	assert.ErrorIs(t, Lives().UpdateBatch(nil), ErrNotInitialized)
	assert.ErrorIs(t, Users().Identify(context.Background(), UserIdentity{}), ErrNotInitialized)
	assert.ErrorIs(t, Shutdown(context.Background()), ErrNotInitialized)
}

func TestPackageAPI_InitFirstWins(t *testing.T) {
	first := &testutils.MockTransport{}
	second := &testutils.MockTransport{}

	c1, err := Init("first", WithTransport(first))
	require.NoError(t, err)
	c2, err := Init("second", WithTransport(second))
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	require.NoError(t, Logs().Send(LogEvent{Level: LevelInfo, Message: "hello"}))
	require.NoError(t, Lives().Update(LiveUpdate{LiveID: "visitors", Value: 3, Operation: OperationSet}))
	require.NoError(t, Users().Identify(context.Background(), UserIdentity{UserID: strPtr("u-1")}))
	require.NoError(t, Shutdown(context.Background()))

	assert.Len(t, first.GetSentLogs(), 1)
	assert.Len(t, first.GetSentLives(), 1)
	assert.Len(t, first.GetSentUsers(), 1)
	logs, lives, users := second.GetCallCounts()
	assert.Zero(t, logs+lives+users)

	_, err = Default()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
