package testutils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

var ErrMockTransport = errors.New("mock transport failed")

// MockTransport records every call. The first FailTimes calls of each
// kind fail; ShouldFail makes every call fail.
type MockTransport struct {
	mu sync.Mutex

	ShouldFail bool
	FailTimes  int
	// FailLive makes UpdateLive fail for these live ids only.
	FailLive map[string]bool

	LogCalls   int
	LiveCalls  int
	UserCalls  int
	SentLogs   [][]telemetry.LogEvent
	SentLives  []telemetry.LiveUpdate
	SentUsers  []telemetry.UserIdentity
	SeenTokens []string

	// Calls receives the stream name of every call, if non-nil.
	Calls chan telemetry.Stream
}

func (m *MockTransport) SendLogs(ctx context.Context, logs []telemetry.LogEvent, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LogCalls++
	m.SeenTokens = append(m.SeenTokens, token)
	defer m.notify(telemetry.StreamLogs)

	if m.ShouldFail || m.LogCalls <= m.FailTimes {
		return ErrMockTransport
	}
	m.SentLogs = append(m.SentLogs, logs)
	return nil
}

func (m *MockTransport) UpdateLive(ctx context.Context, update telemetry.LiveUpdate, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LiveCalls++
	m.SeenTokens = append(m.SeenTokens, token)
	defer m.notify(telemetry.StreamLives)

	if m.ShouldFail || m.LiveCalls <= m.FailTimes || m.FailLive[update.LiveID] {
		return ErrMockTransport
	}
	m.SentLives = append(m.SentLives, update)
	return nil
}

func (m *MockTransport) IdentifyUser(ctx context.Context, user telemetry.UserIdentity, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UserCalls++
	m.SeenTokens = append(m.SeenTokens, token)
	defer m.notify(telemetry.StreamUsers)

	if m.ShouldFail || m.UserCalls <= m.FailTimes {
		return ErrMockTransport
	}
	m.SentUsers = append(m.SentUsers, user)
	return nil
}

func (m *MockTransport) notify(stream telemetry.Stream) {
	if m.Calls != nil {
		m.Calls <- stream
	}
}

func (m *MockTransport) GetSentLogs() [][]telemetry.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SentLogs
}

func (m *MockTransport) GetSentLives() []telemetry.LiveUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SentLives
}

func (m *MockTransport) GetSentUsers() []telemetry.UserIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SentUsers
}

// GetCallCounts returns log, live and user call counts.
func (m *MockTransport) GetCallCounts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LogCalls, m.LiveCalls, m.UserCalls
}

// DiagnosticRecorder collects diagnostics for assertions.
type DiagnosticRecorder struct {
	mu          sync.Mutex
	Diagnostics []telemetry.Diagnostic
}

func (r *DiagnosticRecorder) Record(d telemetry.Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Diagnostics = append(r.Diagnostics, d)
}

func (r *DiagnosticRecorder) Get() []telemetry.Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Diagnostic(nil), r.Diagnostics...)
}

// Kinds returns the recorded diagnostic kinds in order.
func (r *DiagnosticRecorder) Kinds() []telemetry.DiagnosticKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]telemetry.DiagnosticKind, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

// MockLogSink stands in for the engine where only AddLog is needed.
type MockLogSink struct {
	Logs        []telemetry.LogEvent
	mu          sync.Mutex
	AddLogDelay time.Duration
	ShouldFail  bool
	AddLogCalls int
}

func (m *MockLogSink) AddLog(log telemetry.LogEvent) error {
	if m.AddLogDelay > 0 {
		time.Sleep(m.AddLogDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.AddLogCalls++
	if m.ShouldFail {
		return telemetry.ErrClosed
	}
	m.Logs = append(m.Logs, log)
	return nil
}

func (m *MockLogSink) GetLogs() []telemetry.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telemetry.LogEvent(nil), m.Logs...)
}

// CreateTempLogStructure lays out a kubelet-style pod log tree.
func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_checkout-7f9c_uid123/api/0.log":       "starting checkout api\nERROR payment gateway timeout\n",
		"default_checkout-7f9c_uid123/sidecar/0.log":   "proxy ready\n",
		"kube-system_dns-2b1a_uid456/coredns/0.log":    "WARN upstream slow\n",
		"monitoring_metrics-5d2e_uid789/scraper/0.txt": "ignored, not a .log file\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
