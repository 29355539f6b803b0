package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(tokens ...string) (*Server, *Store) {
	store := NewStore()
	return NewServer(store, discard, tokens...), store
}

func TestRouter(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		auth           string
		body           string
		expectedStatus int
	}{
		{
			name:           "Valid Logs",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			auth:           "Bearer good",
			body:           `{"logs":[{"type":"log","level":"info","message":"hi"}]}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "Empty Logs",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			auth:           "Bearer good",
			body:           `{"logs":[]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid Level",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			auth:           "Bearer good",
			body:           `{"logs":[{"level":"shouty","message":"hi"}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad JSON",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			auth:           "Bearer good",
			body:           `{"logs":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing Token",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			body:           `{"logs":[{"level":"info"}]}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unknown Token",
			method:         http.MethodPost,
			path:           "/api/v1/logs",
			auth:           "Bearer bad",
			body:           `{"logs":[{"level":"info"}]}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Live",
			method:         http.MethodPut,
			path:           "/api/v1/lives/cart",
			auth:           "Bearer good",
			body:           `{"live":{"liveId":"cart","value":3,"operation":"increment"}}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Live Path Mismatch",
			method:         http.MethodPut,
			path:           "/api/v1/lives/cart",
			auth:           "Bearer good",
			body:           `{"live":{"liveId":"other","value":3,"operation":"set"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Live Bad Operation",
			method:         http.MethodPut,
			path:           "/api/v1/lives/cart",
			auth:           "Bearer good",
			body:           `{"live":{"liveId":"cart","value":3,"operation":"divide"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Valid User",
			method:         http.MethodPost,
			path:           "/api/v1/users",
			auth:           "Bearer good",
			body:           `{"user":{"userId":null,"anonymousId":"anon-1"}}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "User Without Ids",
			method:         http.MethodPost,
			path:           "/api/v1/users",
			auth:           "Bearer good",
			body:           `{"user":{"userId":null}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodDelete,
			path:           "/api/v1/logs",
			auth:           "Bearer good",
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer("good")

			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rr := httptest.NewRecorder()

			server.Router().ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_Health(t *testing.T) {
	server, _ := newTestServer()
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestRouter_AnyTokenWhenNoneConfigured(t *testing.T) {
	server, store := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", bytes.NewBufferString(`{"logs":[{"level":"warn","message":"x"}]}`))
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Len(t, store.Logs("whatever"), 1)
}

func TestRouter_GzipBody(t *testing.T) {
	server, store := newTestServer()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"logs":[{"level":"info","message":"zipped"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", &buf)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Encoding", "gzip")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	logs := store.Logs("tok")
	require.Len(t, logs, 1)
	assert.Equal(t, "zipped", logs[0].Log.Message)
}

func TestRouter_GetLive(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()

	put := func(body string) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/lives/visitors", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	put(`{"live":{"value":5,"operation":"set"}}`)
	put(`{"live":{"value":2,"operation":"increment"}}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lives/visitors", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Live LiveState `json:"live"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 7.0, resp.Live.Value)
	assert.Equal(t, 2, resp.Live.Updates)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/lives/missing", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_InjectFailures(t *testing.T) {
	server, _ := newTestServer()
	router := server.Router()
	server.InjectFailures(2, http.StatusServiceUnavailable)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewBufferString(`{"user":{"anonymousId":"a"}}`))
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusCreated}, codes)
}
