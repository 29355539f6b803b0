package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

const maxBodySize = 5 << 20

// Server implements the collection API on top of a Store.
type Server struct {
	store   *Store
	logger  *slog.Logger
	allowed map[string]struct{}

	faultsMu    sync.Mutex
	faults      int
	faultStatus int
}

// NewServer accepts only the given tokens; with none, any bearer token
// is accepted.
func NewServer(store *Store, logger *slog.Logger, tokens ...string) *Server {
	allowed := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &Server{
		store:   store,
		logger:  logger.With("component", "collector"),
		allowed: allowed,
	}
}

// InjectFailures makes the next n API requests fail with status.
func (s *Server) InjectFailures(n, status int) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults = n
	s.faultStatus = status
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Logging(s.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(s.allowed, s.logger))
		r.Use(s.faultInjection)
		r.Use(Gunzip)

		r.Post("/logs", s.handleLogs)
		r.Get("/logs", s.handleListLogs)
		r.Put("/lives/{liveId}", s.handleLive)
		r.Get("/lives/{liveId}", s.handleGetLive)
		r.Post("/users", s.handleUser)
		r.Get("/users", s.handleListUsers)
	})

	return r
}

func (s *Server) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.faultsMu.Lock()
		fail := s.faults > 0
		status := s.faultStatus
		if fail {
			s.faults--
		}
		s.faultsMu.Unlock()

		if fail {
			http.Error(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type logsRequest struct {
	Logs []telemetry.LogEvent `json:"logs"`
}

type liveRequest struct {
	Live telemetry.LiveUpdate `json:"live"`
}

type userRequest struct {
	User telemetry.UserIdentity `json:"user"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var req logsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Logs) == 0 {
		http.Error(w, "Bad request: logs must not be empty", http.StatusBadRequest)
		return
	}
	for i, log := range req.Logs {
		if !log.Level.Valid() {
			http.Error(w, fmt.Sprintf("Bad request: logs[%d] has invalid level %q", i, log.Level), http.StatusBadRequest)
			return
		}
	}

	ids := s.store.AddLogs(TokenFrom(r.Context()), req.Logs)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(ids), "ids": ids})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.store.Logs(TokenFrom(r.Context()))})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	var req liveRequest
	if !s.decode(w, r, &req) {
		return
	}

	liveID := chi.URLParam(r, "liveId")
	if req.Live.LiveID == "" {
		req.Live.LiveID = liveID
	}
	if req.Live.LiveID != liveID {
		http.Error(w, "Bad request: liveId does not match path", http.StatusBadRequest)
		return
	}
	if !req.Live.Operation.Valid() {
		http.Error(w, fmt.Sprintf("Bad request: invalid operation %q", req.Live.Operation), http.StatusBadRequest)
		return
	}

	state := s.store.ApplyLive(TokenFrom(r.Context()), req.Live)
	writeJSON(w, http.StatusOK, map[string]any{"live": state})
}

func (s *Server) handleGetLive(w http.ResponseWriter, r *http.Request) {
	state, ok := s.store.Live(TokenFrom(r.Context()), chi.URLParam(r, "liveId"))
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"live": state})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.User.UserID == nil && req.User.AnonymousID == "" {
		http.Error(w, "Bad request: userId or anonymousId is required", http.StatusBadRequest)
		return
	}

	stored := s.store.UpsertUser(TokenFrom(r.Context()), req.User)
	writeJSON(w, http.StatusCreated, map[string]any{"id": stored.ID})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.store.Users(TokenFrom(r.Context()))})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return false
		}
		s.logger.Warn("failed to decode request", "path", r.URL.Path, "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
