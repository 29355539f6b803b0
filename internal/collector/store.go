package collector

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boringmetrics/boringmetrics-go/internal/telemetry"
)

type StoredLog struct {
	ID         string             `json:"id"`
	ReceivedAt time.Time          `json:"receivedAt"`
	Log        telemetry.LogEvent `json:"log"`
}

// LiveState is the current value of a live metric after every update seen
// so far has been applied.
type LiveState struct {
	LiveID    string    `json:"liveId"`
	Value     float64   `json:"value"`
	Updates   int       `json:"updates"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StoredUser struct {
	ID         string                 `json:"id"`
	ReceivedAt time.Time              `json:"receivedAt"`
	User       telemetry.UserIdentity `json:"user"`
}

type project struct {
	logs  []StoredLog
	lives map[string]*LiveState
	users map[string]*StoredUser
}

// Store keeps everything in memory, partitioned by token.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*project
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		projects: make(map[string]*project),
		now:      time.Now,
	}
}

func (s *Store) project(token string) *project {
	p, ok := s.projects[token]
	if !ok {
		p = &project{
			lives: make(map[string]*LiveState),
			users: make(map[string]*StoredUser),
		}
		s.projects[token] = p
	}
	return p
}

func (s *Store) AddLogs(token string, logs []telemetry.LogEvent) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.project(token)
	now := s.now().UTC()
	ids := make([]string, 0, len(logs))
	for _, log := range logs {
		id := uuid.NewString()
		p.logs = append(p.logs, StoredLog{ID: id, ReceivedAt: now, Log: log})
		ids = append(ids, id)
	}
	return ids
}

// ApplyLive sets or increments the live value and returns the new state.
func (s *Store) ApplyLive(token string, update telemetry.LiveUpdate) LiveState {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.project(token)
	state, ok := p.lives[update.LiveID]
	if !ok {
		state = &LiveState{LiveID: update.LiveID}
		p.lives[update.LiveID] = state
	}

	switch update.Operation {
	case telemetry.OperationIncrement:
		state.Value += update.Value
	default:
		state.Value = update.Value
	}
	state.Updates++
	state.UpdatedAt = s.now().UTC()
	return *state
}

// UpsertUser merges the identity into the stored user with the same
// userId, or anonymousId when userId is null.
func (s *Store) UpsertUser(token string, user telemetry.UserIdentity) StoredUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.project(token)
	key := "anon:" + user.AnonymousID
	if user.UserID != nil {
		key = "user:" + *user.UserID
	}

	stored, ok := p.users[key]
	if !ok {
		stored = &StoredUser{ID: uuid.NewString()}
		p.users[key] = stored
	}
	stored.ReceivedAt = s.now().UTC()
	stored.User = mergeUser(stored.User, user)
	return *stored
}

func mergeUser(prev, next telemetry.UserIdentity) telemetry.UserIdentity {
	if next.Name == "" {
		next.Name = prev.Name
	}
	if next.Email == "" {
		next.Email = prev.Email
	}
	if len(prev.Properties) > 0 {
		merged := make(map[string]any, len(prev.Properties)+len(next.Properties))
		for k, v := range prev.Properties {
			merged[k] = v
		}
		for k, v := range next.Properties {
			merged[k] = v
		}
		next.Properties = merged
	}
	return next
}

func (s *Store) Logs(token string) []StoredLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[token]
	if !ok {
		return nil
	}
	return append([]StoredLog(nil), p.logs...)
}

func (s *Store) Live(token, liveID string) (LiveState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[token]
	if !ok {
		return LiveState{}, false
	}
	state, ok := p.lives[liveID]
	if !ok {
		return LiveState{}, false
	}
	return *state, true
}

func (s *Store) Users(token string) []StoredUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[token]
	if !ok {
		return nil
	}
	users := make([]StoredUser, 0, len(p.users))
	for _, u := range p.users {
		users = append(users, *u)
	}
	return users
}
