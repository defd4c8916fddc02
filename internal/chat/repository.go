package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("chat session not found")

// Sessions not updated for this long are forgotten.
const sessionIdleTTL = 24 * time.Hour

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// memoryRepo keeps sessions for the life of the process.
type memoryRepo struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[uuid.UUID]Session
}

func NewMemoryRepository() Repository {
	return newMemoryRepo(time.Now)
}

func newMemoryRepo(now func() time.Time) *memoryRepo {
	return &memoryRepo{now: now, sessions: make(map[uuid.UUID]Session)}
}

func (r *memoryRepo) expired(s Session) bool {
	return r.now().Sub(s.UpdatedAt) > sessionIdleTTL
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || r.expired(s) {
		return nil, ErrNotFound
	}
	s.Messages = append([]Message(nil), s.Messages...)
	return &s, nil
}

// Save stores a copy of s and drops expired sessions.
func (r *memoryRepo) Save(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, stored := range r.sessions {
		if r.expired(stored) {
			delete(r.sessions, id)
		}
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	r.sessions[s.ID] = cp
	return nil
}
