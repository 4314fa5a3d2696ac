package merchant

import (
	"fmt"
	"sync"
)

var ErrNotFound = fmt.Errorf("not found")

// Repository is the in-memory session store. Sessions live for the duration
// of the process only; there is no persistence and interrupted checkouts are
// re-initiated end to end.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRepository() *Repository {
	return &Repository{
		sessions: make(map[string]*Session),
	}
}

func (r *Repository) CreateSession(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
}

func (r *Repository) GetSession(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}
