// Package session runs action lists against a worker, either stepwise
// within a session or as a single one-shot request, and keeps track of
// sessions that are still open on the worker.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired.
	ErrSessionExpired = errors.New("session expired")
)

// Session is a stepwise session the worker may still hold a browser for.
type Session struct {
	ID       string
	ClientID string
	// NextStep is the step index the next action will be sent with.
	NextStep   int
	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
}

// IsExpired checks if the session has been idle past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store is an in-memory registry of open sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a new in-memory session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Set stores a copy of session.
func (s *Store) Set(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
}

// Get returns a copy of the session.
func (s *Store) Get(sessionID string, now time.Time) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired(now) {
		return nil, ErrSessionExpired
	}
	cp := *session
	return &cp, nil
}

// Delete removes a session from the store.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of tracked sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns every tracked session ordered by creation time.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cleanup removes expired sessions and returns them.
func (s *Store) Cleanup(now time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []Session
	for id, session := range s.sessions {
		if session.IsExpired(now) {
			removed = append(removed, *session)
			delete(s.sessions, id)
		}
	}
	return removed
}
