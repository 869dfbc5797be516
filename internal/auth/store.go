package auth

import (
	"sync"
	"time"
)

// Store keeps the current session in memory and guards access with a
// RWMutex so UI code and background workers can consult it concurrently.
type Store struct {
	mu      sync.RWMutex
	session Session
	set     bool
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current session.
func (s *Store) Set(session Session) {
	s.mu.Lock()
	s.session = session
	s.set = true
	s.mu.Unlock()
}

// Current returns the stored session and whether one is set.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.set
}

// Valid reports whether a session is set and not expired at the given time.
func (s *Store) Valid(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return false
	}
	return s.session.ExpiresAt.IsZero() || s.session.ExpiresAt.After(now)
}

// Clear removes the stored session.
func (s *Store) Clear() {
	s.mu.Lock()
	s.session = Session{}
	s.set = false
	s.mu.Unlock()
}
