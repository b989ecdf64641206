package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the unlocked/locked flag of one process run. It is never
// persisted, so every restart begins Locked.
type Session struct {
	mu         sync.RWMutex
	id         string
	unlockedAt time.Time
	clock      func() time.Time
	newID      func() string
}

// NewSession returns a locked session. A nil clock uses time.Now.
func NewSession(clock func() time.Time) *Session {
	if clock == nil {
		clock = time.Now
	}
	return &Session{clock: clock, newID: uuid.NewString}
}

// Unlock switches to Unlocked under a fresh session id and returns it.
func (s *Session) Unlock() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = s.newID()
	s.unlockedAt = s.clock().UTC()
	return s.id
}

// Lock switches to Locked, invalidating the current session id.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	s.unlockedAt = time.Time{}
}

// IsUnlocked reads the flag.
func (s *Session) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != ""
}

// IsActive reports whether id names the current unlocked session.
func (s *Session) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != "" && s.id == id
}

// UnlockedAt returns when the current session was unlocked, or the zero time when locked.
func (s *Session) UnlockedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedAt
}
