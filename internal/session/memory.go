package session

import (
	"sync"
	"time"
)

type entry struct {
	sandboxID    string
	tabs         map[string]struct{}
	createdAt    time.Time
	lastActivity time.Time
}

// MemoryStore is the in-process Store used by the server. Entries have no
// TTL: a session dies when its last tab releases it, not by the clock.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewMemoryStore returns an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Resolve(sessionID, tabID string) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{
			sandboxID: SandboxID(sessionID),
			tabs:      make(map[string]struct{}),
			createdAt: s.now(),
		}
		s.sessions[sessionID] = e
	}
	if tabID != "" {
		e.tabs[tabID] = struct{}{}
	}
	e.lastActivity = s.now()
	return e.sandboxID, len(e.tabs)
}

func (s *MemoryStore) Release(sessionID, tabID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return 0, false
	}
	delete(e.tabs, tabID)
	e.lastActivity = s.now()
	return len(e.tabs), true
}

func (s *MemoryStore) Destroy(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *MemoryStore) Info(sessionID string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return Info{
		SessionID:    sessionID,
		SandboxID:    e.sandboxID,
		ActiveTabs:   len(e.tabs),
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActivity,
	}, true
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
