package sandbox

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
)

// Manager owns the live sandboxes, keyed by sandbox id. Get is idempotent:
// every tab of a session reaches the same sandbox.
type Manager struct {
	mu        sync.Mutex
	dataDir   string
	sandboxes map[string]*Local
}

// NewManager creates a manager rooting sandbox working directories under
// dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir:   dataDir,
		sandboxes: make(map[string]*Local),
	}
}

// Get returns the sandbox for id, creating it on first use.
func (m *Manager) Get(id string) (Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sandboxes[id]; ok {
		return s, nil
	}
	s, err := NewLocal(id, filepath.Join(m.dataDir, id))
	if err != nil {
		return nil, fmt.Errorf("sandbox %s: %w", id, err)
	}
	m.sandboxes[id] = s
	log.Printf("[sandbox] created %s", id)
	return s, nil
}

// Destroy tears down the sandbox for id. Destroying an unknown id is a no-op.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	s, ok := m.sandboxes[id]
	delete(m.sandboxes, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	log.Printf("[sandbox] destroying %s", id)
	return s.Destroy()
}

// Len reports the number of live sandboxes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sandboxes)
}

// DestroyAll tears down every sandbox, for shutdown.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	sandboxes := m.sandboxes
	m.sandboxes = make(map[string]*Local)
	m.mu.Unlock()

	for id, s := range sandboxes {
		if err := s.Destroy(); err != nil {
			log.Printf("[sandbox] destroy %s: %v", id, err)
		}
	}
}
