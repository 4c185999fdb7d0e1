package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Session identity mirrors the browser client's storage split: the session
// id is durable across runs (localStorage), the tab id lives and dies with
// one process (sessionStorage).

const stateFileName = "session"

func statePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "sandterm", stateFileName), nil
}

// LoadSessionID returns the persisted session id, minting and saving one on
// first use.
func LoadSessionID() (string, error) {
	path, err := statePath()
	if err != nil {
		return "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := "session-" + uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	return id, nil
}

// NewTabID mints the per-process tab identity.
func NewTabID() string {
	return "tab-" + uuid.NewString()
}

// ClearState forgets the persisted session id. The next LoadSessionID
// starts a fresh session, and with it a fresh sandbox.
func ClearState() error {
	path, err := statePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}
