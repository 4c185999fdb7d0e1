// Package session tracks browser sessions and the tabs attached to them.
// A session maps 1:1 to a sandbox; tabs come and go, and the sandbox lives
// while at least one tab holds the session open.
package session

import "time"

// Info is a read-only snapshot of one session's registry entry.
type Info struct {
	SessionID    string
	SandboxID    string
	ActiveTabs   int
	CreatedAt    time.Time
	LastActivity time.Time
}

// Store is the registry the HTTP and WebSocket handlers are built against.
// Implementations must make each method atomic: a Resolve concurrent with a
// Release observes either the state before or after, never a torn entry.
type Store interface {
	// Resolve returns the sandbox id for sessionID, creating the entry on
	// first sight. A non-empty tabID is registered as an active tab; the
	// same tab resolving twice counts once.
	Resolve(sessionID, tabID string) (sandboxID string, activeTabs int)

	// Release removes tabID from the session. remaining is the tab count
	// after removal; found is false when the session is unknown.
	Release(sessionID, tabID string) (remaining int, found bool)

	// Destroy removes the session entry entirely. A later Resolve starts a
	// fresh entry with a fresh tab set.
	Destroy(sessionID string)

	// Info returns a snapshot of the entry, or ok=false when absent.
	Info(sessionID string) (Info, bool)

	// Len reports the number of live sessions.
	Len() int
}

// SandboxID derives the sandbox identifier for a session. The mapping is
// deterministic so every tab of a session lands on the same sandbox without
// coordination.
func SandboxID(sessionID string) string {
	return sessionID
}
