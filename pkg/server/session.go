package server

import (
	"log/slog"
	"sync"
)

// SessionRegistry maps each user to their single live connection. It is the
// only state shared across otherwise-independent connection flows: single
// lookups and mutations are atomic, but a connection found earlier in a
// handler may no longer be live by the time it is used.
//
// The registry is owned by the Server (constructed at startup, torn down at
// shutdown) and injected where needed; it is never a package global.
type SessionRegistry struct {
	mu    sync.RWMutex
	conns map[string]Conn // userID -> live connection
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		conns: make(map[string]Conn),
	}
}

// Register stores the connection as the user's single live session. Any
// previously registered connection is told it has been superseded and then
// forcibly closed.
func (r *SessionRegistry) Register(userID string, conn Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		slog.Info("evicting previous session", "user", userID)
		prev.Send(Event{Type: EventForcedLogout})
		prev.Close()
	}
}

// Lookup returns the user's live connection, or nil.
func (r *SessionRegistry) Lookup(userID string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

// Remove drops the registration if it still belongs to the given
// connection. Idempotent: safe to call from both the "disconnecting" and
// "disconnected" lifecycle signals. A stale call after the user reconnected
// leaves the newer session alone.
func (r *SessionRegistry) Remove(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && (conn == nil || current == conn) {
		delete(r.conns, userID)
	}
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close force-closes every live connection. Called once at shutdown.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
