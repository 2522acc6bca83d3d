// Package runtime owns the live-connection state: who is reachable on
// which handles, and whether they are in a call. It coordinates without
// containing domain rules.
package runtime

import (
	"chat-core/contract"
	"sync"
)

// session is the per-identity record. It exists if and only if at least
// one handle is registered; emptiness of the handle set is the deletion
// trigger.
type session struct {
	handles     map[string]contract.EventSink
	displayName string
	inCall      bool
	callID      string
}

// Registry is the shared presence map. All mutations run under one
// mutex so two connect/disconnect events for the same identity can
// never interleave into a corrupted handle set.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Add registers one handle for an identity, creating the session on the
// first connection. Idempotent per handle: re-adding an existing handle
// replaces its sink and nothing else.
func (r *Registry) Add(userID, connID, displayName string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		s = &session{handles: make(map[string]contract.EventSink), displayName: displayName}
		r.sessions[userID] = s
	}
	s.handles[connID] = sink
}

// Remove drops one handle. When the last handle goes, the whole session
// is deleted (call state included) and the caller is told the identity
// is now fully offline so it can fire the offline broadcast exactly once.
func (r *Registry) Remove(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return false
	}

	delete(s.handles, connID)
	if len(s.handles) == 0 {
		delete(r.sessions, userID)
		return true
	}
	return false
}

// ConnectionsOf returns every live sink for an identity, empty when
// offline. The slice is a snapshot; it stays valid after the lock is
// released.
func (r *Registry) ConnectionsOf(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(s.handles))
	for _, sink := range s.handles {
		sinks = append(sinks, sink)
	}
	return sinks
}

// AllSinksExcept snapshots every live sink across all identities,
// skipping one handle. Used for the online/offline broadcasts, which go
// to everyone but the connection that triggered them.
func (r *Registry) AllSinksExcept(connID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for _, s := range r.sessions {
		for id, sink := range s.handles {
			if id == connID {
				continue
			}
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// DisplayName returns the cached name for an identity, falling back to
// the identity itself when the user is offline.
func (r *Registry) DisplayName(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[userID]; ok && s.displayName != "" {
		return s.displayName
	}
	return userID
}

// TryStartCall atomically tests and claims the in-call flag for an
// online identity. The busy test and the Ringing write share one lock
// acquisition: two concurrent callers at an idle callee can never both
// pass the check, so at most one callId ever rings a given identity.
// Returns false when the identity is offline or already holds a call.
func (r *Registry) TryStartCall(userID, callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || s.inCall {
		return false
	}
	s.inCall = true
	s.callID = callID
	return true
}

// SetCallState flips the in-call flag for an online identity. The call
// id is kept only while inCall holds. A no-op for offline identities:
// there is no session to hang state on.
func (r *Registry) SetCallState(userID string, inCall bool, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	s.inCall = inCall
	if inCall {
		s.callID = callID
	} else {
		s.callID = ""
	}
}

// CallState reads the in-call flag and the associated call id.
// Offline identities report idle.
func (r *Registry) CallState(userID string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return false, ""
	}
	return s.inCall, s.callID
}

// UserStat is one row of the presence snapshot, consumed by the debug
// endpoint and the telemetry worker.
type UserStat struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Connections int    `json:"connections"`
	InCall      bool   `json:"inCall"`
	CallID      string `json:"callId,omitempty"`
}

// Snapshot returns a consistent copy of the whole presence table.
func (r *Registry) Snapshot() []UserStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]UserStat, 0, len(r.sessions))
	for userID, s := range r.sessions {
		stats = append(stats, UserStat{
			UserID:      userID,
			DisplayName: s.displayName,
			Connections: len(s.handles),
			InCall:      s.inCall,
			CallID:      s.callID,
		})
	}
	return stats
}

// OnlineCount reports how many identities currently hold at least one
// connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
