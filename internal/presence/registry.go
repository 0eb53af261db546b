// Package presence tracks which users are connected and which rooms they are
// in. All state is process-local and guarded by mutexes; it is shared between
// the event-handling path, the disconnect path and the timer monitor.
package presence

import "sync"

// Registry maps connection ids to user identities. A user may hold several
// simultaneous connections (multiple tabs); the forward and reverse maps are
// kept consistent under one lock.
type Registry struct {
	mu          sync.Mutex
	connsByUser map[string]map[string]struct{} // userID -> set of connIDs
	userByConn  map[string]string              // connID -> userID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		connsByUser: make(map[string]map[string]struct{}),
		userByConn:  make(map[string]string),
	}
}

// Register binds a connection to a user. Idempotent.
func (r *Registry) Register(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.userByConn[connID]; ok {
		if prev == userID {
			return
		}
		// connection rebound to another identity; drop the old binding
		r.removeLocked(connID, prev)
	}

	r.userByConn[connID] = userID
	if r.connsByUser[userID] == nil {
		r.connsByUser[userID] = make(map[string]struct{})
	}
	r.connsByUser[userID][connID] = struct{}{}
}

// Unregister removes a connection. It returns the affected user id and
// whether this was the user's last connection, so callers can decide when to
// run last-connection cleanup. Unknown connections are a no-op.
func (r *Registry) Unregister(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConn[connID]
	if !ok {
		return "", false
	}
	r.removeLocked(connID, userID)
	_, stillConnected := r.connsByUser[userID]
	return userID, !stillConnected
}

// ConnectionsFor returns a snapshot of a user's open connection ids.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.connsByUser[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// UserFor resolves the user bound to a connection.
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.userByConn[connID]
	return userID, ok
}

func (r *Registry) removeLocked(connID, userID string) {
	delete(r.userByConn, connID)
	if set := r.connsByUser[userID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.connsByUser, userID)
		}
	}
}
