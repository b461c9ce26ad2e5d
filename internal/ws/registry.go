// Connection registry: the only state shared across connection goroutines.
package ws

import "sync"

// Registry maintains the set of live connections grouped by room. It is
// constructed once at startup and passed explicitly to the broadcaster and
// every session handler; there is no package-level instance.
//
// Invariants:
//   - a room key exists iff at least one live connection is registered under
//     it (empty rooms are removed immediately, never left as placeholders);
//   - a connection appears in at most one room, at most once within it;
//   - per-room collections preserve insertion (join) order, which fixes the
//     iteration order of a broadcast snapshot.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string][]Conn)}
}

// Register adds conn under roomID, creating the room entry if absent.
// Registering the same connection twice is a caller bug, not a recoverable
// condition; the registry does not guard against it.
func (r *Registry) Register(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = append(r.rooms[roomID], conn)
}

// Unregister removes conn from roomID's collection if present; if that
// empties the collection, the room entry is removed entirely. Removing an
// absent connection is a safe no-op — teardown paths race with
// broadcast-triggered pruning by design of the callers.
func (r *Registry) Unregister(roomID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.rooms, roomID)
		return
	}
	r.rooms[roomID] = conns
}

// Snapshot returns a point-in-time copy of roomID's connections, safe to
// iterate while registration and unregistration continue concurrently.
// It returns an empty slice when the room has no entry.
func (r *Registry) Snapshot(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.rooms[roomID]
	out := make([]Conn, len(conns))
	copy(out, conns)
	return out
}

// RoomCount returns the number of rooms with at least one live connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Len returns the number of live connections registered under roomID.
func (r *Registry) Len(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
