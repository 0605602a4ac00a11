package signal

import (
	"sort"
	"sync"
)

// Registry tracks which connection sits in which room.
// A connection is in at most one room and a room exists only while it has
// members. All operations are serialized by a single mutex.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]map[string]struct{}
	members map[string]string // conn id -> room
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]struct{}),
		members: make(map[string]string),
	}
}

// Join moves connID into room, leaving whatever room it was in before
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[connID]; ok {
		if current == room {
			return
		}
		r.removeLocked(connID, current)
	}

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[room] = set
	}
	set[connID] = struct{}{}
	r.members[connID] = room
}

// Leave removes connID from room. Leaving a room the connection is not in
// does nothing.
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[connID]; ok && current == room {
		r.removeLocked(connID, room)
	}
}

// OnDisconnect drops connID from its room, if any, and returns that room
func (r *Registry) OnDisconnect(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[connID]
	if !ok {
		return ""
	}
	r.removeLocked(connID, room)
	return room
}

// removeLocked deletes a membership and cleans up the room if it emptied
func (r *Registry) removeLocked(connID, room string) {
	delete(r.members, connID)
	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a sorted snapshot of everyone in room
func (r *Registry) Members(room string) []string {
	return r.MembersExcept(room, "")
}

// MembersExcept returns a sorted snapshot of room without excludeID.
// Unknown rooms yield an empty slice.
func (r *Registry) MembersExcept(room, excludeID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.rooms[room]
	ids := make([]string, 0, len(set))
	for id := range set {
		if id != excludeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RoomOf reports the room connID is in
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.members[connID]
	return room, ok
}

// Snapshot returns member counts per room
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.rooms))
	for room, set := range r.rooms {
		out[room] = len(set)
	}
	return out
}

// Len returns the number of live rooms
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
