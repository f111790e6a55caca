package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// DirectPrefix starts every direct-message room name.
const DirectPrefix = "dm_"

// DirectRoom returns the room shared by two users. Both participants compute
// the same name regardless of argument order.
func DirectRoom(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return DirectPrefix + a + "_" + b
}

// Rooms tracks which connections are subscribed to which rooms. A room
// exists here only while it has members.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[ConnID]struct{}
	joined  map[ConnID]map[string]struct{}
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[ConnID]struct{}),
		joined:  make(map[ConnID]map[string]struct{}),
	}
}

// Join adds id to room. Joining twice has no further effect.
func (r *Rooms) Join(room string, id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[room]
	if !ok {
		set = make(map[ConnID]struct{})
		r.members[room] = set
	}
	set[id] = struct{}{}

	rooms, ok := r.joined[id]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[id] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes id from room.
func (r *Rooms) Leave(room string, id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.remove(room, id)
}

// LeaveAll removes id from every room it joined and returns those rooms.
func (r *Rooms) LeaveAll(id ConnID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.joined[id])
	for _, room := range left {
		r.remove(room, id)
	}
	slices.Sort(left)
	return left
}

// remove must be called with mu held.
func (r *Rooms) remove(room string, id ConnID) {
	if set, ok := r.members[room]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, id)
		}
	}
}

// Members returns a snapshot of room's connections, empty for unknown rooms.
func (r *Rooms) Members(room string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.members[room])
}

// IsMember reports whether id is currently in room.
func (r *Rooms) IsMember(room string, id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[room][id]
	return ok
}

// RoomsOf lists the rooms id belongs to, sorted.
func (r *Rooms) RoomsOf(id ConnID) []string {
	r.mu.RLock()
	rooms := lo.Keys(r.joined[id])
	r.mu.RUnlock()

	slices.Sort(rooms)
	return rooms
}

// Count returns the number of rooms with at least one member.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}
