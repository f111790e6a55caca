package chat

import (
	"log/slog"
	"sync"
)

// Broadcaster delivers events to connections. Delivery is best-effort: the
// recipient set is a snapshot taken at call time, each recipient gets the
// same encoded frame, and a recipient that cannot take it is skipped
// without affecting the rest.
//
// A connection joining or leaving while a broadcast is in flight may or may
// not receive that event. Events broadcast one after another by the same
// caller reach each recipient in that order because Send queues in call
// order.
type Broadcaster struct {
	mu    sync.RWMutex
	conns map[ConnID]Conn
	rooms *Rooms
	log   *slog.Logger
}

// NewBroadcaster creates a Broadcaster resolving room recipients from rooms.
func NewBroadcaster(rooms *Rooms, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		conns: make(map[ConnID]Conn),
		rooms: rooms,
		log:   log,
	}
}

// Attach makes c reachable by broadcasts.
func (b *Broadcaster) Attach(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c.ID()] = c
}

// Detach stops deliveries to id.
func (b *Broadcaster) Detach(id ConnID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, id)
}

// Attached reports whether id can currently receive events.
func (b *Broadcaster) Attached(id ConnID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.conns[id]
	return ok
}

// Connections returns the number of attached connections.
func (b *Broadcaster) Connections() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// ToRoom delivers ev to every current member of room and returns how many
// recipients accepted it.
func (b *Broadcaster) ToRoom(room string, ev Event) int {
	return b.deliver(ev, b.resolve(b.rooms.Members(room), ""))
}

// ToRoomExcept delivers ev to room's members other than except.
func (b *Broadcaster) ToRoomExcept(room string, ev Event, except ConnID) int {
	return b.deliver(ev, b.resolve(b.rooms.Members(room), except))
}

// ToAll delivers ev to every attached connection.
func (b *Broadcaster) ToAll(ev Event) int {
	b.mu.RLock()
	targets := make([]Conn, 0, len(b.conns))
	for _, c := range b.conns {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	return b.deliver(ev, targets)
}

// resolve maps member ids to attached connections, dropping except and any
// id no longer attached.
func (b *Broadcaster) resolve(ids []ConnID, except ConnID) []Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if id == except {
			continue
		}
		if c, ok := b.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	return targets
}

func (b *Broadcaster) deliver(ev Event, targets []Conn) int {
	if len(targets) == 0 {
		return 0
	}

	payload, err := Encode(ev)
	if err != nil {
		b.log.Error("Failed to encode event", "event", ev.EventName(), "error", err)
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if c.Send(payload) {
			delivered++
			continue
		}
		b.log.Warn("Dropped event for connection", "event", ev.EventName(), "conn", c.ID())
	}

	b.log.Debug("Broadcast event", "event", ev.EventName(), "recipients", len(targets), "delivered", delivered)
	return delivered
}
