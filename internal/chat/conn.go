// Package chat is the real-time core of the chat service: it tracks who is
// online, which connections sit in which rooms, and fans events out to them.
//
// The transport (see internal/server) owns the sockets. It hands each live
// socket to the Handler as a Conn and feeds inbound frames to Handle; the
// Handler mutates the Presence registry and the Rooms table and drives the
// Broadcaster. Those three types are the only places that hold connection
// state or deliver events.
package chat

import "github.com/google/uuid"

// ConnID identifies one live transport session. It is unique within the
// process and never reused.
type ConnID string

// NewConnID allocates a fresh connection identifier.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Conn is the transport-side endpoint the core delivers events to.
type Conn interface {
	ID() ConnID
	// Send queues an encoded event without blocking and reports whether the
	// transport accepted it.
	Send(payload []byte) bool
}
