package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/roomchat/internal/store"
)

// MessageStore is the persistence the session handler needs.
type MessageStore interface {
	Append(ctx context.Context, room, sender, text string) (store.Message, error)
}

// State is the lifecycle position of one connection.
type State int

// Connection states. A connection may join and leave rooms in either of the
// first two states; Disconnected is terminal.
const (
	StateDisconnected State = iota
	StateConnected
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected-unregistered"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

// Handler runs the per-connection state machine. It is safe for concurrent
// use by every connection's read loop; it serializes only on the presence
// and membership tables, never across a store call.
type Handler struct {
	presence    *Presence
	rooms       *Rooms
	broadcaster *Broadcaster
	store       MessageStore
	log         *slog.Logger
}

// NewHandler wires a Handler around st.
func NewHandler(st MessageStore, log *slog.Logger) *Handler {
	rooms := NewRooms()
	return &Handler{
		presence:    NewPresence(),
		rooms:       rooms,
		broadcaster: NewBroadcaster(rooms, log),
		store:       st,
		log:         log,
	}
}

// Presence exposes the registry for read-only queries.
func (h *Handler) Presence() *Presence { return h.presence }

// Rooms exposes the membership table for read-only queries.
func (h *Handler) Rooms() *Rooms { return h.rooms }

// Broadcaster exposes the broadcaster, e.g. for server-wide notices.
func (h *Handler) Broadcaster() *Broadcaster { return h.broadcaster }

// State reports where id is in its lifecycle.
func (h *Handler) State(id ConnID) State {
	switch {
	case !h.broadcaster.Attached(id):
		return StateDisconnected
	case h.isRegistered(id):
		return StateRegistered
	default:
		return StateConnected
	}
}

func (h *Handler) isRegistered(id ConnID) bool {
	_, ok := h.presence.Lookup(id)
	return ok
}

// Connect starts a session for c. Until it registers, c only receives
// process-wide events.
func (h *Handler) Connect(c Conn) {
	h.broadcaster.Attach(c)
	h.log.Info("Connection opened", "conn", c.ID())
}

// Disconnect ends id's session: its presence entry and every room
// membership are released, then the new user list goes out. It always runs
// to completion and is safe to call more than once.
func (h *Handler) Disconnect(id ConnID) {
	username, registered := h.presence.Unregister(id)
	left := h.rooms.LeaveAll(id)
	h.broadcaster.Detach(id)
	h.broadcastUserList()

	if registered {
		h.log.Info("Connection closed", "conn", id, "username", username, "rooms", left)
	} else {
		h.log.Info("Connection closed before registering", "conn", id, "rooms", left)
	}
}

// Handle decodes one inbound frame from id and applies it. Malformed frames
// are dropped and logged at debug level; the protocol has no error reply.
func (h *Handler) Handle(ctx context.Context, id ConnID, raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		h.log.Debug("Dropped inbound event", "conn", id, "error", err)
		return
	}
	h.Dispatch(ctx, id, ev)
}

// Dispatch applies an already validated event.
func (h *Handler) Dispatch(ctx context.Context, id ConnID, ev Inbound) {
	switch e := ev.(type) {
	case RegisterEvent:
		h.Register(id, e)
	case JoinEvent:
		h.Join(id, e)
	case LeaveEvent:
		h.Leave(id, e)
	case SendEvent:
		// Send logs its own failures; nothing reaches the client.
		_ = h.Send(ctx, id, e)
	case TypingEvent:
		h.Typing(id, e)
	}
}

// Register binds id to a username and republishes the user list.
func (h *Handler) Register(id ConnID, ev RegisterEvent) {
	h.presence.Register(id, ev.Username)
	h.broadcastUserList()
	h.log.Debug("Registered username", "conn", id, "username", ev.Username)
}

// Join subscribes id to a room and announces it to the room's members,
// including the newcomer.
func (h *Handler) Join(id ConnID, ev JoinEvent) {
	h.rooms.Join(ev.Room, id)
	h.broadcaster.ToRoom(ev.Room, SystemMessage{Msg: fmt.Sprintf("%s joined the room.", ev.Username)})
	h.broadcastUserList()
}

// Leave unsubscribes id from a room and tells the remaining members.
func (h *Handler) Leave(id ConnID, ev LeaveEvent) {
	h.rooms.Leave(ev.Room, id)
	h.broadcaster.ToRoom(ev.Room, SystemMessage{Msg: fmt.Sprintf("%s left the room.", ev.Username)})
	h.broadcastUserList()
}

// Send persists the message and, only once it is stored, broadcasts it to
// the room. A store failure is logged and the message is dropped.
func (h *Handler) Send(ctx context.Context, id ConnID, ev SendEvent) error {
	msg, err := h.store.Append(ctx, ev.Room, ev.Sender, ev.Text)
	if err != nil {
		if !errors.Is(err, store.ErrPersistence) {
			err = fmt.Errorf("%w: %w", store.ErrPersistence, err)
		}
		h.log.Error("Failed saving message", "conn", id, "room", ev.Room, "sender", ev.Sender, "error", err)
		return err
	}

	h.broadcaster.ToRoom(ev.Room, NewMessageFrom(msg))
	return nil
}

// Typing relays the indicator to every room member except the typist.
func (h *Handler) Typing(id ConnID, ev TypingEvent) {
	h.broadcaster.ToRoomExcept(ev.Room, Typing{Sender: ev.Sender, Typing: bool(ev.Typing)}, id)
}

func (h *Handler) broadcastUserList() {
	h.broadcaster.ToAll(UserList{Users: h.presence.Usernames()})
}
