package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/go-playground/validator/v10"
)

// Event names on the wire. "typing" travels in both directions.
const (
	EventRegister      = "register"
	EventJoin          = "join"
	EventLeave         = "leave"
	EventSend          = "send"
	EventTyping        = "typing"
	EventUserList      = "user_list"
	EventSystemMessage = "system_message"
	EventNewMessage    = "new_message"
)

// Older clients still emit these names.
var eventAliases = map[string]string{
	"join_app":     EventRegister,
	"send_message": EventSend,
}

var (
	// ErrValidation wraps every inbound frame that is malformed or misses a
	// required field. Such frames are dropped without reply.
	ErrValidation = errors.New("chat: invalid event")
	// ErrUnknownEvent is returned for event names outside the protocol.
	ErrUnknownEvent = errors.New("chat: unknown event")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is the closed set of events a client may send. Values returned
// by Decode are trimmed and validated.
type Inbound interface {
	inbound()
}

// RegisterEvent announces the username behind a connection.
type RegisterEvent struct {
	Username string `json:"username" validate:"required,max=64"`
}

// JoinEvent subscribes the connection to a room.
type JoinEvent struct {
	Room     string `json:"room" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=64"`
}

// LeaveEvent unsubscribes the connection from a room.
type LeaveEvent struct {
	Room     string `json:"room" validate:"required,max=128"`
	Username string `json:"username" validate:"required,max=64"`
}

// SendEvent posts a message to a room.
type SendEvent struct {
	Room   string `json:"room" validate:"required,max=128"`
	Text   string `json:"text" validate:"required"`
	Sender string `json:"sender" validate:"required,max=64"`
}

// TypingEvent toggles the sender's typing indicator in a room.
type TypingEvent struct {
	Room   string `json:"room" validate:"required,max=128"`
	Sender string `json:"sender" validate:"required,max=64"`
	Typing truthy `json:"typing"`
}

func (RegisterEvent) inbound() {}
func (JoinEvent) inbound()     {}
func (LeaveEvent) inbound()    {}
func (SendEvent) inbound()     {}
func (TypingEvent) inbound()   {}

func (e *RegisterEvent) normalize() {
	e.Username = strings.TrimSpace(e.Username)
}

func (e *JoinEvent) normalize() {
	e.Room = strings.TrimSpace(e.Room)
	e.Username = strings.TrimSpace(e.Username)
}

func (e *LeaveEvent) normalize() {
	e.Room = strings.TrimSpace(e.Room)
	e.Username = strings.TrimSpace(e.Username)
}

func (e *SendEvent) normalize() {
	e.Room = strings.TrimSpace(e.Room)
	e.Text = strings.TrimSpace(e.Text)
	e.Sender = strings.TrimSpace(e.Sender)
}

func (e *TypingEvent) normalize() {
	e.Room = strings.TrimSpace(e.Room)
	e.Sender = strings.TrimSpace(e.Sender)
}

// truthy accepts any JSON value for a flag: false, null, 0 and "" are false,
// everything else is true.
type truthy bool

func (t *truthy) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = truthy(x)
	case float64:
		*t = x != 0
	case string:
		*t = x != ""
	case []any:
		*t = len(x) > 0
	case map[string]any:
		*t = len(x) > 0
	}
	return nil
}

// Decode parses one inbound frame into its typed event.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	name := env.Event
	if canonical, ok := eventAliases[name]; ok {
		name = canonical
	}

	switch name {
	case EventRegister:
		return decodeEvent[RegisterEvent](env.Data)
	case EventJoin:
		return decodeEvent[JoinEvent](env.Data)
	case EventLeave:
		return decodeEvent[LeaveEvent](env.Data)
	case EventSend:
		return decodeEvent[SendEvent](env.Data)
	case EventTyping:
		return decodeEvent[TypingEvent](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeEvent[T Inbound, P interface {
	*T
	normalize()
}](data json.RawMessage) (Inbound, error) {
	var ev T
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	P(&ev).normalize()
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return ev, nil
}

// Event is an outbound event the Broadcaster can deliver.
type Event interface {
	EventName() string
}

// UserList carries every online username, sorted.
type UserList struct {
	Users []string `json:"users"`
}

// SystemMessage is a server-authored notice shown in a room.
type SystemMessage struct {
	Msg string `json:"msg"`
}

// NewMessage is a persisted chat message as clients render it.
type NewMessage struct {
	ID        int64  `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Typing reports a member's typing indicator.
type Typing struct {
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

func (UserList) EventName() string      { return EventUserList }
func (SystemMessage) EventName() string { return EventSystemMessage }
func (NewMessage) EventName() string    { return EventNewMessage }
func (Typing) EventName() string        { return EventTyping }

// TimestampLayout formats message timestamps (ISO-8601, UTC).
const TimestampLayout = time.RFC3339Nano

// NewMessageFrom converts a stored message into its outbound record.
func NewMessageFrom(m store.Message) NewMessage {
	return NewMessage{
		ID:        m.ID,
		Room:      m.Room,
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC().Format(TimestampLayout),
	}
}

// Encode renders ev as a wire envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}
