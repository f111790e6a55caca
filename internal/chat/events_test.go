package chat

import (
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTypedEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  any
		want  Inbound
	}{
		{
			name:  "register",
			event: EventRegister,
			data:  map[string]any{"username": "  alice "},
			want:  RegisterEvent{Username: "alice"},
		},
		{
			name:  "register via legacy name",
			event: "join_app",
			data:  map[string]any{"username": "alice"},
			want:  RegisterEvent{Username: "alice"},
		},
		{
			name:  "join",
			event: EventJoin,
			data:  map[string]any{"room": "general", "username": "alice"},
			want:  JoinEvent{Room: "general", Username: "alice"},
		},
		{
			name:  "leave",
			event: EventLeave,
			data:  map[string]any{"room": "general", "username": "alice"},
			want:  LeaveEvent{Room: "general", Username: "alice"},
		},
		{
			name:  "send trims text",
			event: EventSend,
			data:  map[string]any{"room": "general", "text": "  hi \n", "sender": "alice"},
			want:  SendEvent{Room: "general", Text: "hi", Sender: "alice"},
		},
		{
			name:  "send via legacy name",
			event: "send_message",
			data:  map[string]any{"room": "general", "text": "hi", "sender": "alice"},
			want:  SendEvent{Room: "general", Text: "hi", Sender: "alice"},
		},
		{
			name:  "typing defaults to false",
			event: EventTyping,
			data:  map[string]any{"room": "general", "sender": "alice"},
			want:  TypingEvent{Room: "general", Sender: "alice", Typing: false},
		},
		{
			name:  "typing accepts truthy values",
			event: EventTyping,
			data:  map[string]any{"room": "general", "sender": "alice", "typing": 1},
			want:  TypingEvent{Room: "general", Sender: "alice", Typing: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(frame(t, tt.event, tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  any
	}{
		{"empty username", EventRegister, map[string]any{"username": "   "}},
		{"missing username", EventRegister, map[string]any{}},
		{"join without room", EventJoin, map[string]any{"username": "alice"}},
		{"leave without username", EventLeave, map[string]any{"room": "general"}},
		{"send whitespace text", EventSend, map[string]any{"room": "general", "text": " \t ", "sender": "alice"}},
		{"send without sender", EventSend, map[string]any{"room": "general", "text": "hi"}},
		{"typing without room", EventTyping, map[string]any{"sender": "alice", "typing": true}},
		{"wrong field type", EventJoin, map[string]any{"room": 42, "username": "alice"}},
		{"null data", EventRegister, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(frame(t, tt.event, tt.data))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodeMalformedAndUnknown(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Decode(frame(t, "shout", map[string]any{"text": "hi"}))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEncodeEnvelope(t *testing.T) {
	raw, err := Encode(Typing{Sender: "alice", Typing: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"typing","data":{"sender":"alice","typing":true}}`, string(raw))

	raw, err = Encode(UserList{Users: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user_list","data":{"users":[]}}`, string(raw))
}

func TestNewMessageFromFormatsUTC(t *testing.T) {
	at := time.Date(2024, 3, 9, 17, 4, 5, 123000000, time.FixedZone("CET", 3600))
	msg := NewMessageFrom(store.Message{ID: 7, Room: "general", Sender: "alice", Text: "hi", Timestamp: at})

	assert.Equal(t, NewMessage{
		ID:        7,
		Room:      "general",
		Sender:    "alice",
		Text:      "hi",
		Timestamp: "2024-03-09T16:04:05.123Z",
	}, msg)
}
