package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// TestWebSocketChatFlow drives two clients through register, join, send,
// typing and disconnect over real sockets.
func TestWebSocketChatFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	alice := env.connectAs(t, "alice")
	bob := env.dial(t)
	emit(t, bob, chat.EventRegister, map[string]any{"username": "bob"})

	var list chat.UserList
	expectEvent(t, alice, chat.EventUserList, &list)
	assert.Equal(t, []string{"alice", "bob"}, list.Users)
	expectEvent(t, bob, chat.EventUserList, &list)
	assert.Equal(t, []string{"alice", "bob"}, list.Users)

	emit(t, alice, chat.EventJoin, map[string]any{"room": "general", "username": "alice"})
	var notice chat.SystemMessage
	expectEvent(t, alice, chat.EventSystemMessage, &notice)
	assert.Equal(t, "alice joined the room.", notice.Msg)

	emit(t, bob, chat.EventJoin, map[string]any{"room": "general", "username": "bob"})
	expectEvent(t, alice, chat.EventSystemMessage, &notice)
	assert.Equal(t, "bob joined the room.", notice.Msg)
	expectEvent(t, bob, chat.EventSystemMessage, &notice)
	assert.Equal(t, "bob joined the room.", notice.Msg)

	emit(t, alice, chat.EventSend, map[string]any{"room": "general", "text": " hello ", "sender": "alice"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg chat.NewMessage
		expectEvent(t, conn, chat.EventNewMessage, &msg)
		assert.Equal(t, "general", msg.Room)
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "hello", msg.Text)
		assert.Positive(t, msg.ID)
		_, err := time.Parse(chat.TimestampLayout, msg.Timestamp)
		assert.NoError(t, err)
	}

	emit(t, bob, chat.EventTyping, map[string]any{"room": "general", "sender": "bob", "typing": true})
	var typing chat.Typing
	expectEvent(t, alice, chat.EventTyping, &typing)
	assert.Equal(t, chat.Typing{Sender: "bob", Typing: true}, typing)

	resp, err := http.Get(env.http.URL + "/api/messages/general")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var history historyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello", history.Messages[0].Text)

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	expectEvent(t, alice, chat.EventUserList, &list)
	assert.Equal(t, []string{"alice"}, list.Users)

	assert.Eventually(t, func() bool {
		return len(env.srv.Sessions().Rooms().Members("general")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketDirectMessageRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connectAs(t, "alice")
	bob := env.connectAs(t, "bob")
	room := chat.DirectRoom("alice", "bob")

	emit(t, alice, chat.EventJoin, map[string]any{"room": room, "username": "alice"})
	expectEvent(t, alice, chat.EventSystemMessage, nil)
	emit(t, bob, chat.EventJoin, map[string]any{"room": room, "username": "bob"})
	expectEvent(t, bob, chat.EventSystemMessage, nil)

	emit(t, bob, chat.EventSend, map[string]any{"room": room, "text": "psst", "sender": "bob"})

	var msg chat.NewMessage
	expectEvent(t, alice, chat.EventNewMessage, &msg)
	assert.Equal(t, "dm_alice_bob", msg.Room)
	assert.Equal(t, "psst", msg.Text)
}

func TestWebSocketOriginValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, origin := range []string{"", "http://evil.example", "not-a-url"} {
		conn, resp, err := env.dialWithOrigin(origin)
		if conn != nil {
			_ = conn.Close()
		}
		require.Error(t, err, "origin %q", origin)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Equal(t, 0, env.srv.Hub().ClientCount())
}

func TestWebSocketMessageSizeLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxMessageSize = 256
	})
	alice := env.connectAs(t, "alice")

	emit(t, alice, chat.EventSend, map[string]any{
		"room":   "general",
		"text":   strings.Repeat("x", 1024),
		"sender": "alice",
	})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			break
		}
	}

	assert.Eventually(t, func() bool {
		return len(env.srv.Sessions().Presence().Usernames()) == 0 && env.srv.Hub().ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})
	alice := env.connectAs(t, "alice")

	emit(t, alice, chat.EventJoin, map[string]any{"room": "general", "username": "alice"})
	expectEvent(t, alice, chat.EventSystemMessage, nil)

	emit(t, alice, chat.EventSend, map[string]any{"room": "general", "text": "dropped", "sender": "alice"})
	expectNoEvent(t, alice, chat.EventNewMessage, 300*time.Millisecond)
}

func TestWebSocketInvalidFramesKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.connectAs(t, "alice")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{broken")))
	emit(t, alice, "dance", map[string]any{})
	emit(t, alice, chat.EventJoin, map[string]any{"room": "", "username": "alice"})

	emit(t, alice, chat.EventJoin, map[string]any{"room": "general", "username": "alice"})
	var notice chat.SystemMessage
	expectEvent(t, alice, chat.EventSystemMessage, &notice)
	assert.Equal(t, "alice joined the room.", notice.Msg)
}

func TestWebSocketConcurrentClients(t *testing.T) {
	env := newTestEnv(t, nil)
	const clients = 8

	var wg sync.WaitGroup
	conns := make([]*websocket.Conn, clients)
	for i := range clients {
		conns[i] = env.dial(t)
	}
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			_ = conn.WriteJSON(map[string]any{"event": chat.EventRegister, "data": map[string]any{"username": name}})
			_ = conn.WriteJSON(map[string]any{"event": chat.EventJoin, "data": map[string]any{"room": "general", "username": name}})
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return len(env.srv.Sessions().Presence().Usernames()) == clients &&
			len(env.srv.Sessions().Rooms().Members("general")) == clients
	}, 3*time.Second, 10*time.Millisecond)

	for _, conn := range conns {
		_ = conn.Close()
	}
	assert.Eventually(t, func() bool {
		return env.srv.Hub().ClientCount() == 0 && env.srv.Sessions().Rooms().Count() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHealthEndpointOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "roomchat server is running!", string(body))
}
