package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
)

const testOrigin = "http://localhost:8080"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	wsURL string
	store store.Store
}

// newTestEnv starts a full server on a memory store. customize may adjust
// the configuration before the server is built.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := *NewConfig()
	cfg.RateLimit.Burst = 100
	if customize != nil {
		customize(&cfg)
	}

	st := store.NewMemoryStore()
	srv := New(cfg, st, discardLogger())
	srv.StartHub()
	ts := httptest.NewServer(srv.SetupRoutes())

	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
		_ = st.Close()
	})

	return &testEnv{
		srv:   srv,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		store: st,
	}
}

func (e *testEnv) dialWithOrigin(origin string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(e.wsURL, header)
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := e.dialWithOrigin(testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connectAs dials, registers username and waits for the server to confirm
// with a user list, so the connection is attached when it returns.
func (e *testEnv) connectAs(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t)
	emit(t, conn, chat.EventRegister, map[string]any{"username": username})
	expectEvent(t, conn, chat.EventUserList, nil)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// expectEvent reads frames until one named name arrives, decoding its data
// into dst when dst is not nil.
func expectEvent(t *testing.T, conn *websocket.Conn, name string, dst any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env chat.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", name)
		if env.Event != name {
			continue
		}
		if dst != nil {
			require.NoError(t, json.Unmarshal(env.Data, dst))
		}
		return
	}
}

// expectNoEvent fails if an event named name arrives within wait. The
// connection cannot be read from afterwards.
func expectNoEvent(t *testing.T, conn *websocket.Conn, name string, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		var env chat.Envelope
		err := conn.ReadJSON(&env)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			t.Fatalf("unexpected read error: %v", err)
		}
		if env.Event == name {
			t.Fatalf("unexpected %s event: %s", name, env.Data)
		}
	}
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, value) })
		}
	}
}

var errBroken = errors.New("store unavailable")

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Append(context.Context, string, string, string) (store.Message, error) {
	return store.Message{}, errBroken
}

func (brokenStore) Page(context.Context, string, int, *time.Time) ([]store.Message, error) {
	return nil, errBroken
}

func (brokenStore) Rooms(context.Context, int) ([]string, error) {
	return nil, errBroken
}

func (brokenStore) Close() error { return nil }
