package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Conn that keeps every frame it is sent.
type recorder struct {
	id     ConnID
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: ConnID(id)}
}

func (r *recorder) ID() ConnID { return r.id }

func (r *recorder) Send(payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.frames = append(r.frames, payload)
	return true
}

func (r *recorder) envelopes(t *testing.T) []Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Envelope, 0, len(r.frames))
	for _, f := range r.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

// names lists the event names received, in order.
func (r *recorder) names(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range r.envelopes(t) {
		out = append(out, env.Event)
	}
	return out
}

// last decodes the most recent event called name into dst.
func (r *recorder) last(t *testing.T, name string, dst any) bool {
	t.Helper()
	envs := r.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == name {
			require.NoError(t, json.Unmarshal(envs[i].Data, dst))
			return true
		}
	}
	return false
}

func (r *recorder) count(t *testing.T, name string) int {
	t.Helper()
	n := 0
	for _, env := range r.envelopes(t) {
		if env.Event == name {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// fakeStore wraps a MemoryStore and can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	inner   *store.MemoryStore
	fail    error
	appends int
}

func newFakeStore() *fakeStore {
	return &fakeStore{inner: store.NewMemoryStore()}
}

func (f *fakeStore) Append(ctx context.Context, room, sender, text string) (store.Message, error) {
	f.mu.Lock()
	f.appends++
	fail := f.fail
	f.mu.Unlock()

	if fail != nil {
		return store.Message{}, fail
	}
	return f.inner.Append(ctx, room, sender, text)
}

func (f *fakeStore) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appends
}

var errDiskGone = errors.New("disk gone")

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	return out
}

func parseTimestamp(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(TimestampLayout, s)
	require.NoError(t, err)
	return ts
}
