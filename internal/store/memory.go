package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore keeps messages in process memory. It backs tests and
// STORE_DRIVER=memory deployments where history may be lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	rooms  map[string][]Message
	nextID int64
	clock  *clock
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string][]Message),
		clock: newClock(),
	}
}

// Append stores the message and returns it with its assigned ID and timestamp.
func (s *MemoryStore) Append(ctx context.Context, room, sender, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, persistenceError("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := Message{
		ID:        s.nextID,
		Room:      room,
		Sender:    sender,
		Text:      text,
		Timestamp: s.clock.Now(),
	}
	s.rooms[room] = append(s.rooms[room], msg)
	return msg, nil
}

// Page returns up to limit messages older than before, oldest first.
func (s *MemoryStore) Page(ctx context.Context, room string, limit int, before *time.Time) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("page", err)
	}
	if limit <= 0 {
		return []Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.rooms[room]
	end := len(history)
	if before != nil {
		// history is ordered by timestamp, so the cut is a binary search.
		end, _ = slices.BinarySearchFunc(history, *before, func(m Message, t time.Time) int {
			return m.Timestamp.Compare(t)
		})
	}
	start := max(end-limit, 0)

	page := make([]Message, end-start)
	copy(page, history[start:end])
	return page, nil
}

// Rooms lists room names in lexicographic order.
func (s *MemoryStore) Rooms(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("rooms", err)
	}
	if limit <= 0 {
		limit = DefaultRoomsLimit
	}

	s.mu.RLock()
	names := lo.Keys(s.rooms)
	s.mu.RUnlock()

	slices.Sort(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
