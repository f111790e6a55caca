// Package store persists chat messages and serves time-bounded pages of a
// room's history. Three backends share the Store contract: an in-process
// memory store, SQLite through gorm, and an embedded badger database.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPersistence marks every failure of the underlying storage. Callers test
// for it with errors.Is; backends wrap the driver error with it.
var ErrPersistence = errors.New("store: persistence failure")

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// DefaultRoomsLimit caps Rooms when callers pass a non-positive limit.
const DefaultRoomsLimit = 50

// Message is an immutable chat message as persisted by a Store.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the narrow persistence contract used by the session handler and
// the history API.
type Store interface {
	// Append persists a message, assigning its ID and UTC timestamp.
	Append(ctx context.Context, room, sender, text string) (Message, error)
	// Page returns at most limit messages of room, oldest first. When before
	// is set only messages strictly older than it are considered; otherwise
	// the newest limit messages are returned.
	Page(ctx context.Context, room string, limit int, before *time.Time) ([]Message, error)
	// Rooms lists distinct room names that have at least one message.
	Rooms(ctx context.Context, limit int) ([]string, error)
	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Driver     string
	SQLitePath string
	BadgerPath string
}

// Open builds the backend named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return OpenSQLite(opts.SQLitePath)
	case DriverBadger:
		return OpenBadger(opts.BadgerPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// clock hands out UTC timestamps that never go backwards within a process.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
