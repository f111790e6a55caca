package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix = "msg:"
	sequenceKey   = "seq:messages"
	sequenceLease = 128

	// roomTerminator ends the encoded room in a key; the byte after it is '0'.
	roomTerminator = "/"
)

// badgerRecord is the JSON value stored under each message key.
type badgerRecord struct {
	ID     int64  `json:"id"`
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	SentAt int64  `json:"sent_at"`
}

// BadgerStore persists messages in an embedded badger database.
//
// Keys are laid out as "msg:{hex(room)}/{unix_nano:019}:{id:020}" so a
// prefix scan over a room walks its history in chronological order. The '/'
// terminator sorts below every hex digit, so key order across rooms follows
// room name byte order even when one name is a prefix of another.
type BadgerStore struct {
	db    *badger.DB
	seq   *badger.Sequence
	clock *clock
	mu    sync.Mutex
}

// OpenBadger opens (creating if needed) a badger database in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("store: badger path is required")
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database %s: %w", dir, err)
	}

	s, err := NewBadgerStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewBadgerStore wraps an open badger database.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLease)
	if err != nil {
		return nil, fmt.Errorf("failed to lease message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq, clock: newClock()}, nil
}

func roomPrefix(room string) string {
	return messagePrefix + hex.EncodeToString([]byte(room)) + roomTerminator
}

func messageKey(room string, sentAt, id int64) []byte {
	return fmt.Appendf(nil, "%s%019d:%020d", roomPrefix(room), sentAt, id)
}

// Append writes the message under a freshly leased ID.
func (s *BadgerStore) Append(ctx context.Context, room, sender, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, persistenceError("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.seq.Next()
	if err != nil {
		return Message{}, persistenceError("append", err)
	}
	// Sequences start at zero; message IDs start at one.
	rec := badgerRecord{
		ID:     int64(n) + 1,
		Room:   room,
		Sender: sender,
		Text:   text,
		SentAt: s.clock.Now().UnixNano(),
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return Message{}, persistenceError("append", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(room, rec.SentAt, rec.ID), value)
	})
	if err != nil {
		return Message{}, persistenceError("append", err)
	}
	return rec.toMessage(), nil
}

// Page walks the room prefix backwards from before, then reverses the result.
func (s *BadgerStore) Page(ctx context.Context, room string, limit int, before *time.Time) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("page", err)
	}
	if limit <= 0 {
		return []Message{}, nil
	}

	prefix := []byte(roomPrefix(room))
	// '~' sorts after every digit and ':', so the seek key lands after the
	// last key sharing the given timestamp.
	seek := append(slices.Clone(prefix), '~')
	if before != nil {
		cutoff := before.UnixNano() - 1
		if cutoff < 0 {
			return []Message{}, nil
		}
		seek = fmt.Appendf(slices.Clone(prefix), "%019d:~", cutoff)
	}

	page := make([]Message, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(page) < limit; it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			page = append(page, rec.toMessage())
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("page", err)
	}

	slices.Reverse(page)
	return page, nil
}

// Rooms lists distinct room names in lexicographic order by hopping from one
// room prefix to the next instead of visiting every message.
func (s *BadgerStore) Rooms(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("rooms", err)
	}
	if limit <= 0 {
		limit = DefaultRoomsLimit
	}

	rooms := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek([]byte(messagePrefix))
		for it.ValidForPrefix([]byte(messagePrefix)) && len(rooms) < limit {
			rest := it.Item().Key()[len(messagePrefix):]
			end := bytes.IndexByte(rest, roomTerminator[0])
			if end < 0 {
				return fmt.Errorf("malformed message key %q", it.Item().Key())
			}
			encoded := string(rest[:end])
			name, err := hex.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("malformed room in key %q: %w", it.Item().Key(), err)
			}
			rooms = append(rooms, string(name))
			// "0" is the byte after the terminator, so this skips the rest of the room.
			it.Seek([]byte(messagePrefix + encoded + "0"))
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("rooms", err)
	}
	return rooms, nil
}

// Close returns unused sequence leases and closes the database.
func (s *BadgerStore) Close() error {
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r badgerRecord) toMessage() Message {
	return Message{
		ID:        r.ID,
		Room:      r.Room,
		Sender:    r.Sender,
		Text:      r.Text,
		Timestamp: time.Unix(0, r.SentAt).UTC(),
	}
}
