package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// messageRecord is the gorm model behind the messages table. Timestamps are
// kept as unix nanoseconds so range queries compare integers.
type messageRecord struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Room   string `gorm:"size:128;not null;index:idx_messages_room_sent,priority:1"`
	Sender string `gorm:"size:64;not null"`
	Text   string `gorm:"type:text;not null"`
	SentAt int64  `gorm:"not null;index:idx_messages_room_sent,priority:2"`
}

// TableName returns the table name for messageRecord.
func (messageRecord) TableName() string {
	return "messages"
}

func (r messageRecord) toMessage() Message {
	return Message{
		ID:        r.ID,
		Room:      r.Room,
		Sender:    r.Sender,
		Text:      r.Text,
		Timestamp: time.Unix(0, r.SentAt).UTC(),
	}
}

// SQLStore persists messages in SQLite through gorm.
type SQLStore struct {
	db    *gorm.DB
	clock *clock
	// appendMu keeps ID order and timestamp order aligned.
	appendMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates the messages table. ":memory:" gives a throwaway database.
func OpenSQLite(path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	sqlDB.SetMaxOpenConns(1)

	return NewSQLStore(db)
}

// NewSQLStore wraps an open gorm handle and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate messages table: %w", err)
	}
	return &SQLStore{db: db, clock: newClock()}, nil
}

// Append inserts the message and returns it with the database-assigned ID.
func (s *SQLStore) Append(ctx context.Context, room, sender, text string) (Message, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	rec := messageRecord{
		Room:   room,
		Sender: sender,
		Text:   text,
		SentAt: s.clock.Now().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Message{}, persistenceError("append", err)
	}
	return rec.toMessage(), nil
}

// Page fetches newest-first and reverses so the page reads chronologically.
func (s *SQLStore) Page(ctx context.Context, room string, limit int, before *time.Time) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	query := s.db.WithContext(ctx).Where("room = ?", room)
	if before != nil {
		query = query.Where("sent_at < ?", before.UnixNano())
	}

	var records []messageRecord
	if err := query.Order("sent_at DESC").Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, persistenceError("page", err)
	}

	page := lo.Map(records, func(r messageRecord, _ int) Message { return r.toMessage() })
	slices.Reverse(page)
	return page, nil
}

// Rooms lists distinct room names in lexicographic order.
func (s *SQLStore) Rooms(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultRoomsLimit
	}

	var rooms []string
	err := s.db.WithContext(ctx).
		Model(&messageRecord{}).
		Distinct("room").
		Order("room").
		Limit(limit).
		Pluck("room", &rooms).Error
	if err != nil {
		return nil, persistenceError("rooms", err)
	}
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}

// Close releases the underlying database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
