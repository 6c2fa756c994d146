// Package prefs persists small UI preferences and the recently opened chats
// between runs.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linlay/agent-webclient/pkg/sqliteutil"
)

const (
	KeyLastChat    = "last_chat"
	KeyLockedAgent = "locked_agent"
	KeyTheme       = "theme"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS recent_chats (
		chat_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		opened_at INTEGER NOT NULL
	);`,
}

// RecentChat is a chat the user opened from this machine.
type RecentChat struct {
	ChatID   string
	Title    string
	OpenedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens the store at path and brings its schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening prefs store: %w", err)
	}
	if err := sqliteutil.Migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating prefs store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading pref %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key. An empty value deletes the key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if value == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing pref %s: %w", key, err)
	}
	return nil
}

// TouchChat records that chatID was opened at the given time. A blank title
// keeps the one already stored.
func (s *Store) TouchChat(ctx context.Context, chatID, title string, at time.Time) error {
	if chatID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_chats (chat_id, title, opened_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN recent_chats.title ELSE excluded.title END,
			opened_at = excluded.opened_at
	`, chatID, title, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording recent chat: %w", err)
	}
	return s.Set(ctx, KeyLastChat, chatID)
}

// RecentChats returns up to limit chats, most recently opened first.
func (s *Store) RecentChats(ctx context.Context, limit int) ([]RecentChat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, title, opened_at FROM recent_chats
		ORDER BY opened_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []RecentChat
	for rows.Next() {
		var (
			c  RecentChat
			ms int64
		)
		if err := rows.Scan(&c.ChatID, &c.Title, &ms); err != nil {
			return nil, err
		}
		c.OpenedAt = time.UnixMilli(ms)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ForgetChat drops chatID from the recent list and clears it as the last
// chat.
func (s *Store) ForgetChat(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_chats WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ? AND value = ?`, KeyLastChat, chatID)
	return err
}
