// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history caches completed transcripts locally in SQLite, so
// past conversations are browsable and searchable without the backend.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT NOT NULL,
	conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	sender           TEXT NOT NULL,
	content          TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	confidence_score REAL NOT NULL DEFAULT 0,
	sources          TEXT NOT NULL DEFAULT '[]',
	rating           INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id);
`

// Summary is one row of the local conversation listing.
type Summary struct {
	ConversationID string
	Title          string
	Preview        string
	MessageCount   int
	UpdatedAt      time.Time
}

// Store is the local transcript cache. It satisfies chat.Archiver.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the cache database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTranscript writes a transcript's stable messages, replacing any
// earlier copy. Transcripts without a server identity, drafts, and
// locally synthesized error notices are skipped.
func (s *Store) SaveTranscript(ctx context.Context, t *model.Transcript) error {
	if !t.HasRealID() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	updatedAt := t.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	title := ""
	if first := firstUserMessage(t); first != nil {
		title = first.Preview(60)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		t.ConversationID, title, updatedAt); err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, t.ConversationID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, position, sender, content, created_at, confidence_score, sources, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	pos := 0
	for _, m := range t.Messages {
		if m.Streaming || m.IsError {
			continue
		}
		sources, err := json.Marshal(m.Sources)
		if err != nil {
			sources = []byte("[]")
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, t.ConversationID, pos, string(m.Sender), m.Content,
			m.CreatedAt, m.ConfidenceScore, string(sources), int(m.Rating)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		pos++
	}

	return tx.Commit()
}

// firstUserMessage returns the transcript's first user message, if any.
func firstUserMessage(t *model.Transcript) *model.Message {
	for _, m := range t.Messages {
		if m.Sender == model.SenderUser {
			return m
		}
	}
	return nil
}

// LoadTranscript reads one cached transcript. A conversation that was
// never cached returns sql.ErrNoRows.
func (s *Store) LoadTranscript(ctx context.Context, conversationID string) (*model.Transcript, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM conversations WHERE id = ?`, conversationID).Scan(&updatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, content, created_at, confidence_score, sources, rating
		FROM messages WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := model.NewTranscript(conversationID)
	t.UpdatedAt = updatedAt
	for rows.Next() {
		var m model.Message
		var sender, sources string
		var rating int
		if err := rows.Scan(&m.ID, &sender, &m.Content, &m.CreatedAt,
			&m.ConfidenceScore, &sources, &rating); err != nil {
			return nil, err
		}
		m.Sender = model.Sender(sender)
		m.Rating = model.Rating(rating)
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			s.logger.Warn("unreadable sources column", zap.String("message_id", m.ID))
		}
		t.Append(&m)
	}
	return t, rows.Err()
}

// List returns cached conversations, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	return s.query(ctx, `
		SELECT c.id, c.title, c.updated_at,
			COUNT(m.id),
			COALESCE((SELECT content FROM messages
				WHERE conversation_id = c.id ORDER BY position DESC LIMIT 1), '')
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC`)
}

// Search returns cached conversations containing the query text in any
// message.
func (s *Store) Search(ctx context.Context, query string) ([]Summary, error) {
	return s.query(ctx, `
		SELECT c.id, c.title, c.updated_at,
			COUNT(m.id),
			COALESCE((SELECT content FROM messages
				WHERE conversation_id = c.id ORDER BY position DESC LIMIT 1), '')
		FROM conversations c
		JOIN messages m ON m.conversation_id = c.id
		WHERE c.id IN (
			SELECT DISTINCT conversation_id FROM messages WHERE content LIKE ?
		)
		GROUP BY c.id
		ORDER BY c.updated_at DESC`,
		"%"+query+"%")
}

// query runs a listing query and scans summaries.
func (s *Store) query(ctx context.Context, q string, args ...any) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var preview string
		if err := rows.Scan(&sum.ConversationID, &sum.Title, &sum.UpdatedAt,
			&sum.MessageCount, &preview); err != nil {
			return nil, err
		}
		sum.Preview = util.Truncate(preview, 80)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes one cached conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, conversationID)
	return err
}
