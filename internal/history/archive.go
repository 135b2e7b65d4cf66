// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-mobile/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed      = errors.New("history archive closed")
	ErrEmptyQuery  = errors.New("empty search query")
	ErrInvalidPath = errors.New("invalid archive path")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	channel         TEXT NOT NULL,
	role            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	archived_at     INTEGER NOT NULL,
	content         TEXT NOT NULL,
	reasoning       TEXT NOT NULL DEFAULT '',
	image_url       TEXT NOT NULL DEFAULT '',
	is_error        INTEGER NOT NULL DEFAULT 0,
	was_canceled    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// =============================================================================
// ARCHIVED MESSAGE
// =============================================================================

// Entry is one archived message row.
type Entry struct {
	ID             string
	ConversationID string
	Channel        string
	Role           string
	CreatedAt      time.Time
	ArchivedAt     time.Time
	Content        string
	Reasoning      string
	ImageURL       string
	IsError        bool
	WasCanceled    bool
}

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is the SQLite-backed message history.
type Archive struct {
	db *sql.DB
}

// Open creates or opens an archive database at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// OpenDefault opens the archive in the standard app data location.
func OpenDefault() (*Archive, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(homeDir, ".rigrun-mobile", "history.db"))
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// =============================================================================
// WRITE PATH
// =============================================================================

// ArchiveMessage stores one finished message. Blank messages are skipped;
// re-archiving a message id overwrites the prior row, which covers messages
// that finished once, then finished again after a retry.
func (a *Archive) ArchiveMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	if a.db == nil {
		return ErrClosed
	}

	// The archive write runs off the update loop; a follow-up session may
	// already be rewriting the record, so read it through a snapshot.
	snap := msg.Snapshot()
	if snap.IsBlank() && snap.ImageURL == "" {
		return nil
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, channel, role, created_at, archived_at,
			 content, reasoning, image_url, is_error, was_canceled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content      = excluded.content,
			reasoning    = excluded.reasoning,
			image_url    = excluded.image_url,
			is_error     = excluded.is_error,
			was_canceled = excluded.was_canceled,
			archived_at  = excluded.archived_at`,
		msg.ID, conversationID, msg.Channel.String(), string(msg.Role),
		msg.Timestamp.UnixMilli(), time.Now().UnixMilli(),
		snap.Content, snap.Reasoning, snap.ImageURL,
		boolToInt(snap.IsError), boolToInt(snap.WasCanceled))
	return err
}

// =============================================================================
// READ PATH
// =============================================================================

// Search returns archived messages whose content contains the query,
// case-insensitively, most recent first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if a.db == nil {
		return nil, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, conversation_id, channel, role, created_at, archived_at,
		       content, reasoning, image_url, is_error, was_canceled
		FROM messages
		WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the most recently created archived messages.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if a.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, conversation_id, channel, role, created_at, archived_at,
		       content, reasoning, image_url, is_error, was_canceled
		FROM messages
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByConversation returns all archived messages of one conversation, in
// creation order.
func (a *Archive) ByConversation(ctx context.Context, conversationID string) ([]Entry, error) {
	if a.db == nil {
		return nil, ErrClosed
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, conversation_id, channel, role, created_at, archived_at,
		       content, reasoning, image_url, is_error, was_canceled
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Count returns the number of archived messages.
func (a *Archive) Count(ctx context.Context) (int, error) {
	if a.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// Prune removes archived messages created before the cutoff. Returns the
// number of rows removed.
func (a *Archive) Prune(ctx context.Context, before time.Time) (int64, error) {
	if a.db == nil {
		return 0, ErrClosed
	}
	res, err := a.db.ExecContext(ctx,
		"DELETE FROM messages WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// HELPERS
// =============================================================================

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt, archivedAt int64
		var isError, wasCanceled int
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Channel, &e.Role,
			&createdAt, &archivedAt, &e.Content, &e.Reasoning, &e.ImageURL,
			&isError, &wasCanceled); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		e.ArchivedAt = time.UnixMilli(archivedAt)
		e.IsError = isError != 0
		e.WasCanceled = wasCanceled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
