// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/util"
)

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredConversation is the on-disk form of a conversation.
type StoredConversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []StoredMessage `json:"messages"`
}

// StoredMessage is the on-disk form of a message.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`

	Content           string   `json:"content"`
	Reasoning         string   `json:"reasoning,omitempty"`
	ReasoningComplete bool     `json:"reasoning_complete,omitempty"`
	ToolCalls         []string `json:"tool_calls,omitempty"`
	ImageURL          string   `json:"image_url,omitempty"`

	IsError     bool `json:"is_error,omitempty"`
	WasCanceled bool `json:"was_canceled,omitempty"`
}

// Meta describes a stored conversation for list views.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// FromConversation snapshots a live conversation into its stored form.
// In-flight messages are persisted with whatever content has been committed
// so far; the streaming flag itself is not stored.
func FromConversation(conv *model.Conversation) *StoredConversation {
	msgs := conv.Snapshot()
	out := &StoredConversation{
		ID:        conv.ID,
		Title:     conv.Title,
		Model:     conv.Model,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]StoredMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		// A message may still be streaming while the saver runs; the
		// snapshot reads its mutable fields under the message's lock.
		snap := m.Snapshot()
		out.Messages = append(out.Messages, StoredMessage{
			ID:                m.ID,
			Role:              string(m.Role),
			Channel:           m.Channel.String(),
			Timestamp:         m.Timestamp,
			Content:           snap.Content,
			Reasoning:         snap.Reasoning,
			ReasoningComplete: snap.ReasoningComplete,
			ToolCalls:         snap.ToolCalls,
			ImageURL:          snap.ImageURL,
			IsError:           snap.IsError,
			WasCanceled:       snap.WasCanceled,
		})
	}
	return out
}

// ToConversation rebuilds a live conversation from its stored form.
func (c *StoredConversation) ToConversation() *model.Conversation {
	conv := model.NewConversation()
	conv.ID = c.ID
	conv.Title = c.Title
	conv.Model = c.Model
	conv.CreatedAt = c.CreatedAt
	conv.UpdatedAt = c.UpdatedAt

	for _, sm := range c.Messages {
		m := model.NewMessage(model.Role(sm.Role), channelFromString(sm.Channel), sm.Content)
		m.ID = sm.ID
		m.Timestamp = sm.Timestamp
		m.Reasoning = sm.Reasoning
		m.ReasoningComplete = sm.ReasoningComplete
		m.ToolCalls = sm.ToolCalls
		m.ImageURL = sm.ImageURL
		m.IsError = sm.IsError
		m.WasCanceled = sm.WasCanceled
		m.IsStreaming = false
		conv.Messages = append(conv.Messages, m)
	}
	return conv
}

func channelFromString(s string) model.Channel {
	if s == model.ChannelImage.String() {
		return model.ChannelImage
	}
	return model.ChannelText
}

// =============================================================================
// STORE
// =============================================================================

// DefaultMaxConversations bounds how many conversations are kept on disk.
const DefaultMaxConversations = 100

// ErrNotFound is returned when a conversation file does not exist.
var ErrNotFound = &StoreError{Message: "conversation not found"}

// StoreError is a persistence failure that supports errors.Is comparison.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string { return e.Message }

func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && e.Message == t.Message
}

// Store persists conversations as one JSON file each.
type Store struct {
	// BaseDir is the directory holding conversation files.
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// NewStore creates a store under the user's home directory.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDir(filepath.Join(homeDir, ".rigrun-mobile", "conversations"))
}

// NewStoreWithDir creates a store with a custom directory.
func NewStoreWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save persists a conversation and returns its id.
func (s *Store) Save(conv *StoredConversation) (string, error) {
	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return conv.ID, nil
}

// SaveConversation snapshots and persists a live conversation.
func (s *Store) SaveConversation(conv *model.Conversation) error {
	_, err := s.Save(FromConversation(conv))
	return err
}

// Load retrieves a conversation by id.
func (s *Store) Load(id string) (*StoredConversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var conv StoredConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Delete removes a conversation by id.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

// List returns metadata for all stored conversations, most recent first.
// Corrupted files are skipped.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Meta{}, nil
		}
		return nil, err
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		metas = append(metas, Meta{
			ID:           conv.ID,
			Title:        conv.Title,
			Model:        conv.Model,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			Preview:      conv.preview(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search returns conversations whose title or preview contains the query,
// case-insensitively.
func (s *Store) Search(query string) ([]Meta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []Meta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
		}
	}
	return results, nil
}

// preview returns the first user message, truncated.
func (c *StoredConversation) preview() string {
	for _, msg := range c.Messages {
		if msg.Role == string(model.RoleUser) && msg.Content != "" {
			return util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 80)
		}
	}
	return ""
}

// enforceLimit removes the oldest conversations beyond the cap.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})
	for i := 0; i < len(metas)-s.MaxConversations; i++ {
		s.Delete(metas[i].ID)
	}
}

// filePath returns the file path for a conversation id.
func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}
