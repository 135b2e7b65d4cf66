// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxMessages is the maximum number of messages kept in a conversation.
// Older messages are pruned to keep the mobile client's memory bounded.
const MaxMessages = 500

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with history and metadata.
//
// Thread-safety: the coordinator's session goroutines and the UI both touch
// conversations, so message access goes through the locked methods.
type Conversation struct {
	mu sync.RWMutex

	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Model configuration
	Model string `json:"model"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and prunes history beyond MaxMessages.
func (c *Conversation) AddMessage(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()

	if c.Title == "" && msg.Role == RoleUser {
		c.Title = msg.Preview(48)
	}
	if len(c.Messages) > MaxMessages {
		c.Messages = c.Messages[len(c.Messages)-MaxMessages:]
	}
}

// MessageByID returns the message with the given id, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// VisibleIDs returns the ids of all messages on a channel. The lifecycle
// registry treats these as reachable during sweeps.
func (c *Conversation) VisibleIDs(channel Channel) map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]struct{}, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Channel == channel {
			ids[msg.ID] = struct{}{}
		}
	}
	return ids
}

// Touch bumps the updated timestamp.
func (c *Conversation) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpdatedAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Messages)
}

// Snapshot returns a shallow copy of the message slice for rendering or
// serialization. The message pointers are shared; treat them as read-only.
func (c *Conversation) Snapshot() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}
