// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CHANNEL TYPE
// =============================================================================

// Channel identifies one of the two independent reply pipelines.
type Channel int

const (
	// ChannelText is the chat reply pipeline.
	ChannelText Channel = iota
	// ChannelImage is the image-generation reply pipeline.
	ChannelImage
)

// Channels lists both pipelines, for sweeps that cover the union.
var Channels = []Channel{ChannelText, ChannelImage}

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelText:
		return "text"
	case ChannelImage:
		return "image"
	default:
		return "unknown"
	}
}

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// The identity fields are fixed at construction. The content and status
// fields of an assistant message are written by its streaming session
// while the UI reads them, so all access to those fields after the
// message is shared goes through the locked methods; concurrent readers
// take a Snapshot.
type Message struct {
	mu sync.RWMutex

	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Channel   Channel   `json:"channel"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Reasoning (assistant messages with a thinking phase)
	Reasoning         string `json:"reasoning,omitempty"`
	ReasoningComplete bool   `json:"reasoning_complete,omitempty"`

	// Tool and search activity observed during streaming
	ToolCalls []string `json:"tool_calls,omitempty"`

	// Image-generation result
	ImageURL string `json:"image_url,omitempty"`

	// Status
	IsStreaming bool `json:"-"`
	IsError     bool `json:"is_error,omitempty"`
	WasCanceled bool `json:"was_canceled,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, channel Channel, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Channel:   channel,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(channel Channel, content string) *Message {
	return NewMessage(RoleUser, channel, content)
}

// NewAssistantMessage creates an empty assistant message in streaming state.
func NewAssistantMessage(channel Channel) *Message {
	msg := NewMessage(RoleAssistant, channel, "")
	msg.IsStreaming = true
	return msg
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// MessageSnapshot is a point-in-time copy of a message's mutable fields,
// safe to read while the owning session keeps streaming.
type MessageSnapshot struct {
	Content           string
	Reasoning         string
	ReasoningComplete bool
	ToolCalls         []string
	ImageURL          string
	IsStreaming       bool
	IsError           bool
	WasCanceled       bool
}

// HasReasoning reports whether any reasoning text has arrived.
func (s MessageSnapshot) HasReasoning() bool {
	return s.Reasoning != ""
}

// IsBlank reports whether the snapshot carries no visible content.
func (s MessageSnapshot) IsBlank() bool {
	return strings.TrimSpace(s.Content) == ""
}

// Snapshot copies the mutable fields under the read lock.
func (m *Message) Snapshot() MessageSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := MessageSnapshot{
		Content:           m.Content,
		Reasoning:         m.Reasoning,
		ReasoningComplete: m.ReasoningComplete,
		ImageURL:          m.ImageURL,
		IsStreaming:       m.IsStreaming,
		IsError:           m.IsError,
		WasCanceled:       m.WasCanceled,
	}
	if len(m.ToolCalls) > 0 {
		snap.ToolCalls = append([]string(nil), m.ToolCalls...)
	}
	return snap
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendReasoning appends a reasoning delta.
func (m *Message) AppendReasoning(delta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reasoning += delta
}

// MarkReasoningComplete records the end of the thinking phase.
func (m *Message) MarkReasoningComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReasoningComplete = true
}

// ApplyFinal records the reassembled end-of-stream result in one locked
// update. Empty content leaves any previously committed text in place.
func (m *Message) ApplyFinal(content, reasoning string, toolCalls []string, imageURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := strings.TrimSpace(content); c != "" {
		m.Content = c
	}
	if reasoning != "" {
		m.Reasoning = strings.TrimSpace(reasoning)
	}
	m.ReasoningComplete = true
	if len(toolCalls) > 0 {
		m.ToolCalls = append([]string(nil), toolCalls...)
	}
	if imageURL != "" {
		m.ImageURL = imageURL
	}
}

// FinishStreaming clears the streaming flag.
func (m *Message) FinishStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsStreaming = false
}

// FailWith replaces the content with the surfaced failure text and moves
// the message into its terminal error state.
func (m *Message) FailWith(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Content = content
	m.IsError = true
	m.IsStreaming = false
}

// FinishCanceled marks a user cancellation, adopting the streamed partial
// text when nothing was committed yet. Reports whether the message ends up
// with visible content worth persisting.
func (m *Message) FinishCanceled(partial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(partial) != "" && strings.TrimSpace(m.Content) == "" {
		m.Content = partial
	}
	m.WasCanceled = true
	m.IsStreaming = false
	return strings.TrimSpace(m.Content) != ""
}

// PrepareResend re-arms an existing record for a retry of the same request.
func (m *Message) PrepareResend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsStreaming = true
	m.IsError = false
}

// HasReasoning reports whether any reasoning text has arrived.
func (m *Message) HasReasoning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Reasoning != ""
}

// IsBlank reports whether the message carries no visible content.
func (m *Message) IsBlank() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return strings.TrimSpace(m.Content) == ""
}

// Preview returns a truncated preview of the message content.
func (m *Message) Preview(maxRunes int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runes := []rune(m.Content)
	if len(runes) <= maxRunes {
		return m.Content
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
