// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator orchestrates streaming reply sessions.
//
// This file defines the Bubble Tea message types the coordinator emits for
// the UI layer, plus the tick command used to refresh derived bubble state
// while a session is in flight.
package coordinator

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
)

// =============================================================================
// FINISH CAUSES
// =============================================================================

// Cause explains why a session ended.
type Cause int

const (
	// CauseCompleted means the stream finished normally.
	CauseCompleted Cause = iota
	// CauseUserCanceled means the user stopped the reply; partial content
	// is surfaced as a finished bubble.
	CauseUserCanceled
	// CauseSuperseded means a newer send replaced the session; partial
	// content is silently discarded.
	CauseSuperseded
	// CauseError means the session ended on a non-retryable error.
	CauseError
	// CauseRetry means the session ended to make room for a retry resend.
	CauseRetry
)

// String returns the cause name.
func (c Cause) String() string {
	switch c {
	case CauseCompleted:
		return "completed"
	case CauseUserCanceled:
		return "user_canceled"
	case CauseSuperseded:
		return "superseded"
	case CauseError:
		return "error"
	case CauseRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION LIFECYCLE MESSAGES
// =============================================================================

// SessionStartedMsg signals that a session began streaming.
type SessionStartedMsg struct {
	Channel   model.Channel
	MessageID string
	StartTime time.Time
}

// SessionFinishedMsg signals that a session ended and teardown completed.
type SessionFinishedMsg struct {
	Channel   model.Channel
	MessageID string
	Cause     Cause
}

// SessionErrorMsg signals a user-visible streaming failure. Any partial
// content has been preserved on the message record.
type SessionErrorMsg struct {
	Channel   model.Channel
	MessageID string
	Message   string
}

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// ProjectionUpdatedMsg delivers a new committed value of a message's
// observable text.
type ProjectionUpdatedMsg struct {
	MessageID string
	Content   string
}

// ReasoningUpdatedMsg signals that a message's reasoning text changed.
type ReasoningUpdatedMsg struct {
	MessageID string
	Complete  bool
}

// ToolActivityMsg reports tool or web-search activity during streaming.
type ToolActivityMsg struct {
	MessageID string
	Detail    string
}

// =============================================================================
// RETRY MESSAGES
// =============================================================================

// RetryScheduledMsg signals that a retryable failure occurred and a resend
// will be requested after the delay.
type RetryScheduledMsg struct {
	Channel   model.Channel
	MessageID string
	Attempt   int
	Delay     time.Duration
}

// RetryRequestMsg asks the caller to re-issue the request for the same
// message id. Sent after the retry delay has elapsed.
type RetryRequestMsg struct {
	Channel   model.Channel
	MessageID string
	Request   stream.Request
}

// =============================================================================
// PAUSE MESSAGES
// =============================================================================

// PauseToggledMsg reports the new pause state.
type PauseToggledMsg struct {
	Paused bool
}

// ResyncMsg carries the full current projection for every in-flight
// message. Sent once on resume so the UI catches up in a single update
// instead of replaying every suppressed increment.
type ResyncMsg struct {
	Contents map[string]string
}

// =============================================================================
// TICK COMMAND
// =============================================================================

// TickMsg drives periodic bubble-state refresh while streaming.
type TickMsg struct {
	Time time.Time
}

// TickCmd returns a command that ticks at the bubble refresh rate.
func TickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
