// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bubble derives the per-message presentation state consumed by the
// UI layer.
package bubble

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// PHASE TYPE
// =============================================================================

// Phase identifies the rendering mode for a message bubble.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseReasoning
	PhaseStreaming
	PhaseComplete
	PhaseError
)

// String returns the phase name for logs and tests.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseReasoning:
		return "reasoning"
	case PhaseStreaming:
		return "streaming"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// STATE TYPE
// =============================================================================

// State is the derived presentation state for one message. Only the fields
// relevant to the Phase carry meaning.
type State struct {
	Phase Phase

	// Content is set for Streaming and Complete.
	Content string

	// Reasoning fields are set for Reasoning, Streaming, and Complete.
	Reasoning         string
	HasReasoning      bool
	ReasoningComplete bool

	// ErrorMessage is set for Error.
	ErrorMessage string
}

// Inputs are the facts DeriveState projects from. All fields are plain data
// so the derivation stays pure and deterministic.
type Inputs struct {
	IsActiveSession         bool
	HasReasoning            bool
	ReasoningComplete       bool
	ContentStarted          bool
	WithinMinConnectDisplay bool
	IsError                 bool
	IsPaused                bool

	Content      string
	Reasoning    string
	ErrorMessage string
}

// =============================================================================
// DERIVATION
// =============================================================================

// DeriveState maps session flags onto a presentation state. The order of
// the branches is the priority order: errors beat everything, pause freezes
// the bubble, then active-session states, then the completed fallbacks.
func DeriveState(in Inputs) State {
	if in.IsError {
		return State{Phase: PhaseError, ErrorMessage: in.ErrorMessage}
	}

	// No visual churn while paused; resume performs one full resync.
	if in.IsPaused {
		return State{Phase: PhaseIdle}
	}

	if in.IsActiveSession {
		// Guarantee a minimum visible "connecting" affordance before any
		// reasoning or content arrives.
		if !in.HasReasoning && in.WithinMinConnectDisplay {
			return State{Phase: PhaseConnecting}
		}
		if in.HasReasoning && !in.ContentStarted {
			return State{
				Phase:             PhaseReasoning,
				Reasoning:         in.Reasoning,
				HasReasoning:      true,
				ReasoningComplete: in.ReasoningComplete,
			}
		}
		if in.ContentStarted {
			return State{
				Phase:             PhaseStreaming,
				Content:           in.Content,
				Reasoning:         in.Reasoning,
				HasReasoning:      in.HasReasoning,
				ReasoningComplete: in.ReasoningComplete,
			}
		}
		return State{Phase: PhaseConnecting}
	}

	if in.ContentStarted || strings.TrimSpace(in.Content) != "" {
		return State{
			Phase:             PhaseComplete,
			Content:           in.Content,
			Reasoning:         in.Reasoning,
			HasReasoning:      in.HasReasoning,
			ReasoningComplete: in.ReasoningComplete,
		}
	}

	return State{Phase: PhaseIdle}
}

// =============================================================================
// MINIMUM CONNECT DISPLAY TIMER
// =============================================================================

// ConnectTimer tracks the minimum-connect-display window for one message.
// The window opens the instant a session becomes active and closes either
// when the duration elapses or when Clear is called (first reasoning or
// content arrival). Once cleared it never reopens.
type ConnectTimer struct {
	mu      sync.Mutex
	started time.Time
	window  time.Duration
	cleared bool
}

// NewConnectTimer opens the window now.
func NewConnectTimer(window time.Duration) *ConnectTimer {
	return &ConnectTimer{
		started: time.Now(),
		window:  window,
	}
}

// Within reports whether the window is still open.
func (t *ConnectTimer) Within() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cleared {
		return false
	}
	return time.Since(t.started) < t.window
}

// Clear closes the window permanently.
func (t *ConnectTimer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = true
}
