// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator orchestrates streaming reply sessions.
//
// This file holds the per-channel and per-session state. The generation
// counter is the stale-session guard: every mutation of channel-level
// state first checks that the acting session's generation still matches
// the channel's, so callbacks resumed after a cancellation are no-ops.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-mobile/internal/bubble"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/registry"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
)

// =============================================================================
// CHANNEL STATE
// =============================================================================

// channelState is the shared per-channel UI-visible state. Guarded by the
// coordinator's mutex.
type channelState struct {
	// generation increments on every session start and cancel; a session
	// whose generation no longer matches is stale.
	generation uint64

	// current is the channel's active session, nil when idle.
	current *session

	// UI-visible flags
	activeMessageID string
	isCalling       bool
}

// =============================================================================
// SESSION STATE
// =============================================================================

// session is one in-flight reply. Owned by its event-loop goroutine; the
// mutable cancellation fields have their own lock since CancelSession is
// called from other goroutines.
type session struct {
	channel    model.Channel
	generation uint64
	messageID  string
	msg        *model.Message
	bundle     *registry.Bundle
	request    stream.Request
	startTime  time.Time

	// connectTimer implements the minimum-connect-display window.
	connectTimer *bubble.ConnectTimer

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	cancelCause    Cause
	contentStarted bool

	// delivered tracks how much of the buffer's committed snapshot has
	// been forwarded to the projector, so full-content deliveries can be
	// turned back into increments.
	delivered int
}

// requestCancel records why the session is being cancelled and fires the
// cancellation token. Safe to call multiple times; the first cause wins.
func (s *session) requestCancel(cause Cause) {
	s.mu.Lock()
	if s.cancelCause == CauseCompleted {
		s.cancelCause = cause
	}
	s.mu.Unlock()
	s.cancel()
}

// cause returns the recorded cancellation cause.
func (s *session) cause() Cause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCause
}

// markContentStarted flags first content arrival and closes the
// minimum-connect-display window.
func (s *session) markContentStarted() {
	s.mu.Lock()
	s.contentStarted = true
	s.mu.Unlock()
	s.connectTimer.Clear()
}

// hasContentStarted reports whether any content chunk survived filtering.
func (s *session) hasContentStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentStarted
}

// nextIncrement returns the unforwarded suffix of a full committed
// snapshot. Snapshots are monotonic prefix extensions, so the suffix is
// always well-defined; a short snapshot (never expected) yields "".
func (s *session) nextIncrement(full string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(full) <= s.delivered {
		return ""
	}
	inc := full[s.delivered:]
	s.delivered = len(full)
	return inc
}
