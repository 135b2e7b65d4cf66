// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persist

import (
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-mobile/internal/model"
)

// DefaultSaveInterval is the minimum spacing between debounced saves.
const DefaultSaveInterval = 2 * time.Second

// =============================================================================
// DEBOUNCED SAVER
// =============================================================================

// Saver coalesces the save requests produced during streaming. Forced
// requests save immediately; non-forced requests pass through a rate
// limiter, and any request that arrives inside the quiet window schedules
// exactly one trailing save so the last flush is never lost.
type Saver struct {
	mu sync.Mutex

	store  *Store
	conv   *model.Conversation
	limit  *rate.Limiter
	logger *log.Logger

	trailing *time.Timer
	closed   bool
}

// NewSaver creates a saver for one conversation. interval <= 0 uses the
// default spacing.
func NewSaver(store *Store, conv *model.Conversation, interval time.Duration, logger *log.Logger) *Saver {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	return &Saver{
		store:  store,
		conv:   conv,
		limit:  rate.NewLimiter(rate.Every(interval), 1),
		logger: logger,
	}
}

// Request asks for a save. force bypasses the rate limit.
func (s *Saver) Request(force bool) {
	if force {
		s.saveNow()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.limit.Allow() {
		s.mu.Unlock()
		s.saveNow()
		return
	}
	// Inside the quiet window: arm one trailing save if none is pending.
	if s.trailing == nil {
		delay := s.limit.Reserve().Delay()
		s.trailing = time.AfterFunc(delay, func() {
			s.mu.Lock()
			s.trailing = nil
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.saveNow()
			}
		})
	}
	s.mu.Unlock()
}

// Close stops any pending trailing save and performs a final save.
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	if s.trailing != nil {
		s.trailing.Stop()
		s.trailing = nil
	}
	s.mu.Unlock()
	s.saveNow()
}

func (s *Saver) saveNow() {
	if err := s.store.SaveConversation(s.conv); err != nil && s.logger != nil {
		s.logger.Printf("conversation save failed: %v", err)
	}
}
