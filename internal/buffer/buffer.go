// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package buffer implements the throttled content buffer.
//
// Thread-safety: all operations are protected by a mutex since appends
// arrive from the session goroutine while delayed flushes fire on timer
// goroutines. The delivery callback is always invoked outside the lock.
package buffer

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the flush thresholds for a Buffer.
type Config struct {
	// SizeThreshold is the pending size in bytes that forces a flush.
	SizeThreshold int
	// Interval is the maximum time between flushes while content is pending.
	Interval time.Duration
}

// DefaultConfig returns thresholds tuned for mobile rendering: large enough
// to batch token bursts, small enough that text never looks stalled.
func DefaultConfig() Config {
	return Config{
		SizeThreshold: 48,
		Interval:      120 * time.Millisecond,
	}
}

// Recorder receives flush statistics for aggregate performance reporting.
type Recorder interface {
	RecordFlush(messageID string, bytesIn, bytesOut int)
}

// DeliverFunc receives the full committed text after each flush.
type DeliverFunc func(full string)

// =============================================================================
// THROTTLED CONTENT BUFFER
// =============================================================================

// Buffer accumulates streamed text for one message and delivers it
// downstream in throttled batches.
type Buffer struct {
	mu sync.Mutex

	// deliverMu serializes downstream deliveries so snapshots arrive in
	// commit order even when a timer flush races an append flush. Lock
	// order is always mu then deliverMu.
	deliverMu sync.Mutex

	messageID string
	cfg       Config
	deliver   DeliverFunc
	metrics   Recorder

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	pending   strings.Builder
	committed strings.Builder

	lastFlush  time.Time
	flushCount int
	timer      *time.Timer
	cleared    bool
}

// New creates a buffer for one message. deliver receives the full committed
// text on every flush; metrics may be nil.
func New(messageID string, cfg Config, deliver DeliverFunc, metrics Recorder) *Buffer {
	if cfg.SizeThreshold <= 0 {
		cfg.SizeThreshold = DefaultConfig().SizeThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Buffer{
		messageID: messageID,
		cfg:       cfg,
		deliver:   deliver,
		metrics:   metrics,
		lastFlush: time.Now(),
	}
}

// Append adds chunk to the pending accumulator and flushes if a threshold
// is met. If neither threshold is met, a delayed flush is scheduled for the
// remaining interval so slow trickles still become visible.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}

	b.mu.Lock()
	if b.cleared {
		b.mu.Unlock()
		return
	}

	b.pending.WriteString(chunk)

	elapsed := time.Since(b.lastFlush)
	if b.pending.Len() >= b.cfg.SizeThreshold || elapsed >= b.cfg.Interval {
		b.flushAndDeliverLocked()
		return
	}

	// Bounded staleness: make sure the pending text surfaces even if no
	// further append arrives.
	if b.timer == nil {
		remaining := b.cfg.Interval - elapsed
		b.timer = time.AfterFunc(remaining, b.timerFlush)
	}
	b.mu.Unlock()
}

// Flush delivers any pending content immediately, cancelling a scheduled
// delayed flush first to avoid duplicate delivery. No-op when nothing is
// pending.
func (b *Buffer) Flush() {
	b.mu.Lock()
	b.stopTimerLocked()
	if b.cleared || b.pending.Len() == 0 {
		b.mu.Unlock()
		return
	}
	b.flushAndDeliverLocked()
}

// timerFlush runs on the timer goroutine when the delayed flush fires.
func (b *Buffer) timerFlush() {
	b.mu.Lock()
	b.timer = nil
	if b.cleared || b.pending.Len() == 0 {
		b.mu.Unlock()
		return
	}
	b.flushAndDeliverLocked()
}

// flushAndDeliverLocked moves pending into committed and invokes the
// delivery callback outside the lock. The caller must hold b.mu; the lock
// is released before returning.
func (b *Buffer) flushAndDeliverLocked() {
	b.stopTimerLocked()

	moved := b.pending.Len()
	b.committed.WriteString(b.pending.String())
	b.pending.Reset()
	b.lastFlush = time.Now()
	b.flushCount++

	full := b.committed.String()
	deliver := b.deliver
	metrics := b.metrics
	id := b.messageID

	b.deliverMu.Lock()
	b.mu.Unlock()
	defer b.deliverMu.Unlock()

	if metrics != nil {
		metrics.RecordFlush(id, moved, len(full))
	}
	if deliver != nil {
		deliver(full)
	}
}

// stopTimerLocked cancels a scheduled delayed flush, if any.
func (b *Buffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// =============================================================================
// INSPECTION AND TEARDOWN
// =============================================================================

// CurrentContent returns committed plus pending text: everything appended
// so far regardless of flush state.
func (b *Buffer) CurrentContent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.Len() == 0 {
		return b.committed.String()
	}
	return b.committed.String() + b.pending.String()
}

// CommittedLen returns the size of the committed accumulator in bytes.
// Monotonically non-decreasing until Clear.
func (b *Buffer) CommittedLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed.Len()
}

// PendingLen returns the size of the pending accumulator in bytes.
func (b *Buffer) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

// FlushCount returns how many flushes have run.
func (b *Buffer) FlushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushCount
}

// Clear cancels any scheduled flush and resets both accumulators. Used only
// at session teardown or restart for the same message id; a cleared buffer
// ignores further appends.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	b.pending.Reset()
	b.committed.Reset()
	b.cleared = true
}
