// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides streaming performance metrics for rigrun mobile.
package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// FLUSH METRICS
// =============================================================================

// FlushMetrics aggregates flush statistics across all streaming messages.
// All methods are safe for concurrent use; buffers report from their own
// timer goroutines.
type FlushMetrics struct {
	mu       sync.RWMutex
	messages map[string]*MessageStats

	// Totals across all messages
	totalFlushes int
	totalBytesIn int64
	totalDeliver int64
	startTime    time.Time
}

// MessageStats tracks flush activity for a single message.
type MessageStats struct {
	MessageID    string
	Flushes      int
	BytesIn      int64 // Total appended bytes
	BytesOut     int64 // Total committed size delivered downstream
	FirstFlush   time.Time
	LastFlush    time.Time
}

// NewFlushMetrics creates an empty metrics collector.
func NewFlushMetrics() *FlushMetrics {
	return &FlushMetrics{
		messages:  make(map[string]*MessageStats),
		startTime: time.Now(),
	}
}

// RecordFlush records one buffer flush for a message.
// bytesIn is the pending size moved into the committed accumulator;
// bytesOut is the full committed size delivered downstream.
func (m *FlushMetrics) RecordFlush(messageID string, bytesIn, bytesOut int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.messages[messageID]
	if !ok {
		stats = &MessageStats{
			MessageID:  messageID,
			FirstFlush: time.Now(),
		}
		m.messages[messageID] = stats
	}

	stats.Flushes++
	stats.BytesIn += int64(bytesIn)
	stats.BytesOut += int64(bytesOut)
	stats.LastFlush = time.Now()

	m.totalFlushes++
	m.totalBytesIn += int64(bytesIn)
	m.totalDeliver += int64(bytesOut)
}

// Stats returns a copy of the per-message stats, or false if the message
// has never flushed.
func (m *FlushMetrics) Stats(messageID string) (MessageStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.messages[messageID]
	if !ok {
		return MessageStats{}, false
	}
	return *stats, true
}

// TotalFlushes returns the flush count across all messages.
func (m *FlushMetrics) TotalFlushes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalFlushes
}

// Forget drops the stats for a message. Called by the lifecycle registry
// when a message's resources are reclaimed.
func (m *FlushMetrics) Forget(messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, messageID)
}

// =============================================================================
// REPORTING
// =============================================================================

// Report returns a human-readable summary of flush activity, sorted by
// message flush count descending.
func (m *FlushMetrics) Report() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*MessageStats, 0, len(m.messages))
	for _, s := range m.messages {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Flushes > all[j].Flushes
	})

	out := fmt.Sprintf("flushes=%d bytes_in=%d delivered=%d messages=%d uptime=%s\n",
		m.totalFlushes, m.totalBytesIn, m.totalDeliver, len(m.messages),
		time.Since(m.startTime).Round(time.Second))
	for _, s := range all {
		out += fmt.Sprintf("  %s: flushes=%d in=%d out=%d\n",
			s.MessageID, s.Flushes, s.BytesIn, s.BytesOut)
	}
	return out
}
