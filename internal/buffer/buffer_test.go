// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package buffer implements the throttled content buffer.
package buffer

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// sink collects downstream deliveries in order.
type sink struct {
	mu         sync.Mutex
	deliveries []string
}

func (s *sink) deliver(full string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, full)
}

func (s *sink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

func (s *sink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return ""
	}
	return s.deliveries[len(s.deliveries)-1]
}

// recorder captures metrics calls.
type recorder struct {
	mu      sync.Mutex
	flushes int
	in      int
	out     int
}

func (r *recorder) RecordFlush(messageID string, bytesIn, bytesOut int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.in += bytesIn
	r.out = bytesOut
}

// =============================================================================
// BUFFER TESTS
// =============================================================================

func TestAppendBelowThresholdDoesNotDeliver(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 30, Interval: time.Hour}, s.deliver, nil)

	b.Append("Hel")
	b.Append("lo ")
	b.Append("world")

	if got := len(s.all()); got != 0 {
		t.Errorf("Expected no deliveries below threshold, got %d", got)
	}
	if got := b.CurrentContent(); got != "Hello world" {
		t.Errorf("Expected CurrentContent 'Hello world', got %q", got)
	}
}

func TestManualFlushDeliversExactContent(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 30, Interval: time.Hour}, s.deliver, nil)

	b.Append("Hel")
	b.Append("lo ")
	b.Append("world")
	b.Flush()

	deliveries := s.all()
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0] != "Hello world" {
		t.Errorf("Expected 'Hello world', got %q", deliveries[0])
	}
}

func TestSizeThresholdTriggersFlush(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 4, Interval: time.Hour}, s.deliver, nil)

	b.Append("ab")
	if len(s.all()) != 0 {
		t.Fatal("Should not flush before threshold")
	}
	b.Append("cd")

	deliveries := s.all()
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery after threshold, got %d", len(deliveries))
	}
	if deliveries[0] != "abcd" {
		t.Errorf("Expected 'abcd', got %q", deliveries[0])
	}
}

func TestDelayedFlushFires(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 1000, Interval: 20 * time.Millisecond}, s.deliver, nil)

	b.Append("trickle")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.last() == "trickle" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Delayed flush never delivered; got %q", s.last())
}

func TestDeliveriesCarryFullCommittedText(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 3, Interval: time.Hour}, s.deliver, nil)

	b.Append("aaa")
	b.Append("bbb")
	b.Append("ccc")

	deliveries := s.all()
	if len(deliveries) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(deliveries))
	}
	want := []string{"aaa", "aaabbb", "aaabbbccc"}
	for i, w := range want {
		if deliveries[i] != w {
			t.Errorf("Delivery %d: expected %q, got %q", i, w, deliveries[i])
		}
	}
}

func TestDeliveriesAreMonotonicPrefixExtensions(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 5, Interval: 10 * time.Millisecond}, s.deliver, nil)

	pieces := []string{"The ", "quick ", "brown ", "fox ", "jumps ", "over ", "the ", "lazy ", "dog"}
	for _, p := range pieces {
		b.Append(p)
		time.Sleep(2 * time.Millisecond)
	}
	b.Flush()

	deliveries := s.all()
	if len(deliveries) == 0 {
		t.Fatal("Expected at least one delivery")
	}
	prev := ""
	for i, d := range deliveries {
		if !strings.HasPrefix(d, prev) {
			t.Errorf("Delivery %d is not a prefix extension: prev=%q cur=%q", i, prev, d)
		}
		prev = d
	}
	if prev != "The quick brown fox jumps over the lazy dog" {
		t.Errorf("Final delivery wrong: %q", prev)
	}
}

func TestAppendNeverLosesData(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 7, Interval: 5 * time.Millisecond}, s.deliver, nil)

	var want strings.Builder
	for i := 0; i < 200; i++ {
		chunk := strings.Repeat("x", i%5+1)
		want.WriteString(chunk)
		b.Append(chunk)
	}
	b.Flush()

	if got := s.last(); got != want.String() {
		t.Errorf("Final delivery lost data: got %d bytes, want %d bytes", len(got), want.Len())
	}
}

func TestFlushCancelsDelayedTimerNoDuplicateDelivery(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 1000, Interval: 30 * time.Millisecond}, s.deliver, nil)

	b.Append("once")
	b.Flush()

	time.Sleep(80 * time.Millisecond)

	deliveries := s.all()
	if len(deliveries) != 1 {
		t.Errorf("Expected exactly 1 delivery, got %d: %v", len(deliveries), deliveries)
	}
}

func TestClearResetsAndIgnoresLaterAppends(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 1000, Interval: time.Hour}, s.deliver, nil)

	b.Append("partial answer")
	b.Clear()

	if got := b.CurrentContent(); got != "" {
		t.Errorf("Expected empty content after Clear, got %q", got)
	}

	b.Append("late")
	b.Flush()
	if len(s.all()) != 0 {
		t.Errorf("Cleared buffer must not deliver, got %v", s.all())
	}
}

func TestFlushCountAndMetrics(t *testing.T) {
	s := &sink{}
	r := &recorder{}
	b := New("msg-1", Config{SizeThreshold: 2, Interval: time.Hour}, s.deliver, r)

	b.Append("ab")
	b.Append("cd")

	if got := b.FlushCount(); got != 2 {
		t.Errorf("Expected flush count 2, got %d", got)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushes != 2 {
		t.Errorf("Expected 2 metric records, got %d", r.flushes)
	}
	if r.in != 4 {
		t.Errorf("Expected 4 bytes in, got %d", r.in)
	}
	if r.out != 4 {
		t.Errorf("Expected final committed size 4, got %d", r.out)
	}
}

func TestEmptyAppendIsNoOp(t *testing.T) {
	s := &sink{}
	b := New("msg-1", Config{SizeThreshold: 1, Interval: time.Hour}, s.deliver, nil)

	b.Append("")
	if len(s.all()) != 0 {
		t.Error("Empty append must not flush")
	}
	if b.PendingLen() != 0 {
		t.Error("Empty append must not grow pending")
	}
}
