// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projector owns the observable "current full text" cell for each
// in-flight message.
package projector

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// watcher records observed committed values per message.
type watcher struct {
	mu     sync.Mutex
	values []string
}

func (w *watcher) observe(messageID, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = append(w.values, content)
}

func (w *watcher) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.values))
	copy(out, w.values)
	return out
}

// fastConfig commits quickly so tests stay short.
func fastConfig() Config {
	return Config{
		Debounce:       5 * time.Millisecond,
		Steps:          []IntervalStep{{MinLen: 0, Interval: 5 * time.Millisecond}},
		FenceForceSize: 4096,
	}
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Condition never became true")
}

// =============================================================================
// PROJECTOR TESTS
// =============================================================================

func TestAppendTextCommitsAfterDebounce(t *testing.T) {
	w := &watcher{}
	p := New(fastConfig(), w.observe)

	p.StartStreaming("m1")
	p.AppendText("m1", "hello")

	waitFor(t, func() bool { return p.CurrentContent("m1") == "hello" })
}

func TestBurstsCollapseIntoOneUpdate(t *testing.T) {
	w := &watcher{}
	cfg := fastConfig()
	cfg.Debounce = 30 * time.Millisecond
	cfg.Steps = []IntervalStep{{MinLen: 0, Interval: 30 * time.Millisecond}}
	p := New(cfg, w.observe)

	p.StartStreaming("m1")
	p.AppendText("m1", "a")
	p.AppendText("m1", "b")
	p.AppendText("m1", "c")

	waitFor(t, func() bool { return p.CurrentContent("m1") == "abc" })

	if got := len(w.all()); got != 1 {
		t.Errorf("Expected 1 observable update for the burst, got %d", got)
	}
}

func TestMonotonicPrefixExtension(t *testing.T) {
	w := &watcher{}
	p := New(fastConfig(), w.observe)

	p.StartStreaming("m1")
	for i := 0; i < 20; i++ {
		p.AppendText("m1", "chunk ")
		time.Sleep(8 * time.Millisecond)
	}
	final := p.FinalizeMessage("m1")

	prev := ""
	for i, v := range w.all() {
		if !strings.HasPrefix(v, prev) {
			t.Errorf("Update %d is not a prefix extension: prev=%q cur=%q", i, prev, v)
		}
		prev = v
	}
	if prev != final {
		t.Errorf("Last observed value %q != finalized %q", prev, final)
	}
}

func TestUnclosedFenceDefersCommit(t *testing.T) {
	w := &watcher{}
	p := New(fastConfig(), w.observe)

	p.StartStreaming("m1")
	p.AppendText("m1", "look:\n```go\nfunc main() {")

	time.Sleep(50 * time.Millisecond)
	if got := p.CurrentContent("m1"); got != "" {
		t.Errorf("Unclosed fence should defer commit, got %q", got)
	}

	p.AppendText("m1", "}\n```\ndone")
	waitFor(t, func() bool {
		return strings.HasSuffix(p.CurrentContent("m1"), "done")
	})
}

func TestFenceGuardForcedPastHardSize(t *testing.T) {
	w := &watcher{}
	cfg := fastConfig()
	cfg.FenceForceSize = 32
	p := New(cfg, w.observe)

	p.StartStreaming("m1")
	p.AppendText("m1", "```\n"+strings.Repeat("x", 64))

	waitFor(t, func() bool { return p.CurrentContent("m1") != "" })
}

func TestFinalizeBypassesFenceGuard(t *testing.T) {
	p := New(Config{Debounce: time.Hour, Steps: []IntervalStep{{MinLen: 0, Interval: time.Hour}}, FenceForceSize: 1 << 20}, nil)

	p.StartStreaming("m1")
	p.AppendText("m1", "```\npartial block")

	final := p.FinalizeMessage("m1")
	if final != "```\npartial block" {
		t.Errorf("Finalize must flush pending ignoring fence guard, got %q", final)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	p := New(fastConfig(), nil)

	p.StartStreaming("m1")
	p.AppendText("m1", "the answer")

	first := p.FinalizeMessage("m1")
	second := p.FinalizeMessage("m1")

	if first != "the answer" {
		t.Errorf("Expected 'the answer', got %q", first)
	}
	if second != first {
		t.Errorf("Second finalize returned %q, want %q", second, first)
	}
	if p.IsActive("m1") {
		t.Error("Finalized message must not be active")
	}
}

func TestFinalizeAfterAppendIgnoresLateAppends(t *testing.T) {
	p := New(fastConfig(), nil)

	p.StartStreaming("m1")
	p.AppendText("m1", "done")
	final := p.FinalizeMessage("m1")

	p.AppendText("m1", " extra")
	time.Sleep(30 * time.Millisecond)

	if got := p.FinalizeMessage("m1"); got != final {
		t.Errorf("Late append mutated finalized text: %q", got)
	}
}

func TestUpdateContentReplacesAndDropsPending(t *testing.T) {
	w := &watcher{}
	p := New(Config{Debounce: time.Hour, Steps: []IntervalStep{{MinLen: 0, Interval: time.Hour}}, FenceForceSize: 4096}, w.observe)

	p.StartStreaming("m1")
	p.AppendText("m1", "stale pending")
	p.UpdateContent("m1", "authoritative text")

	if got := p.CurrentContent("m1"); got != "authoritative text" {
		t.Errorf("Expected overwrite, got %q", got)
	}
	if got := p.FinalizeMessage("m1"); got != "authoritative text" {
		t.Errorf("Pending must be discarded by overwrite, finalize got %q", got)
	}
}

func TestClearStreamingStateRemovesCell(t *testing.T) {
	p := New(fastConfig(), nil)

	p.StartStreaming("m1")
	p.AppendText("m1", "bye")
	p.ClearStreamingState("m1")

	if got := p.CurrentContent("m1"); got != "" {
		t.Errorf("Expected empty content after clear, got %q", got)
	}
}

func TestAdaptiveIntervalGrowsWithLength(t *testing.T) {
	cfg := DefaultConfig()

	short := cfg.interval(100)
	long := cfg.interval(30 * 1024)
	if short >= long {
		t.Errorf("Interval must grow with committed length: short=%v long=%v", short, long)
	}
}
