// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bubble derives the per-message presentation state consumed by the
// UI layer.
package bubble

import (
	"testing"
	"time"
)

// =============================================================================
// DERIVATION TESTS
// =============================================================================

func TestErrorWinsOverEverything(t *testing.T) {
	state := DeriveState(Inputs{
		IsActiveSession: true,
		ContentStarted:  true,
		IsPaused:        true,
		IsError:         true,
		ErrorMessage:    "boom",
	})
	if state.Phase != PhaseError {
		t.Errorf("Expected error phase, got %s", state.Phase)
	}
	if state.ErrorMessage != "boom" {
		t.Errorf("Expected error message 'boom', got %q", state.ErrorMessage)
	}
}

func TestPausedFreezesToIdle(t *testing.T) {
	state := DeriveState(Inputs{
		IsActiveSession: true,
		ContentStarted:  true,
		IsPaused:        true,
		Content:         "half an answer",
	})
	if state.Phase != PhaseIdle {
		t.Errorf("Paused must derive idle, got %s", state.Phase)
	}
}

func TestMinConnectDisplayHoldsConnecting(t *testing.T) {
	state := DeriveState(Inputs{
		IsActiveSession:         true,
		WithinMinConnectDisplay: true,
	})
	if state.Phase != PhaseConnecting {
		t.Errorf("Expected connecting within min display, got %s", state.Phase)
	}
}

func TestReasoningBeforeContent(t *testing.T) {
	state := DeriveState(Inputs{
		IsActiveSession: true,
		HasReasoning:    true,
		Reasoning:       "thinking...",
	})
	if state.Phase != PhaseReasoning {
		t.Errorf("Expected reasoning phase, got %s", state.Phase)
	}
	if state.Reasoning != "thinking..." {
		t.Errorf("Expected reasoning text, got %q", state.Reasoning)
	}
}

func TestStreamingOnceContentStarts(t *testing.T) {
	state := DeriveState(Inputs{
		IsActiveSession:   true,
		HasReasoning:      true,
		ReasoningComplete: true,
		ContentStarted:    true,
		Content:           "Hello",
	})
	if state.Phase != PhaseStreaming {
		t.Errorf("Expected streaming phase, got %s", state.Phase)
	}
	if !state.HasReasoning || !state.ReasoningComplete {
		t.Error("Streaming state must carry reasoning flags")
	}
}

func TestConnectingFallbackWhileWaiting(t *testing.T) {
	state := DeriveState(Inputs{IsActiveSession: true})
	if state.Phase != PhaseConnecting {
		t.Errorf("Expected connecting fallback, got %s", state.Phase)
	}
}

func TestCompleteAfterSessionEnds(t *testing.T) {
	state := DeriveState(Inputs{
		ContentStarted: true,
		Content:        "final answer",
		Reasoning:      "it was obvious",
		HasReasoning:   true,
	})
	if state.Phase != PhaseComplete {
		t.Errorf("Expected complete phase, got %s", state.Phase)
	}
	if state.Content != "final answer" {
		t.Errorf("Expected content preserved, got %q", state.Content)
	}
}

func TestNonBlankContentCompletesWithoutContentStartedFlag(t *testing.T) {
	state := DeriveState(Inputs{Content: "recovered partial"})
	if state.Phase != PhaseComplete {
		t.Errorf("Expected complete for non-blank content, got %s", state.Phase)
	}
}

func TestBlankInactiveIsIdle(t *testing.T) {
	state := DeriveState(Inputs{Content: "   "})
	if state.Phase != PhaseIdle {
		t.Errorf("Expected idle, got %s", state.Phase)
	}
}

func TestDeriveStateIsDeterministic(t *testing.T) {
	in := Inputs{
		IsActiveSession:         true,
		HasReasoning:            true,
		ContentStarted:          true,
		WithinMinConnectDisplay: true,
		Content:                 "abc",
	}
	first := DeriveState(in)
	for i := 0; i < 10; i++ {
		if got := DeriveState(in); got != first {
			t.Fatalf("DeriveState not deterministic: %+v vs %+v", got, first)
		}
	}
}

// =============================================================================
// CONNECT TIMER TESTS
// =============================================================================

func TestConnectTimerWindow(t *testing.T) {
	timer := NewConnectTimer(100 * time.Millisecond)
	if !timer.Within() {
		t.Error("Window should be open immediately after start")
	}

	time.Sleep(130 * time.Millisecond)
	if timer.Within() {
		t.Error("Window should close after the duration elapses")
	}
}

func TestConnectTimerClearNeverResurrects(t *testing.T) {
	timer := NewConnectTimer(time.Hour)
	timer.Clear()
	if timer.Within() {
		t.Error("Cleared window must stay closed")
	}
	// A second clear is harmless and the window stays shut.
	timer.Clear()
	if timer.Within() {
		t.Error("Window resurrected after repeat clear")
	}
}
