// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reassembly turns raw streaming events into a structured message.
package reassembly

import (
	"strings"
	"testing"

	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
)

// =============================================================================
// PROCESSOR TESTS
// =============================================================================

func TestContentDeltasAccumulate(t *testing.T) {
	p := New()

	if got := p.ProcessEvent(stream.ContentDelta("Hello ")); got != OutcomeContentUpdated {
		t.Errorf("Expected content outcome, got %v", got)
	}
	p.ProcessEvent(stream.Event{Kind: stream.KindTextDelta, Text: "world"})

	if got := p.CurrentText(); got != "Hello world" {
		t.Errorf("Expected 'Hello world', got %q", got)
	}
}

func TestReasoningTrackedSeparately(t *testing.T) {
	p := New()

	p.ProcessEvent(stream.ReasoningDelta("let me think"))
	p.ProcessEvent(stream.ContentDelta("the answer"))

	if got := p.CurrentReasoning(); got != "let me think" {
		t.Errorf("Expected reasoning text, got %q", got)
	}
	if got := p.CurrentText(); got != "the answer" {
		t.Errorf("Reasoning leaked into content: %q", got)
	}
	if p.ReasoningComplete() {
		t.Error("Reasoning must not be complete before ReasoningFinished")
	}

	p.ProcessEvent(stream.Event{Kind: stream.KindReasoningFinished})
	if !p.ReasoningComplete() {
		t.Error("ReasoningFinished must mark reasoning complete")
	}
}

func TestCodeExecutableRendersFencedBlock(t *testing.T) {
	p := New()

	p.ProcessEvent(stream.Event{Kind: stream.KindCodeExecutable, Code: "print(1)", Language: "python"})

	text := p.CurrentText()
	if !strings.Contains(text, "```python\nprint(1)\n```") {
		t.Errorf("Expected fenced code block, got %q", text)
	}
}

func TestCodeExecutionResultWithImage(t *testing.T) {
	p := New()

	p.ProcessEvent(stream.Event{Kind: stream.KindCodeExecutionResult, ImageURL: "https://img/1.png"})

	msg := model.NewAssistantMessage(model.ChannelImage)
	p.Finalize(msg)
	if msg.ImageURL != "https://img/1.png" {
		t.Errorf("Expected image URL on finalized message, got %q", msg.ImageURL)
	}
}

func TestFinalizeTrimsAndMarksComplete(t *testing.T) {
	p := New()

	p.ProcessEvent(stream.ContentDelta("  answer with space \n"))
	p.ProcessEvent(stream.ReasoningDelta(" because \n"))
	p.ProcessEvent(stream.Event{Kind: stream.KindToolCall, ToolName: "search"})

	msg := model.NewAssistantMessage(model.ChannelText)
	p.Finalize(msg)

	if msg.Content != "answer with space" {
		t.Errorf("Expected trimmed content, got %q", msg.Content)
	}
	if msg.Reasoning != "because" {
		t.Errorf("Expected trimmed reasoning, got %q", msg.Reasoning)
	}
	if !msg.ReasoningComplete {
		t.Error("Finalize must mark reasoning complete")
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0] != "search" {
		t.Errorf("Expected tool call recorded, got %v", msg.ToolCalls)
	}
}

func TestFinalizePreservesExistingContentWhenEmpty(t *testing.T) {
	p := New()

	msg := model.NewAssistantMessage(model.ChannelText)
	msg.Content = "partial from teardown"
	p.Finalize(msg)

	if msg.Content != "partial from teardown" {
		t.Errorf("Empty reassembly must not blank existing content, got %q", msg.Content)
	}
}

func TestResetClearsEverything(t *testing.T) {
	p := New()

	p.ProcessEvent(stream.ContentDelta("abc"))
	p.ProcessEvent(stream.ReasoningDelta("xyz"))
	p.Reset()

	if p.CurrentText() != "" || p.CurrentReasoning() != "" {
		t.Error("Reset must clear accumulated text")
	}
}

func TestTerminalEventsAreNoOps(t *testing.T) {
	p := New()

	for _, kind := range []stream.Kind{stream.KindFinish, stream.KindStreamEnd, stream.KindError, stream.KindWebSearchStatus} {
		if got := p.ProcessEvent(stream.Event{Kind: kind}); got != OutcomeNoOp {
			t.Errorf("Kind %v: expected no-op, got %v", kind, got)
		}
	}
}
