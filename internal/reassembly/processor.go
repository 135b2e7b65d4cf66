// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reassembly turns raw streaming events into a structured message.
package reassembly

import (
	"strings"
	"sync"

	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/stream"
)

// =============================================================================
// OUTCOME TYPE
// =============================================================================

// Outcome reports what a processed event changed.
type Outcome int

const (
	// OutcomeNoOp means the event changed nothing user-visible.
	OutcomeNoOp Outcome = iota
	// OutcomeContentUpdated means the answer text grew.
	OutcomeContentUpdated
	// OutcomeReasoningUpdated means the reasoning text grew or completed.
	OutcomeReasoningUpdated
)

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor reassembles one message's event stream into structured text.
type Processor struct {
	mu sync.Mutex

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content   strings.Builder
	reasoning strings.Builder

	reasoningDone bool
	toolCalls     []string
	imageURL      string
	outputType    string
}

// New creates an empty processor.
func New() *Processor {
	return &Processor{}
}

// ProcessEvent folds one event into the reassembled message and reports
// what changed. Terminal and error events are the session manager's
// business and come back as OutcomeNoOp here.
func (p *Processor) ProcessEvent(ev stream.Event) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case stream.KindContentDelta, stream.KindTextDelta:
		if ev.Text == "" {
			return OutcomeNoOp
		}
		p.content.WriteString(ev.Text)
		return OutcomeContentUpdated

	case stream.KindReasoningDelta:
		if ev.Text == "" {
			return OutcomeNoOp
		}
		p.reasoning.WriteString(ev.Text)
		return OutcomeReasoningUpdated

	case stream.KindReasoningFinished:
		p.reasoningDone = true
		return OutcomeReasoningUpdated

	case stream.KindToolCall:
		p.toolCalls = append(p.toolCalls, ev.ToolName)
		return OutcomeNoOp

	case stream.KindCodeExecutable:
		// Render runnable code as a fenced block inline with the answer.
		p.content.WriteString("\n```" + ev.Language + "\n" + ev.Code + "\n```\n")
		return OutcomeContentUpdated

	case stream.KindCodeExecutionResult:
		if ev.ImageURL != "" {
			p.imageURL = ev.ImageURL
		}
		if ev.Output != "" {
			p.content.WriteString("\n```\n" + ev.Output + "\n```\n")
			return OutcomeContentUpdated
		}
		return OutcomeNoOp

	case stream.KindOutputTypeHint:
		p.outputType = ev.Text
		return OutcomeNoOp

	default:
		return OutcomeNoOp
	}
}

// Finalize writes the reassembled result into msg and returns it. Content
// and reasoning are whitespace-trimmed; reasoning is marked complete. The
// write happens through the message's own lock so concurrent readers never
// see a half-applied result.
func (p *Processor) Finalize(msg *model.Message) *model.Message {
	p.mu.Lock()
	content := p.content.String()
	reasoning := p.reasoning.String()
	toolCalls := append([]string(nil), p.toolCalls...)
	imageURL := p.imageURL
	p.mu.Unlock()

	msg.ApplyFinal(content, reasoning, toolCalls, imageURL)
	return msg
}

// CurrentText returns the reassembled answer text so far.
func (p *Processor) CurrentText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content.String()
}

// CurrentReasoning returns the reassembled reasoning text so far.
func (p *Processor) CurrentReasoning() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reasoning.String()
}

// ReasoningComplete reports whether the reasoning phase has finished.
func (p *Processor) ReasoningComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reasoningDone
}

// Reset clears all accumulated state for reuse.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content.Reset()
	p.reasoning.Reset()
	p.reasoningDone = false
	p.toolCalls = nil
	p.imageURL = ""
	p.outputType = ""
}
