// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream defines the model-output event taxonomy and the transport
// contract that produces it.
package stream

import "context"

// =============================================================================
// EVENT KINDS
// =============================================================================

// Kind identifies the type of a streaming event.
type Kind int

const (
	// KindContentDelta carries an increment of answer text.
	KindContentDelta Kind = iota
	// KindTextDelta is an alternate answer-text increment emitted by some
	// providers; treated identically to KindContentDelta downstream.
	KindTextDelta
	// KindReasoningDelta carries an increment of reasoning/thinking text.
	KindReasoningDelta
	// KindReasoningFinished marks the end of the reasoning phase.
	KindReasoningFinished
	// KindToolCall announces a tool invocation by name.
	KindToolCall
	// KindCodeExecutable carries a runnable code block.
	KindCodeExecutable
	// KindCodeExecutionResult carries the output of an executed code block.
	KindCodeExecutionResult
	// KindWebSearchStatus reports the stage of an in-flight web search.
	KindWebSearchStatus
	// KindWebSearchResults delivers web search results.
	KindWebSearchResults
	// KindOutputTypeHint hints at the expected output type (text, image).
	KindOutputTypeHint
	// KindFinish is the provider's normal completion signal.
	KindFinish
	// KindStreamEnd marks the end of the underlying stream.
	KindStreamEnd
	// KindError carries a provider or transport failure.
	KindError
)

// String returns the event kind name for logs and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindContentDelta:
		return "content_delta"
	case KindTextDelta:
		return "text_delta"
	case KindReasoningDelta:
		return "reasoning_delta"
	case KindReasoningFinished:
		return "reasoning_finished"
	case KindToolCall:
		return "tool_call"
	case KindCodeExecutable:
		return "code_executable"
	case KindCodeExecutionResult:
		return "code_execution_result"
	case KindWebSearchStatus:
		return "web_search_status"
	case KindWebSearchResults:
		return "web_search_results"
	case KindOutputTypeHint:
		return "output_type_hint"
	case KindFinish:
		return "finish"
	case KindStreamEnd:
		return "stream_end"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the kind ends a session.
func (k Kind) IsTerminal() bool {
	return k == KindFinish || k == KindStreamEnd || k == KindError
}

// IsContent reports whether the kind carries answer text.
func (k Kind) IsContent() bool {
	return k == KindContentDelta || k == KindTextDelta
}

// =============================================================================
// EVENT TYPE
// =============================================================================

// Event is one tagged element of a reply's event sequence. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind Kind

	// Text carries delta text for content/reasoning kinds, the status stage
	// for web search, the type name for output hints, and the message for
	// errors.
	Text string

	// ToolName is set for KindToolCall.
	ToolName string

	// Code and Language are set for KindCodeExecutable.
	Code     string
	Language string

	// Output and ImageURL are set for KindCodeExecutionResult; either may
	// be empty.
	Output   string
	ImageURL string

	// Results is set for KindWebSearchResults.
	Results []SearchResult
}

// SearchResult is one entry of a web search result set.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ContentDelta builds an answer-text increment event.
func ContentDelta(text string) Event {
	return Event{Kind: KindContentDelta, Text: text}
}

// ReasoningDelta builds a reasoning-text increment event.
func ReasoningDelta(text string) Event {
	return Event{Kind: KindReasoningDelta, Text: text}
}

// ErrorEvent builds an error event with the given message.
func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Text: message}
}

// =============================================================================
// TRANSPORT CONTRACT
// =============================================================================

// Request describes one reply to be produced by a transport.
type Request struct {
	// Prompt is the user's message.
	Prompt string
	// Model names the model to answer with; empty selects the default.
	Model string
	// WantImage requests an image-generation reply rather than text.
	WantImage bool
}

// Transport produces the event sequence for one reply. The returned channel
// is closed by the transport after the final event; cancelling the context
// must cause the transport to stop sending and close the channel promptly.
type Transport interface {
	Open(ctx context.Context, req Request) (<-chan Event, error)
}
