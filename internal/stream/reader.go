// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream defines the model-output event taxonomy and the transport
// contract that produces it.
//
// This file implements the NDJSON reference transport: a line-oriented JSON
// reader that turns a provider byte stream into the Event taxonomy. Each
// line is one JSON object carrying a "type" discriminator plus the payload
// fields for that type.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// =============================================================================
// WIRE FRAME
// =============================================================================

// frame is the per-line wire representation produced by the gateway.
type frame struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Code     string         `json:"code,omitempty"`
	Language string         `json:"language,omitempty"`
	Output   string         `json:"output,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Results  []SearchResult `json:"results,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// frameKinds maps wire discriminators onto event kinds.
var frameKinds = map[string]Kind{
	"content_delta":         KindContentDelta,
	"text_delta":            KindTextDelta,
	"reasoning_delta":       KindReasoningDelta,
	"reasoning_finished":    KindReasoningFinished,
	"tool_call":             KindToolCall,
	"code_executable":       KindCodeExecutable,
	"code_execution_result": KindCodeExecutionResult,
	"web_search_status":     KindWebSearchStatus,
	"web_search_results":    KindWebSearchResults,
	"output_type_hint":      KindOutputTypeHint,
	"finish":                KindFinish,
	"stream_end":            KindStreamEnd,
	"error":                 KindError,
}

// =============================================================================
// STREAM READER
// =============================================================================

// Reader parses a line-oriented JSON byte stream into Events.
type Reader struct {
	reader     *bufio.Reader
	eventCount int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReader(r)}
}

// Next reads and parses the next event. Returns io.EOF when the stream is
// exhausted. Malformed lines are skipped rather than failing the stream.
func (r *Reader) Next() (*Event, error) {
	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) == 0 {
				return nil, io.EOF
			}
			if len(line) == 0 {
				return nil, err
			}
			// Fall through and parse the final unterminated line.
		}

		if len(line) <= 1 {
			continue
		}

		var f frame
		if jsonErr := json.Unmarshal(line, &f); jsonErr != nil {
			// Skip malformed lines
			if err != nil {
				return nil, err
			}
			continue
		}

		kind, ok := frameKinds[f.Type]
		if !ok {
			if err != nil {
				return nil, err
			}
			continue
		}

		r.eventCount++
		ev := &Event{
			Kind:     kind,
			Text:     f.Text,
			ToolName: f.ToolName,
			Code:     f.Code,
			Language: f.Language,
			Output:   f.Output,
			ImageURL: f.ImageURL,
			Results:  f.Results,
		}
		if kind == KindError {
			ev.Text = f.Message
		}
		return ev, nil
	}
}

// EventCount returns the number of events parsed so far.
func (r *Reader) EventCount() int {
	return r.eventCount
}

// =============================================================================
// READER TRANSPORT
// =============================================================================

// ReaderTransport adapts a byte-stream factory into a Transport. Used to
// wrap an HTTP response body or a recorded session file.
type ReaderTransport struct {
	// OpenStream returns the byte stream for one request.
	OpenStream func(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Open starts reading the byte stream and pumps events onto the returned
// channel. The channel is closed when the stream ends, fails, or the context
// is cancelled.
func (t *ReaderTransport) Open(ctx context.Context, req Request) (<-chan Event, error) {
	body, err := t.OpenStream(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer body.Close()

		reader := NewReader(body)
		for {
			ev, err := reader.Next()
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					select {
					case events <- ErrorEvent(err.Error()):
					case <-ctx.Done():
					}
				}
				return
			}

			select {
			case events <- *ev:
			case <-ctx.Done():
				return
			}

			if ev.Kind.IsTerminal() {
				return
			}
		}
	}()

	return events, nil
}
