// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

func TestIsRetryable(t *testing.T) {
	retryable := []string{
		"connection reset by peer",
		"dial tcp: i/o timeout",
		"request timed out",
		"Connection Refused",
		"write: broken pipe",
		"host unreachable",
		"lookup api.example.com: no such host",
		"unexpected EOF",
		"socket hang up",
		"Temporary failure in name resolution",
	}
	for _, msg := range retryable {
		if !IsRetryable(msg) {
			t.Errorf("IsRetryable(%q) = false, want true", msg)
		}
	}

	permanent := []string{
		"",
		"invalid api key",
		"model not found",
		"request too large",
		"rate limit exceeded",
	}
	for _, msg := range permanent {
		if IsRetryable(msg) {
			t.Errorf("IsRetryable(%q) = true, want false", msg)
		}
	}
}

// =============================================================================
// EVENT KIND PREDICATES
// =============================================================================

func TestKindPredicates(t *testing.T) {
	if !KindContentDelta.IsContent() || !KindTextDelta.IsContent() {
		t.Error("content kinds must report IsContent")
	}
	if KindReasoningDelta.IsContent() {
		t.Error("reasoning delta is not content")
	}

	for _, k := range []Kind{KindFinish, KindStreamEnd, KindError} {
		if !k.IsTerminal() {
			t.Errorf("%v must be terminal", k)
		}
	}
	if KindContentDelta.IsTerminal() {
		t.Error("content delta is not terminal")
	}
}

// =============================================================================
// NDJSON READER
// =============================================================================

func TestReaderParsesEventSequence(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"reasoning_delta","text":"thinking"}`,
		`{"type":"reasoning_finished"}`,
		`{"type":"content_delta","text":"Hello"}`,
		`{"type":"content_delta","text":" world"}`,
		`{"type":"finish"}`,
	}, "\n") + "\n"

	r := NewReader(strings.NewReader(input))

	want := []struct {
		kind Kind
		text string
	}{
		{KindReasoningDelta, "thinking"},
		{KindReasoningFinished, ""},
		{KindContentDelta, "Hello"},
		{KindContentDelta, " world"},
		{KindFinish, ""},
	}

	for i, w := range want {
		ev, err := r.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if ev.Kind != w.kind || ev.Text != w.text {
			t.Errorf("event %d = %v %q, want %v %q", i, ev.Kind, ev.Text, w.kind, w.text)
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("after last event: err = %v, want io.EOF", err)
	}
	if r.EventCount() != 5 {
		t.Errorf("event count = %d, want 5", r.EventCount())
	}
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	input := `{"type":"content_delta","text":"ok"}
this is not json
{"type":"unknown_kind","text":"x"}
{"type":"finish"}
`
	r := NewReader(strings.NewReader(input))

	ev, err := r.Next()
	if err != nil || ev.Kind != KindContentDelta {
		t.Fatalf("first event: %v %v", ev, err)
	}
	ev, err = r.Next()
	if err != nil || ev.Kind != KindFinish {
		t.Fatalf("second event must skip garbage: %v %v", ev, err)
	}
}

func TestReaderErrorFrameUsesMessageField(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type":"error","message":"connection reset"}` + "\n"))
	ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != KindError || ev.Text != "connection reset" {
		t.Errorf("ev = %v %q", ev.Kind, ev.Text)
	}
}

func TestReaderHandlesUnterminatedFinalLine(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type":"content_delta","text":"tail"}`))
	ev, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Text != "tail" {
		t.Errorf("text = %q", ev.Text)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReaderParsesRichFrames(t *testing.T) {
	input := `{"type":"tool_call","tool_name":"calculator"}
{"type":"code_executable","code":"print(1)","language":"python"}
{"type":"code_execution_result","output":"1","image_url":"https://img.example/p.png"}
{"type":"web_search_results","results":[{"title":"Go","url":"https://go.dev"}]}
`
	r := NewReader(strings.NewReader(input))

	ev, _ := r.Next()
	if ev.ToolName != "calculator" {
		t.Errorf("tool name = %q", ev.ToolName)
	}
	ev, _ = r.Next()
	if ev.Code != "print(1)" || ev.Language != "python" {
		t.Errorf("code frame = %+v", ev)
	}
	ev, _ = r.Next()
	if ev.Output != "1" || ev.ImageURL != "https://img.example/p.png" {
		t.Errorf("result frame = %+v", ev)
	}
	ev, _ = r.Next()
	if len(ev.Results) != 1 || ev.Results[0].URL != "https://go.dev" {
		t.Errorf("search frame = %+v", ev)
	}
}

// =============================================================================
// READER TRANSPORT
// =============================================================================

func TestReaderTransportPumpsAndCloses(t *testing.T) {
	input := `{"type":"content_delta","text":"a"}
{"type":"finish"}
{"type":"content_delta","text":"after terminal, never delivered"}
`
	transport := &ReaderTransport{
		OpenStream: func(ctx context.Context, req Request) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(input)), nil
		},
	}

	events, err := transport.Open(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2 (stop at terminal)", len(got))
	}
	if got[0].Text != "a" || got[1].Kind != KindFinish {
		t.Errorf("events = %+v", got)
	}
}

func TestReaderTransportStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	transport := &ReaderTransport{
		OpenStream: func(ctx context.Context, req Request) (io.ReadCloser, error) {
			return pr, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := transport.Open(ctx, Request{})
	if err != nil {
		t.Fatal(err)
	}

	pw.Write([]byte(`{"type":"content_delta","text":"x"}` + "\n"))
	select {
	case ev := <-events:
		if ev.Text != "x" {
			t.Fatalf("text = %q", ev.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}

	cancel()
	pw.Close()

	select {
	case _, open := <-events:
		if open {
			// One in-flight event may race the cancel; the channel must
			// still close right after.
			if _, open = <-events; open {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed after cancel")
	}
}
