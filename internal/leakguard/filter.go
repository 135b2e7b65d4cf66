// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package leakguard filters streamed content chunks for system-prompt leak
// markers before they reach the UI buffers. Markers may arrive split across
// chunk boundaries; text that ends in a possible marker prefix is held back
// until later chunks settle it one way or the other, so no fragment of a
// marker is ever delivered. The session drains the held tail at stream end.
package leakguard

import (
	"strings"
	"sync"
)

// =============================================================================
// DEFAULT MARKERS
// =============================================================================

// DefaultMarkers are phrases that only appear when the model is echoing
// its own instructions. Matching is case-insensitive.
var DefaultMarkers = []string{
	"BEGIN SYSTEM PROMPT",
	"END SYSTEM PROMPT",
	"<system_instructions>",
	"[INTERNAL INSTRUCTIONS]",
}

// tailWindow bounds the rolling context kept between chunks. Must be at
// least as long as the longest marker.
const tailWindow = 256

// =============================================================================
// LEAK FILTER
// =============================================================================

// Filter inspects one message's content stream for leak markers.
type Filter struct {
	mu      sync.Mutex
	markers []string

	// held is delivered text withheld because it ends in a marker prefix.
	held string
	// tail is the lowercased context window for cross-chunk matching.
	tail    string
	blocked int
}

// New creates a filter with the given markers; nil uses DefaultMarkers.
func New(markers []string) *Filter {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &Filter{markers: lowered}
}

// AppendAndCheck adds chunk to the rolling window and returns the text
// cleared for delivery. An empty return means the chunk completed a marker
// and was suppressed, or everything is being held back as a possible
// marker prefix until more of the stream arrives.
func (f *Filter) AppendAndCheck(chunk string) string {
	if chunk == "" {
		return ""
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	window := f.tail + strings.ToLower(chunk)
	for _, marker := range f.markers {
		if strings.Contains(window, marker) {
			f.blocked++
			// Drop the poisoned window so one marker does not suppress
			// every following chunk. The held tail goes with it: it may
			// carry the marker's leading fragment.
			f.held = ""
			f.tail = ""
			return ""
		}
	}

	if len(window) > tailWindow {
		window = window[len(window)-tailWindow:]
	}
	f.tail = window

	combined := f.held + chunk
	cut := len(combined) - f.prefixHold(combined)
	f.held = combined[cut:]
	return combined[:cut]
}

// prefixHold returns the length of the longest suffix of text that is a
// proper prefix of one of the markers. Delivering such a suffix would be
// irrevocable if the next chunk completed the marker.
func (f *Filter) prefixHold(text string) int {
	hold := 0
	for _, marker := range f.markers {
		max := len(marker) - 1
		if max > len(text) {
			max = len(text)
		}
		for k := max; k > hold; k-- {
			if strings.EqualFold(text[len(text)-k:], marker[:k]) {
				hold = k
				break
			}
		}
	}
	return hold
}

// Drain releases the held-back tail. Called at stream end, when no further
// chunk can complete a marker; an unfinished prefix is ordinary text.
func (f *Filter) Drain() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rest := f.held
	f.held = ""
	return rest
}

// BlockedCount returns how many chunks were suppressed.
func (f *Filter) BlockedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

// Reset clears the rolling window and any held-back text. Called at
// session teardown.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = ""
	f.tail = ""
}
