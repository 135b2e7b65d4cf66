// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
	"time"
)

func TestNewThemeInitializesStyles(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}
	// Styles must render without panicking regardless of terminal profile.
	out := theme.AssistantBubble.Render("hello")
	if !strings.Contains(out, "hello") {
		t.Errorf("rendered output lost content: %q", out)
	}
}

func TestLayoutMode(t *testing.T) {
	theme := NewTheme()
	cases := []struct {
		width int
		mode  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
		{200, LayoutWide},
	}
	for _, tc := range cases {
		theme.SetSize(tc.width, 40)
		if got := theme.GetLayoutMode(); got != tc.mode {
			t.Errorf("width %d: mode = %v, want %v", tc.width, got, tc.mode)
		}
	}
}

func TestSpinnerDuration(t *testing.T) {
	if DotsSpinner.Duration() != time.Second/6 {
		t.Errorf("dots duration = %v", DotsSpinner.Duration())
	}
	if len(LineSpinner.Frames) == 0 {
		t.Error("line spinner has no frames")
	}
}

func TestStatusIndicatorsAreASCII(t *testing.T) {
	for _, s := range []string{
		StatusIndicators.Success, StatusIndicators.Error,
		StatusIndicators.Warning, StatusIndicators.Info,
		StatusIndicators.Paused,
	} {
		for _, r := range s {
			if r > 127 {
				t.Errorf("indicator %q contains non-ASCII rune", s)
			}
		}
	}
}
