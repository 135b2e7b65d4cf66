// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the rigrun mobile
client's chat screen.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The Theme struct bundles the styles the chat view renders with:
message bubbles for each role, the dimmed reasoning block, streaming
affordances (spinner, tool activity), and the header/status/input chrome.

	theme := styles.NewTheme()
	out := theme.AssistantBubble.Render(content)

Layout adapts to the terminal width via GetLayoutMode; the narrow mode is
the primary target since the client runs on phone-sized terminals.

Status states additionally carry ASCII shape indicators (StatusIndicators)
so they stay readable without color.
*/
package styles
