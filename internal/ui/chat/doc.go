// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat implements the Bubble Tea chat screen for the rigrun mobile
client.

The screen owns the conversation viewport, the input area, and the status
bar. It never touches stream events directly: the coordinator runs the
sessions and posts messages (ProjectionUpdatedMsg, SessionFinishedMsg,
RetryRequestMsg, ...) through a Relay attached to the running program, and
the screen re-renders from coordinator.BubbleState on every update.

Per-message rendering follows the derived bubble phase:

  - connecting: spinner with a "connecting" affordance
  - reasoning:  dimmed reasoning tail above a spinner
  - streaming:  raw projected text (markdown is only rendered once complete)
  - complete:   Glamour-rendered markdown, plus image link and tool activity
  - error:      error bubble with the surfaced failure text

Key bindings: enter sends on the text channel, ctrl+g sends on the image
channel, esc cancels in-flight replies, ctrl+p toggles the global stream
pause, ctrl+l sweeps unreferenced stream resources, ctrl+c quits.
*/
package chat
