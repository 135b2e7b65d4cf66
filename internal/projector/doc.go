// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projector owns the observable "current full text" cell for each
// in-flight message.
//
// The projector sits downstream of the throttled content buffer and applies
// its own, independent merge policy: bursts of appends collapse into one
// observable update per debounce window, the minimum time between updates
// grows with the committed length (large text is expensive to re-render),
// and a commit that would expose an unclosed fenced code block is deferred
// until the fence closes or a hard force-flush size is reached.
//
// Finalization bypasses every guard, is idempotent, and returns the
// stabilized final text.
package projector
