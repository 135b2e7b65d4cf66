// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator orchestrates streaming reply sessions.
//
// One session runs per channel (text, image). Starting a session cancels
// the channel's previous one; the event loop re-validates that it is still
// the channel's current session before touching any shared state, so a
// cancelled session's delayed callbacks can never corrupt its successor.
// Teardown always runs, always in the same order: flush the buffers,
// persist partial content, release resources, reset channel flags.
//
// The coordinator exposes its observable surface as Bubble Tea messages so
// the UI layer can consume projection updates and session lifecycle changes
// without polling raw buffers.
package coordinator
