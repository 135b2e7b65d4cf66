// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bubble derives the per-message presentation state consumed by the
// UI layer.
//
// DeriveState is a pure function over session flags and timing inputs; the
// UI picks a rendering mode from the result without ever inspecting raw
// buffers. ConnectTimer implements the minimum-connect-display guard: a
// wall-clock window that keeps the "connecting" affordance visible even
// when the first token arrives near-instantly.
package bubble
