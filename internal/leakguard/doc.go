// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package leakguard filters streamed content chunks for system-prompt leak
// markers before they reach the UI buffers.
//
// One Filter instance serves one message. AppendAndCheck returns the chunk
// unchanged when it is clean and the empty string when it must be
// suppressed; a marker split across chunk boundaries is still caught
// because the filter keeps a rolling tail of recent text.
package leakguard
