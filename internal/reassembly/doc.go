// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reassembly turns raw streaming events into a structured message.
//
// One Processor instance serves one message. It accumulates content and
// reasoning text separately, folds tool and code-execution activity into
// renderable markdown segments, and produces the finalized message record
// when the stream ends.
package reassembly
