// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package buffer implements the throttled content buffer: the per-message
// accumulator that turns many small text increments into few large
// downstream deliveries.
//
// A Buffer never drops input. Every append lands in a pending accumulator
// first; a flush moves pending into the committed accumulator and delivers
// the full committed text (not the delta) downstream, so a consumer that
// missed an intermediate state self-heals on the next delivery.
//
// Flushes fire on a pending-size threshold, on an elapsed-time threshold,
// or via a delayed timer that bounds staleness when the producer trickles.
package buffer
