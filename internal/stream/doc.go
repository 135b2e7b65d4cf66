// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream defines the model-output event taxonomy and the transport
// contract that produces it.
//
// A transport delivers one finite, ordered sequence of Events per reply.
// Everything downstream (buffering, projection, presentation state) consumes
// this taxonomy and nothing else; the wire format is the transport's problem.
package stream
