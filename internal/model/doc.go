// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// These are plain records: the coordinator owns all mutation during
// streaming and persistence serializes them as-is. The only concurrency
// device here is the Channel enum, which every coordinator operation
// threads through instead of branching on duplicated text/image paths.
package model
