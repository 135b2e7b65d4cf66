// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history archives finished messages in a local SQLite database so
// past replies stay searchable after their conversations are pruned from
// memory or rotated out of the JSON store.
package history
