// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry tracks the per-message resource bundle (buffer,
// projection cell, reassembler, leak filter) through its lifecycle.
//
// While a session is active its bundle is owned by that session; after
// teardown, ownership passes here, and the registry is the only component
// that deletes bundles. Sweeps are conservative: a bundle survives as long
// as its message id is visible on its channel or is the channel's active
// streaming id. Under memory pressure the sweep widens to the union of
// both channels and also trims the terminal-event dedup set.
package registry
