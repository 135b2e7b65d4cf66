// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persist stores conversations on disk as JSON and debounces the
// save traffic generated by streaming.
//
// The store writes atomically with fsync so a crash mid-save never corrupts
// an existing conversation file. The saver sits between the coordinator and
// the store: streaming produces save requests on every content flush, far
// too many to honor individually, so non-forced requests are rate limited
// and coalesced into a trailing save.
package persist
