// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides streaming performance metrics for rigrun mobile.
//
// This package aggregates flush statistics from the throttled content
// buffers: how many flushes each message needed, how many bytes went in,
// and how many update deliveries the UI actually saw. The ratio of the two
// is the batching win the coordinator exists to provide.
//
// # Key Types
//
//   - FlushMetrics: Aggregate flush statistics, safe for concurrent use
//   - MessageStats: Per-message flush breakdown
//
// # Privacy
//
// Metrics are local-only and never transmitted. Message content is never
// stored - only counts and byte sizes.
package telemetry
