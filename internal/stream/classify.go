// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream defines the model-output event taxonomy and the transport
// contract that produces it.
//
// This file classifies transport failures so the session manager can decide
// between retrying silently and surfacing an error to the user.
package stream

import "strings"

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// retryablePatterns are lowercase substrings that indicate a transient
// network failure worth retrying. Matching is deliberately loose: providers
// wrap the same underlying socket errors in many shapes.
var retryablePatterns = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"unreachable",
	"socket",
	"no such host",
	"temporary failure",
	"eof",
}

// IsRetryable reports whether an error message looks like a transient
// network failure. Empty messages are not retryable.
func IsRetryable(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
