// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry tracks the per-message resource bundle through its
// lifecycle.
package registry

import (
	"sync"

	"github.com/jeranaias/rigrun-mobile/internal/buffer"
	"github.com/jeranaias/rigrun-mobile/internal/leakguard"
	"github.com/jeranaias/rigrun-mobile/internal/model"
	"github.com/jeranaias/rigrun-mobile/internal/projector"
	"github.com/jeranaias/rigrun-mobile/internal/reassembly"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// DefaultPressureThreshold is the bundle count that triggers the aggressive
// sweep when memory pressure is checked.
const DefaultPressureThreshold = 64

// terminalSetCap bounds the terminal-event dedup set.
const terminalSetCap = 256

// Forgetter drops per-message metrics when a bundle is reclaimed.
type Forgetter interface {
	Forget(messageID string)
}

// =============================================================================
// RESOURCE BUNDLE
// =============================================================================

// Bundle is the per-message resource set the coordinator works with.
type Bundle struct {
	MessageID   string
	Channel     model.Channel
	Buffer      *buffer.Buffer
	Reassembler *reassembly.Processor
	Filter      *leakguard.Filter
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps message ids to resource bundles and reclaims them when no
// channel can reach them anymore.
type Registry struct {
	mu sync.Mutex

	bundles map[string]*Bundle
	proj    *projector.Projector
	metrics Forgetter

	pressureThreshold int

	// Terminal-event dedup: ids whose Finish/StreamEnd has been processed.
	terminalSeen  map[string]struct{}
	terminalOrder []string
}

// New creates a registry. proj is used to release projection cells when a
// bundle is deleted; metrics may be nil; pressureThreshold <= 0 uses the
// default.
func New(proj *projector.Projector, metrics Forgetter, pressureThreshold int) *Registry {
	if pressureThreshold <= 0 {
		pressureThreshold = DefaultPressureThreshold
	}
	return &Registry{
		bundles:           make(map[string]*Bundle),
		proj:              proj,
		metrics:           metrics,
		pressureThreshold: pressureThreshold,
		terminalSeen:      make(map[string]struct{}),
	}
}

// Register stores a bundle for a message id. Any prior bundle for the same
// id is fully released first so a retried resend never mixes deltas from
// the old session into the new buffer.
func (r *Registry) Register(b *Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.bundles[b.MessageID]; ok {
		r.releaseLocked(old)
	}
	r.bundles[b.MessageID] = b
}

// Get returns the bundle for a message id.
func (r *Registry) Get(messageID string) (*Bundle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bundles[messageID]
	return b, ok
}

// Remove releases and deletes the bundle for a message id.
func (r *Registry) Remove(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bundles[messageID]; ok {
		r.releaseLocked(b)
		delete(r.bundles, messageID)
	}
}

// RemoveBundle releases and deletes b only if it is still the registered
// bundle for its message id. A session tearing down uses this so it cannot
// reclaim a successor's freshly registered bundle for the same id.
func (r *Registry) RemoveBundle(b *Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bundles[b.MessageID]; ok && cur == b {
		r.releaseLocked(b)
		delete(r.bundles, b.MessageID)
	}
}

// Count returns the number of live bundles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

// releaseLocked clears a bundle's resources. Caller holds r.mu.
func (r *Registry) releaseLocked(b *Bundle) {
	if b.Buffer != nil {
		b.Buffer.Clear()
	}
	if b.Filter != nil {
		b.Filter.Reset()
	}
	if b.Reassembler != nil {
		b.Reassembler.Reset()
	}
	if r.proj != nil {
		r.proj.ClearStreamingState(b.MessageID)
	}
	if r.metrics != nil {
		r.metrics.Forget(b.MessageID)
	}
}

// =============================================================================
// SWEEPS
// =============================================================================

// SweepChannel removes every bundle on the channel whose message id is
// neither in the visible set nor the channel's active streaming id.
// Returns the number of bundles reclaimed.
func (r *Registry) SweepChannel(channel model.Channel, visible map[string]struct{}, activeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reclaimed := 0
	for id, b := range r.bundles {
		if b.Channel != channel {
			continue
		}
		if id == activeID {
			continue
		}
		if _, ok := visible[id]; ok {
			continue
		}
		r.releaseLocked(b)
		delete(r.bundles, id)
		reclaimed++
	}
	return reclaimed
}

// CheckPressure performs the aggressive sweep if the bundle count has
// reached the pressure threshold: both channels are swept against the
// union of visible and active ids, and the terminal dedup set is cleared.
// Returns the number of bundles reclaimed.
func (r *Registry) CheckPressure(visible map[model.Channel]map[string]struct{}, active map[model.Channel]string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.bundles) < r.pressureThreshold {
		return 0
	}

	keep := make(map[string]struct{})
	for _, ch := range model.Channels {
		for id := range visible[ch] {
			keep[id] = struct{}{}
		}
		if id := active[ch]; id != "" {
			keep[id] = struct{}{}
		}
	}

	reclaimed := 0
	for id, b := range r.bundles {
		if _, ok := keep[id]; ok {
			continue
		}
		r.releaseLocked(b)
		delete(r.bundles, id)
		reclaimed++
	}

	r.terminalSeen = make(map[string]struct{})
	r.terminalOrder = nil
	return reclaimed
}

// =============================================================================
// TERMINAL DEDUP SET
// =============================================================================

// MarkTerminal records that a terminal event was processed for a message
// id. Returns false if one was already processed (the duplicate must be
// ignored). The set is bounded; the oldest entries fall out first.
func (r *Registry) MarkTerminal(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.terminalSeen[messageID]; seen {
		return false
	}

	r.terminalSeen[messageID] = struct{}{}
	r.terminalOrder = append(r.terminalOrder, messageID)
	if len(r.terminalOrder) > terminalSetCap {
		oldest := r.terminalOrder[0]
		r.terminalOrder = r.terminalOrder[1:]
		delete(r.terminalSeen, oldest)
	}
	return true
}
