// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projector owns the observable "current full text" cell for each
// in-flight message.
//
// Thread-safety: a single mutex guards the cell map and all cell state;
// observer notifications are serialized separately so committed values are
// observed in commit order.
package projector

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// IntervalStep maps a committed-length floor onto a minimum commit interval.
type IntervalStep struct {
	MinLen   int
	Interval time.Duration
}

// Config holds the projector's merge policy.
type Config struct {
	// Debounce is the window in which appends collapse into one update.
	Debounce time.Duration
	// Steps is the adaptive interval table, sorted by MinLen ascending.
	// The minimum time between commits is the interval of the highest step
	// whose MinLen the committed length has reached.
	Steps []IntervalStep
	// FenceForceSize is the pending size at which the unclosed-fence guard
	// is overridden and the commit happens anyway.
	FenceForceSize int
}

// DefaultConfig returns the merge policy used by the mobile client.
func DefaultConfig() Config {
	return Config{
		Debounce: 50 * time.Millisecond,
		Steps: []IntervalStep{
			{MinLen: 0, Interval: 60 * time.Millisecond},
			{MinLen: 2 * 1024, Interval: 150 * time.Millisecond},
			{MinLen: 8 * 1024, Interval: 300 * time.Millisecond},
			{MinLen: 24 * 1024, Interval: 500 * time.Millisecond},
		},
		FenceForceSize: 4096,
	}
}

// interval returns the minimum commit interval for a committed length.
func (c Config) interval(committedLen int) time.Duration {
	out := c.Debounce
	for _, step := range c.Steps {
		if committedLen >= step.MinLen {
			out = step.Interval
		}
	}
	if out < c.Debounce {
		out = c.Debounce
	}
	return out
}

// Observer receives each committed value for a message.
type Observer func(messageID, content string)

// =============================================================================
// PROJECTION CELL
// =============================================================================

// cell is the per-message projection state.
type cell struct {
	committed  string
	pending    strings.Builder
	lastCommit time.Time
	timer      *time.Timer
	active     bool
	finalized  bool
}

// =============================================================================
// PROJECTOR
// =============================================================================

// Projector manages one projection cell per in-flight message.
type Projector struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	cfg    Config
	notify Observer
	cells  map[string]*cell
}

// New creates a projector. notify may be nil.
func New(cfg Config, notify Observer) *Projector {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultConfig().Steps
	}
	if cfg.FenceForceSize <= 0 {
		cfg.FenceForceSize = DefaultConfig().FenceForceSize
	}
	return &Projector{
		cfg:    cfg,
		notify: notify,
		cells:  make(map[string]*cell),
	}
}

// StartStreaming creates (or reactivates) the cell for a message and marks
// it active. Appends to an unknown id create the cell implicitly; this
// entry point exists so the UI can observe the cell before the first token.
func (p *Projector) StartStreaming(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.cellLocked(messageID)
	c.active = true
	c.finalized = false
}

// AppendText merges delta into the message's pending buffer. The commit is
// deferred by the debounce window and by the adaptive interval; multiple
// appends inside the window collapse into one observable update.
func (p *Projector) AppendText(messageID, delta string) {
	if delta == "" {
		return
	}

	p.mu.Lock()
	c := p.cellLocked(messageID)
	if c.finalized {
		p.mu.Unlock()
		return
	}
	c.pending.WriteString(delta)
	p.scheduleLocked(messageID, c)
	p.mu.Unlock()
}

// UpdateContent replaces the committed value wholesale. Any pending partial
// merge is discarded first: this is a replace, not an append.
func (p *Projector) UpdateContent(messageID, fullText string) {
	p.mu.Lock()
	c := p.cellLocked(messageID)
	c.stopTimer()
	c.pending.Reset()
	c.committed = fullText
	c.lastCommit = time.Now()
	p.notifyLocked(messageID, fullText)
}

// FinalizeMessage forces an unconditional commit of any pending text,
// ignoring the debounce and the fence guard, marks the message inactive,
// and returns the final text. Idempotent: a second call returns the same
// text without appending anything.
func (p *Projector) FinalizeMessage(messageID string) string {
	p.mu.Lock()
	c, ok := p.cells[messageID]
	if !ok {
		p.mu.Unlock()
		return ""
	}
	if c.finalized {
		final := c.committed
		p.mu.Unlock()
		return final
	}

	c.stopTimer()
	c.active = false
	c.finalized = true
	if c.pending.Len() == 0 {
		final := c.committed
		p.mu.Unlock()
		return final
	}

	c.committed += c.pending.String()
	c.pending.Reset()
	c.lastCommit = time.Now()
	final := c.committed
	p.notifyLocked(messageID, final)
	return final
}

// ClearStreamingState removes the cell for a message entirely.
func (p *Projector) ClearStreamingState(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cells[messageID]; ok {
		c.stopTimer()
		delete(p.cells, messageID)
	}
}

// CurrentContent returns the committed observable value for a message.
func (p *Projector) CurrentContent(messageID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cells[messageID]; ok {
		return c.committed
	}
	return ""
}

// IsActive reports whether the message is still streaming.
func (p *Projector) IsActive(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cells[messageID]
	return ok && c.active
}

// =============================================================================
// COMMIT MACHINERY
// =============================================================================

// cellLocked returns the cell for an id, creating it if needed.
func (p *Projector) cellLocked(messageID string) *cell {
	c, ok := p.cells[messageID]
	if !ok {
		c = &cell{lastCommit: time.Now()}
		p.cells[messageID] = c
	}
	return c
}

// scheduleLocked arranges for the pending buffer to be committed once the
// debounce window and adaptive interval allow it.
func (p *Projector) scheduleLocked(messageID string, c *cell) {
	if c.timer != nil {
		return
	}

	wait := p.cfg.Debounce
	minInterval := p.cfg.interval(len(c.committed))
	if since := time.Since(c.lastCommit); since < minInterval {
		if remaining := minInterval - since; remaining > wait {
			wait = remaining
		}
	}

	c.timer = time.AfterFunc(wait, func() { p.tryCommit(messageID) })
}

// tryCommit runs on the timer goroutine and commits the pending buffer if
// the fence guard allows it.
func (p *Projector) tryCommit(messageID string) {
	p.mu.Lock()
	c, ok := p.cells[messageID]
	if !ok {
		p.mu.Unlock()
		return
	}
	c.timer = nil
	if c.finalized || c.pending.Len() == 0 {
		p.mu.Unlock()
		return
	}

	// Structural guard: do not expose a visually broken partial code block
	// unless the pending buffer has grown past the hard force-flush size.
	merged := c.committed + c.pending.String()
	if c.pending.Len() < p.cfg.FenceForceSize && hasUnclosedFence(merged) {
		// Defer; the next append or finalize picks the text up.
		p.mu.Unlock()
		return
	}

	c.committed = merged
	c.pending.Reset()
	c.lastCommit = time.Now()
	p.notifyLocked(messageID, merged)
}

// notifyLocked delivers a committed value to the observer in commit order.
// The caller must hold p.mu; the lock is released before returning.
func (p *Projector) notifyLocked(messageID, content string) {
	notify := p.notify
	p.notifyMu.Lock()
	p.mu.Unlock()
	defer p.notifyMu.Unlock()

	if notify != nil {
		notify(messageID, content)
	}
}

// stopTimer cancels the cell's pending commit timer, if any.
func (c *cell) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// =============================================================================
// FENCE DETECTION
// =============================================================================

// fenceMarker delimits fenced code blocks in markdown.
const fenceMarker = "```"

// hasUnclosedFence reports whether text ends inside a fenced code block,
// i.e. contains an odd number of fence markers.
func hasUnclosedFence(text string) bool {
	return strings.Count(text, fenceMarker)%2 == 1
}
