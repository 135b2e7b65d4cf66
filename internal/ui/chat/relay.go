// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Relay forwards coordinator messages to the running Bubble Tea program.
// The coordinator is built before the program exists, so messages sent
// before Attach are buffered and replayed in order on attachment.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

// NewRelay creates an unattached relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Send delivers a message to the program, or buffers it if the program is
// not attached yet. Safe for concurrent use from session goroutines.
func (r *Relay) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	if p == nil {
		r.backlog = append(r.backlog, msg)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(msg)
}

// Attach binds the relay to a program and flushes the backlog.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	backlog := r.backlog
	r.backlog = nil
	r.mu.Unlock()

	for _, msg := range backlog {
		p.Send(msg)
	}
}
