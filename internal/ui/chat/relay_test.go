// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
)

func TestRelayBuffersBeforeAttach(t *testing.T) {
	r := NewRelay()
	r.Send("one")
	r.Send("two")

	r.mu.Lock()
	n := len(r.backlog)
	r.mu.Unlock()
	if n != 2 {
		t.Errorf("backlog = %d, want 2", n)
	}
}

func TestRelayConcurrentSends(t *testing.T) {
	r := NewRelay()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r.Send(j)
			}
		}()
	}
	wg.Wait()

	r.mu.Lock()
	n := len(r.backlog)
	r.mu.Unlock()
	if n != 400 {
		t.Errorf("backlog = %d, want 400", n)
	}
}
