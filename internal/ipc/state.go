// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package ipc

import (
	"fmt"
	"sync"
	"time"
)

// Phase enumerates the connection lifecycle phases.
type Phase int

const (
	// Disconnected means no connection exists and none is being attempted.
	Disconnected Phase = iota
	// Connecting means a dial attempt is in progress.
	Connecting
	// Connected means the channel is operational.
	Connected
	// Reconnecting means a dial failed or the connection was lost, and a
	// retry is pending after backoff.
	Reconnecting
	// Failed means retries were exhausted. Only an explicit Connect or
	// Reconnect call leaves this state.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the connection state machine. Attempt is set only
// while reconnecting.
type State struct {
	Phase   Phase
	Attempt int
}

func (s State) String() string {
	if s.Phase == Reconnecting {
		return fmt.Sprintf("reconnecting (attempt %d)", s.Attempt)
	}
	return s.Phase.String()
}

// StateObserver receives every state transition, in order. Observers are
// invoked synchronously from connection goroutines and must not block.
type StateObserver func(State)

// stateTracker holds the current state and fans transitions out to observers.
type stateTracker struct {
	mu        sync.Mutex
	cur       State
	observers []StateObserver
}

func (t *stateTracker) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

func (t *stateTracker) observe(fn StateObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *stateTracker) set(s State) {
	t.mu.Lock()
	if t.cur == s {
		t.mu.Unlock()
		return
	}
	t.cur = s
	observers := make([]StateObserver, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// backoffDelay returns the wait before reconnection attempt n (1-based):
// base * 2^(n-1). The wait sequence is monotonically non-decreasing.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}
