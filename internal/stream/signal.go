// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"context"
	"sync"
)

// Signal is a shared cancellation flag with change notification. One Signal
// belongs to the operation initiator and is observed by the streaming loop
// and any prompt it spawns; it is reset before each new operation so a stale
// set flag never leaks into the next one.
//
// Cancellation is cooperative: observers react at their own wait points.
type Signal struct {
	mu   sync.Mutex
	set  bool
	done chan struct{}
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set flips the flag to true and wakes every observer. Idempotent.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.done)
}

// Reset clears the flag for the next operation.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.done = make(chan struct{})
	}
}

// Cancelled reports the current flag value.
func (s *Signal) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Done returns a channel closed when the flag becomes set. After a Reset the
// channel must be re-obtained; callers hold it only for the span of one wait.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Context derives a context cancelled when the signal is set, for waits that
// take a context rather than a channel. Callers must call stop to release
// the watcher goroutine.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := s.Done()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
