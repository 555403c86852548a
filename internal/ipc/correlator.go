// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package ipc

import (
	"log/slog"
	"sync"

	errs "openagent/terminal/internal/errors"
	"openagent/terminal/internal/protocol"
)

// pendingResult carries a resolved response or a terminal error to the
// waiting caller. Exactly one is delivered per registered id.
type pendingResult struct {
	resp *protocol.Response
	err  error
}

// correlator is the pending-request table: it maps each in-flight request id
// to a one-shot completion channel. An entry is removed exactly once, by a
// matching response, by timeout cleanup, or by connection loss.
type correlator struct {
	log *slog.Logger

	mu      sync.Mutex
	pending map[uint64]chan pendingResult
}

func newCorrelator(log *slog.Logger) *correlator {
	return &correlator{log: log, pending: make(map[uint64]chan pendingResult)}
}

// register creates the completion handle for id. A duplicate id is a fatal
// invariant violation: it cannot happen under correct partitioning.
func (c *correlator) register(id uint64) (<-chan pendingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, errs.New(errs.DuplicateID, "request id already in flight")
	}
	ch := make(chan pendingResult, 1)
	c.pending[id] = ch
	return ch, nil
}

// resolve routes a decoded response to its pending entry. A response with no
// matching entry (stray or duplicate) is logged and dropped.
func (c *correlator) resolve(resp *protocol.Response) {
	id, ok := resp.ID.Number()
	if !ok {
		c.log.Warn("response with non-numeric id dropped", "id", resp.ID.String())
		return
	}
	c.mu.Lock()
	ch, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !found {
		c.log.Warn("response for unknown request id dropped", "id", id)
		return
	}
	ch <- pendingResult{resp: resp}
}

// drop removes the entry for id without resolving it. Used by timeout and
// cancellation cleanup; a no-op when the response already won the race.
func (c *correlator) drop(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAll resolves every pending entry with err. Called on connection loss.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan pendingResult)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- pendingResult{err: err}
	}
}

func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
