// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package ipc

import (
	"context"
	"sync"

	"openagent/terminal/internal/protocol"
)

// notifyQueue is the unbounded delivery queue for server-pushed
// notifications. The read loop pushes in transport arrival order; one
// consumer pulls with Next. Pushing never blocks, so the read loop is never
// stalled by a slow consumer.
type notifyQueue struct {
	mu    sync.Mutex
	items []*protocol.Notification
	wake  chan struct{}
}

func newNotifyQueue() *notifyQueue {
	return &notifyQueue{wake: make(chan struct{}, 1)}
}

func (q *notifyQueue) push(n *protocol.Notification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next returns the oldest queued notification, waiting until one arrives or
// ctx is done. Designed for a single consumer.
func (q *notifyQueue) next(ctx context.Context) (*protocol.Notification, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			n := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return n, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *notifyQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
