// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package ipc

import (
	"log/slog"
	"math"
	"sync"

	errs "openagent/terminal/internal/errors"
)

// Partition is a named, non-overlapping sub-range of the 64-bit request id
// space, owned by exactly one subsystem. Disjoint partitions keep ids from
// colliding across consumers sharing one channel.
type Partition struct {
	Name string
	Min  uint64
	Max  uint64
}

// Built-in partitions. The interactive flow owns [0,9999]; the session
// manager owns [10000,max].
var (
	PartitionInteractive = Partition{Name: "interactive", Min: 0, Max: 9999}
	PartitionSessions    = Partition{Name: "sessions", Min: 10000, Max: math.MaxUint64}
)

func (p Partition) overlaps(q Partition) bool {
	return p.Min <= q.Max && q.Min <= p.Max
}

// IDSource issues request ids strictly within one partition. The counter
// starts at Min and wraps to Min+1 once it would exceed Max, so the first id
// issued is Min+1 and Min itself is never used as a live id.
type IDSource struct {
	p   Partition
	log *slog.Logger

	mu   sync.Mutex
	next uint64
}

// NextID returns the next id in the partition, wrapping with a warning.
func (s *IDSource) NextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	if s.next > s.p.Max || s.next <= s.p.Min {
		s.log.Warn("request id wrapped around", "partition", s.p.Name, "max", s.p.Max)
		s.next = s.p.Min + 1
	}
	return s.next
}

// Partition returns the partition this source draws from.
func (s *IDSource) Partition() Partition { return s.p }

// partitionSet tracks registered partitions and rejects overlap.
type partitionSet struct {
	mu    sync.Mutex
	taken []Partition
}

func (ps *partitionSet) register(p Partition, log *slog.Logger) (*IDSource, error) {
	if p.Min >= p.Max {
		return nil, errs.New(errs.BadPartition, "partition range is empty")
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, q := range ps.taken {
		if p.overlaps(q) {
			return nil, errs.New(errs.BadPartition, "partition overlaps "+q.Name)
		}
	}
	ps.taken = append(ps.taken, p)
	return &IDSource{p: p, log: log, next: p.Min}, nil
}
