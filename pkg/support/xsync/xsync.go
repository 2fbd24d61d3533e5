// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements some extra synchronization tools.
package xsync

import "sync"

// Latch is a one-shot signal: goroutines block on Wait until Trigger is called, and from then on
// Wait returns immediately.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// NewLatch returns a Latch not yet triggered.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Trigger releases all current and future waiters. Extra calls are no-ops.
func (l *Latch) Trigger() {
	l.once.Do(func() { close(l.done) })
}

// Wait blocks until the latch is triggered.
func (l *Latch) Wait() {
	<-l.done
}

// Triggered reports whether Trigger was called.
func (l *Latch) Triggered() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the latch is triggered, to be used in a select.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Barrier is a reusable (cyclic) barrier for a fixed number of parties: each call to Wait blocks
// until all parties have called Wait, at which point they are all released and the barrier resets
// for the next round.
//
// Everything written by any party before its Wait call happens-before anything any party does
// after returning from the same round.
type Barrier struct {
	mu         sync.Mutex
	cond       sync.Cond
	parties    int
	arrived    int
	generation uint64
	broken     bool
}

// NewBarrier returns a Barrier for the given number of parties, which must be > 0.
func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic("xsync.NewBarrier: parties must be > 0")
	}
	b := &Barrier{parties: parties}
	b.cond.L = &b.mu
	return b
}

// Parties returns the number of parties that must call Wait for each round to complete.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until all parties have called Wait in the current round.
//
// It returns false if the barrier was broken (see Break) before the round completed, in which case
// the caller should abandon whatever it was synchronizing.
func (b *Barrier) Wait() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return false
	}
	generation := b.generation
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return true
	}
	for generation == b.generation && !b.broken {
		b.cond.Wait()
	}
	return generation != b.generation
}

// Break the barrier: all current and future calls to Wait return false immediately.
// Used when one of the parties fails and won't reach the barrier.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = true
	b.cond.Broadcast()
}

// IsBroken returns whether Break has been called.
func (b *Barrier) IsBroken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}
