// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.Triggered())
	go l.Trigger()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for latch.")
	}
	assert.True(t, l.Triggered())
	l.Trigger() // No-op.
	l.Wait()
}

func TestBarrier(t *testing.T) {
	const parties = 8
	const rounds = 50
	b := NewBarrier(parties)
	assert.Equal(t, parties, b.Parties())

	// Each round every party increments its own slot, and after the barrier checks that all
	// other slots reached the same round.
	var slots [parties]atomic.Int32
	var failures atomic.Int32
	var wg sync.WaitGroup
	for party := range parties {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range rounds {
				slots[party].Store(int32(round + 1))
				runtime.Gosched()
				if !b.Wait() {
					failures.Add(1)
					return
				}
				for other := range parties {
					if slots[other].Load() < int32(round+1) {
						failures.Add(1)
					}
				}
				if !b.Wait() {
					failures.Add(1)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
}

func TestBarrierBreak(t *testing.T) {
	b := NewBarrier(3)
	done := make(chan bool, 2)
	for range 2 {
		go func() { done <- b.Wait() }()
	}
	time.Sleep(10 * time.Millisecond)
	b.Break()
	for range 2 {
		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Timeout: Break didn't release waiting parties.")
		}
	}
	require.True(t, b.IsBroken())
	assert.False(t, b.Wait())
	assert.Panics(t, func() { NewBarrier(0) })
}
