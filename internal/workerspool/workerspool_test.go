// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/clbench/pkg/support/xsync"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(2)
	var running, maxRunning atomic.Int32
	done := xsync.NewLatch()
	var finished atomic.Int32
	const numTasks = 10
	for range numTasks {
		pool.WaitToStart(func() {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			if finished.Add(1) == numTasks {
				done.Trigger()
			}
		})
	}
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout before all tasks were executed.")
	}
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))

	// No parallelism: runs inline.
	pool.SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())
	var count int
	pool.WaitToStart(func() { count++ })
	assert.Equal(t, 1, count)
}

func TestPool_Dispatch(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		const numTasks = 1000
		var visited [numTasks]atomic.Int32
		err := pool.Dispatch(context.Background(), numTasks, func(idx int) error {
			visited[idx].Add(1)
			return nil
		})
		require.NoError(t, err)
		for idx := range numTasks {
			require.Equalf(t, int32(1), visited[idx].Load(), "parallelism=%d, task %d", parallelism, idx)
		}
	}
}

func TestPool_DispatchError(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(4)
	errBoom := errors.New("boom")
	err := pool.Dispatch(context.Background(), 100, func(idx int) error {
		if idx == 17 {
			return errBoom
		}
		return nil
	})
	require.ErrorIs(t, err, errBoom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pool.Dispatch(ctx, 100, func(int) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
