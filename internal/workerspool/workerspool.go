// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks, like the work-groups of a kernel launch, on a
// bounded number of goroutines.
package workerspool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Pool of workers. The zero value is not usable, create it with New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time.
	// 0 disables parallelism (tasks run inline), and < 0 means unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the limit of tasks running concurrently.
// If 0 parallelism is disabled, if -1 it is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// It should only be changed while no tasks are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available to run the task, and starts it in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// Dispatch runs task(idx) for every idx in [0, numTasks) and waits for all of them to finish.
//
// Tasks are handed out in contiguous chunks, one chunk per worker. The first error stops the
// dispatch of further tasks and is returned, as is the context error if ctx is cancelled.
func (w *Pool) Dispatch(ctx context.Context, numTasks int, task func(idx int) error) error {
	if numTasks <= 0 {
		return nil
	}
	numWorkers := w.maxParallelism
	if numWorkers < 0 || numWorkers > numTasks {
		numWorkers = numTasks
	}
	if numWorkers <= 1 {
		for idx := range numTasks {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "dispatch interrupted at task %d of %d", idx, numTasks)
			}
			if err := task(idx); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		next     atomic.Int64
		firstErr error
		errOnce  sync.Once
		failed   atomic.Bool
		wg       sync.WaitGroup
	)
	setErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
		failed.Store(true)
	}
	chunk := max(1, numTasks/(numWorkers*4))
	for range numWorkers {
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			for !failed.Load() {
				if err := ctx.Err(); err != nil {
					setErr(errors.Wrap(err, "dispatch interrupted"))
					return
				}
				start := int(next.Add(int64(chunk))) - chunk
				if start >= numTasks {
					return
				}
				end := min(start+chunk, numTasks)
				for idx := start; idx < end; idx++ {
					if err := task(idx); err != nil {
						setErr(err)
						return
					}
				}
			}
		})
	}
	wg.Wait()
	return firstErr
}
