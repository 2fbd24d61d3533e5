// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/gomlx/clbench/pkg/support/xsync"
	"github.com/pkg/errors"
)

// errBarrierBroken is returned by lanes waiting on a barrier that was broken by another lane.
var errBarrierBroken = errors.New("work-group barrier broken")

// runLanes executes each lane of the group in its own goroutine, synchronizing them only at barriers.
//
// All lanes are started together once their goroutines exist. With cfg.Jitter the lanes yield at
// random points between statements, seeded from cfg.Seed and the lane global id, to exercise
// different interleavings.
func (g *groupState) runLanes(prog *program, cfg Config) error {
	g.barrier = nil
	if prog.hasBarrier {
		g.barrier = xsync.NewBarrier(g.localSize)
	}
	start := xsync.NewLatch()
	errs := make([]error, g.localSize)
	var wg sync.WaitGroup
	for ii := range g.lanes {
		wg.Add(1)
		go func(l *lane) {
			defer wg.Done()
			var rng *rand.Rand
			if cfg.Jitter {
				rng = rand.New(rand.NewPCG(cfg.Seed, uint64(l.globalID)))
			}
			start.Wait()
			err := l.execBlock(prog.body, rng)
			if err != nil {
				errs[l.localID] = err
			}
			// A lane that returned won't reach any later barrier: lanes still waiting would block forever.
			if g.barrier != nil {
				g.barrier.Break()
			}
		}(&g.lanes[ii])
	}
	start.Trigger()
	wg.Wait()

	var brokenErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, errBarrierBroken) {
			return err
		}
		if brokenErr == nil {
			brokenErr = err
		}
	}
	return brokenErr
}

func (l *lane) execBlock(stmts []stmt, rng *rand.Rand) error {
	for _, s := range stmts {
		if rng != nil && rng.IntN(2) == 0 {
			runtime.Gosched()
		}
		if err := l.execStmt(s, rng); err != nil {
			return err
		}
		if l.err != nil {
			return l.err
		}
	}
	return nil
}

func (l *lane) execStmt(s stmt, rng *rand.Rand) error {
	switch s := s.(type) {
	case *declStmt:
		l.ints[s.slot] = s.value(l)

	case *storeStmt:
		idx := s.index(l)
		value := s.value(l)
		if l.err != nil {
			return l.err
		}
		mem := l.group.mem[s.param]
		if idx < 0 || idx >= len(mem) {
			return errors.Errorf("lane %d: out of bounds write at index %d, buffer has %d elements", l.globalID, idx, len(mem))
		}
		if s.accumulate {
			mem[idx] += value
		} else {
			mem[idx] = value
		}

	case *barrierStmt:
		if !l.group.barrier.Wait() {
			return errors.WithMessagef(errBarrierBroken, "%s: lane %d", s.pos, l.globalID)
		}

	case *ifStmt:
		if s.cond(l) != 0 {
			return l.execBlock(s.body, rng)
		}

	case *forStmt:
		l.ints[s.init.slot] = s.init.value(l)
		for l.err == nil && s.cond(l) != 0 {
			if err := l.execBlock(s.body, rng); err != nil {
				return err
			}
			l.ints[s.step.slot] = s.step.value(l)
		}

	default:
		return errors.Errorf("simplego: unknown statement type %T", s)
	}
	return l.err
}
