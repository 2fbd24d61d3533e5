// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"context"
	"sync"

	"github.com/gomlx/clbench/backends"
	"github.com/gomlx/clbench/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kernel implements backends.Kernel for a parsed program.
type Kernel struct {
	backend *Backend
	prog    *program

	mu   sync.Mutex
	args []backends.Arg

	// groupsPool allows reuse of groupState across work-groups and launches.
	groupsPool sync.Pool
}

var _ backends.Kernel = (*Kernel)(nil)

func newKernel(backend *Backend, prog *program) *Kernel {
	return &Kernel{
		backend: backend,
		prog:    prog,
		args:    make([]backends.Arg, len(prog.params)),
	}
}

// Name implements backends.Kernel.
func (k *Kernel) Name() string { return k.prog.name }

// NumArgs implements backends.Kernel.
func (k *Kernel) NumArgs() int { return len(k.prog.params) }

// SetArg implements backends.Kernel.
//
// Local parameters take a backends.LocalArg, global ones a backends.BufferArg with a buffer whose
// access matches the parameter: read-only (const) parameters can't take write-only buffers and
// written parameters can't take read-only buffers.
func (k *Kernel) SetArg(index int, arg backends.Arg) error {
	if index < 0 || index >= len(k.prog.params) {
		return errors.Errorf("kernel %q: invalid argument index %d, it has %d parameters", k.prog.name, index, len(k.prog.params))
	}
	prm := k.prog.params[index]
	switch a := arg.(type) {
	case backends.LocalArg:
		if prm.space != localSpace {
			return errors.Errorf("kernel %q: argument #%d (%q) is a global pointer, it can't take local memory", k.prog.name, index, prm.name)
		}
		if a.NumElements <= 0 {
			return errors.Errorf("kernel %q: argument #%d (%q) requires a positive local memory size, got %d", k.prog.name, index, prm.name, a.NumElements)
		}
	case backends.BufferArg:
		if prm.space != globalSpace {
			return errors.Errorf("kernel %q: argument #%d (%q) is a local pointer, it can't take a buffer", k.prog.name, index, prm.name)
		}
		buf, ok := a.Buffer.(*Buffer)
		if !ok || buf == nil {
			return errors.Errorf("kernel %q: argument #%d (%q) buffer of type %T is not from the %s backend", k.prog.name, index, prm.name, a.Buffer, BackendName)
		}
		if prm.readOnly && buf.access == backends.WriteOnly {
			return errors.Errorf("kernel %q: argument #%d (%q) is read by the kernel, but the buffer is write-only", k.prog.name, index, prm.name)
		}
		if !prm.readOnly && buf.access == backends.ReadOnly {
			return errors.Errorf("kernel %q: argument #%d (%q) may be written by the kernel, but the buffer is read-only", k.prog.name, index, prm.name)
		}
	default:
		return errors.Errorf("kernel %q: argument #%d (%q) has unknown type %T", k.prog.name, index, prm.name, arg)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.args == nil {
		return errors.Errorf("kernel %q has been finalized", k.prog.name)
	}
	k.args[index] = arg
	return nil
}

// Finalize implements backends.Kernel.
func (k *Kernel) Finalize() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.args = nil
}

// launch holds the parameters of one Enqueue call.
type launch struct {
	globalSize, localSize int

	// globalMem has the data of the global buffers, and localSizes the number of elements of
	// each local argument, indexed by parameter.
	globalMem  [][]float32
	localSizes []int
}

// Enqueue implements backends.Kernel. It blocks until all work-groups are executed.
func (k *Kernel) Enqueue(ctx context.Context, globalSize, localSize int) error {
	if err := k.backend.checkValid(0); err != nil {
		return err
	}
	if localSize <= 0 || globalSize <= 0 || globalSize%localSize != 0 {
		return errors.Errorf("kernel %q: global size (%d) must be a positive multiple of the local size (%d)", k.prog.name, globalSize, localSize)
	}
	l := &launch{
		globalSize: globalSize,
		localSize:  localSize,
		globalMem:  make([][]float32, len(k.prog.params)),
		localSizes: make([]int, len(k.prog.params)),
	}
	k.mu.Lock()
	if k.args == nil {
		k.mu.Unlock()
		return errors.Errorf("kernel %q has been finalized", k.prog.name)
	}
	for ii, arg := range k.args {
		switch a := arg.(type) {
		case nil:
			k.mu.Unlock()
			return errors.Errorf("kernel %q: argument #%d (%q) not set", k.prog.name, ii, k.prog.params[ii].name)
		case backends.LocalArg:
			l.localSizes[ii] = a.NumElements
		case backends.BufferArg:
			l.globalMem[ii] = a.Buffer.(*Buffer).data
			if l.globalMem[ii] == nil {
				k.mu.Unlock()
				return errors.Errorf("kernel %q: argument #%d (%q) buffer has been finalized", k.prog.name, ii, k.prog.params[ii].name)
			}
		}
	}
	k.mu.Unlock()

	numGroups := globalSize / localSize
	cfg := k.backend.config
	klog.V(2).Infof("simplego: launching %q with %d groups of %d lanes, scheduler=%s", k.prog.name, numGroups, localSize, cfg.Scheduler)
	err := k.backend.pool.Dispatch(ctx, numGroups, func(groupIdx int) error {
		g := k.getGroup(l)
		defer k.groupsPool.Put(g)
		g.start(groupIdx)
		if cfg.Scheduler == Lanes {
			return g.runLanes(k.prog, cfg)
		}
		return g.runLockstep(k.prog.body)
	})
	if err != nil {
		return errors.WithMessagef(err, "kernel %q failed", k.prog.name)
	}
	return nil
}

// groupState holds the state of one work-group during execution.
type groupState struct {
	launch                *launch
	id                    int
	localSize, globalSize int

	// mem is indexed by parameter: global buffers data or this group's local memory.
	mem [][]float32

	lanes    []lane
	laneInts []int

	// Lockstep scheduler only: active masks by nesting depth, and the values and indices of a store.
	masks   [][]bool
	values  []float32
	indices []int

	// Lanes scheduler only: barrier is nil if the program has no barriers.
	barrier *xsync.Barrier
}

// lane is a work-item.
type lane struct {
	group             *groupState
	ints              []int
	globalID, localID int
	err               error
}

// fail records the first error of the lane.
func (l *lane) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// getGroup returns a groupState for the launch, reusing a pooled one if possible.
func (k *Kernel) getGroup(l *launch) *groupState {
	numSlots := k.prog.numSlots
	if pooled, ok := k.groupsPool.Get().(*groupState); ok && pooled.launch == l {
		return pooled
	}
	g := &groupState{
		launch:     l,
		localSize:  l.localSize,
		globalSize: l.globalSize,
		mem:        make([][]float32, len(l.globalMem)),
		lanes:      make([]lane, l.localSize),
		laneInts:   make([]int, l.localSize*numSlots),
		values:     make([]float32, l.localSize),
		indices:    make([]int, l.localSize),
	}
	for ii := range g.mem {
		if l.globalMem[ii] != nil {
			g.mem[ii] = l.globalMem[ii]
		} else {
			g.mem[ii] = make([]float32, l.localSizes[ii])
		}
	}
	for ii := range g.lanes {
		g.lanes[ii] = lane{group: g, ints: g.laneInts[ii*numSlots : (ii+1)*numSlots], localID: ii}
	}
	return g
}

// start resets the group state to execute work-group id.
func (g *groupState) start(id int) {
	g.id = id
	for ii, n := range g.launch.localSizes {
		if n > 0 {
			clear(g.mem[ii])
		}
	}
	clear(g.laneInts)
	for ii := range g.lanes {
		l := &g.lanes[ii]
		l.globalID = id*g.localSize + ii
		l.err = nil
	}
}

// mask returns the active mask for the given nesting depth.
func (g *groupState) mask(depth int) []bool {
	for len(g.masks) <= depth {
		g.masks = append(g.masks, make([]bool, g.localSize))
	}
	return g.masks[depth]
}

// laneErr returns the first error of an active lane.
func (g *groupState) laneErr(active []bool) error {
	for ii := range g.lanes {
		if active[ii] && g.lanes[ii].err != nil {
			return g.lanes[ii].err
		}
	}
	return nil
}

// runLockstep executes the body for all lanes of the group, one statement at a time.
func (g *groupState) runLockstep(body []stmt) error {
	active := g.mask(0)
	for ii := range active {
		active[ii] = true
	}
	return g.execBlock(body, active, 0)
}

func (g *groupState) execBlock(stmts []stmt, active []bool, depth int) error {
	for _, s := range stmts {
		if err := g.execStmt(s, active, depth); err != nil {
			return err
		}
	}
	return nil
}

func (g *groupState) execDecl(s *declStmt, active []bool) error {
	for ii := range g.lanes {
		if active[ii] {
			l := &g.lanes[ii]
			l.ints[s.slot] = s.value(l)
		}
	}
	return g.laneErr(active)
}

func (g *groupState) execStmt(s stmt, active []bool, depth int) error {
	switch s := s.(type) {
	case *declStmt:
		return g.execDecl(s, active)

	case *storeStmt:
		// All active lanes read before any of them writes.
		for ii := range g.lanes {
			if active[ii] {
				l := &g.lanes[ii]
				g.values[ii] = s.value(l)
				g.indices[ii] = s.index(l)
			}
		}
		if err := g.laneErr(active); err != nil {
			return err
		}
		mem := g.mem[s.param]
		for ii := range g.lanes {
			if !active[ii] {
				continue
			}
			idx := g.indices[ii]
			if idx < 0 || idx >= len(mem) {
				return errors.Errorf("lane %d: out of bounds write at index %d, buffer has %d elements", g.lanes[ii].globalID, idx, len(mem))
			}
			if s.accumulate {
				mem[idx] += g.values[ii]
			} else {
				mem[idx] = g.values[ii]
			}
		}
		return nil

	case *barrierStmt:
		for ii := range active {
			if !active[ii] {
				return errors.Errorf("%s: barrier not reached by all lanes of the work-group (lane %d is inactive)", s.pos, ii)
			}
		}
		return nil

	case *ifStmt:
		sub := g.mask(depth + 1)
		anyActive := false
		for ii := range g.lanes {
			sub[ii] = active[ii] && s.cond(&g.lanes[ii]) != 0
			anyActive = anyActive || sub[ii]
		}
		if err := g.laneErr(active); err != nil {
			return err
		}
		if !anyActive {
			return nil
		}
		return g.execBlock(s.body, sub, depth+1)

	case *forStmt:
		if err := g.execDecl(s.init, active); err != nil {
			return err
		}
		for {
			cont, err := g.uniformCond(s, active)
			if err != nil || !cont {
				return err
			}
			if err := g.execBlock(s.body, active, depth); err != nil {
				return err
			}
			if err := g.execDecl(s.step, active); err != nil {
				return err
			}
		}
	}
	return errors.Errorf("simplego: unknown statement type %T", s)
}

// uniformCond evaluates the loop condition for all active lanes, which must agree.
func (g *groupState) uniformCond(s *forStmt, active []bool) (bool, error) {
	first, result := true, false
	for ii := range g.lanes {
		if !active[ii] {
			continue
		}
		cond := s.cond(&g.lanes[ii]) != 0
		if first {
			first, result = false, cond
		} else if cond != result {
			return false, errors.Errorf("%s: loop condition diverges across lanes, not supported by the lockstep scheduler", s.pos)
		}
	}
	return result, g.laneErr(active)
}
