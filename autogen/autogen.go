// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package autogen compiles build strings into OpenCL kernel source.
//
// A build string describes a chain of elementwise multiplications and additions over float
// buffers, optionally reduced over each work-group:
//
//	"X=Y*Z+W"   ->  A[gid] = B[gid] * C[gid] + D[gid];
//	"X:=Y*Z"    ->  rdc[t_num] = B[gid] * C[gid]; followed by a tree reduction into A[work_group_num].
//
// Only the mode marker at offsets 1-2 ("=" or ":=") and the positions of '+' and '*' after it
// matter: operands are always named 'A' (the output), 'B', 'C', ... in order, whatever letters
// were written.
//
// Compile is a pure function and can be called concurrently.
package autogen

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Result of compiling a build string.
type Result struct {
	// BuildString that was compiled.
	BuildString string

	// Kernel is the generated program, and Source its serialized text.
	Kernel *Kernel
	Source string

	Mode         Mode
	UseReduction bool

	// Ops in the order they were found.
	Ops []Op

	// Variables in allocation order: Variables[0] is the output (or reduction accumulator),
	// the others are read-only inputs.
	Variables    []Variable
	NumVariables int

	// OpTag is meant to distinguish result logs by operation shape.
	// Compile never sets it.
	OpTag string
}

// KernelName returns the entry point of the generated kernel.
func (r *Result) KernelName() string { return KernelName }

// NumInputs returns the number of read-only input buffers.
func (r *Result) NumInputs() int { return r.NumVariables - 1 }

// GoodBuild checks that the kernel has more than one variable.
//
// It never fails for a Result returned by Compile, since classification always allocates the
// output and the first operand.
func (r *Result) GoodBuild() error {
	if r.NumVariables <= 1 {
		return errors.Wrapf(ErrInsufficientVariables, "build string %q has %d variables", r.BuildString, r.NumVariables)
	}
	return nil
}

// Compile the build string into a kernel.
//
// Errors wrap ErrInvalidFormat or ErrTooManyOperands, test them with errors.Is.
func Compile(buildString string) (*Result, error) {
	mode, offset, err := classify(buildString)
	if err != nil {
		return nil, err
	}
	if mode == Reduction {
		klog.V(1).Infof("autogen: %q uses a reduction", buildString)
	}
	ops := scan(buildString[offset:])
	vars, err := allocate(ops)
	if err != nil {
		return nil, errors.WithMessagef(err, "build string %q", buildString)
	}
	kernel := emit(mode, ops, vars)
	return &Result{
		BuildString:  buildString,
		Kernel:       kernel,
		Source:       kernel.Source(),
		Mode:         mode,
		UseReduction: mode == Reduction,
		Ops:          ops,
		Variables:    vars,
		NumVariables: len(vars),
	}, nil
}

// MustCompile is like Compile, but panics with the error.
func MustCompile(buildString string) *Result {
	r, err := Compile(buildString)
	if err != nil {
		exceptions.Panicf("autogen.MustCompile: %+v", err)
	}
	return r
}
