// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autogen

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Op is an elementwise binary operator of the expression chain.
type Op int

const (
	Add Op = iota
	Multiply
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case Add:
		return "Add"
	case Multiply:
		return "Multiply"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Symbol returns the operator as written in the kernel source.
func (op Op) Symbol() string {
	if op == Multiply {
		return "*"
	}
	return "+"
}

// opSymbols are the only characters the scanner looks for.
const opSymbols = "+*"

// scan returns the operators found in remainder, left to right.
//
// Precedence is not considered and the text around the operator characters is ignored: any '+' or
// '*' anywhere in remainder counts.
func scan(remainder string) []Op {
	var ops []Op
	for cursor := 0; ; {
		idx := strings.IndexAny(remainder[cursor:], opSymbols)
		if idx < 0 {
			return ops
		}
		cursor += idx
		if remainder[cursor] == '*' {
			ops = append(ops, Multiply)
		} else {
			ops = append(ops, Add)
		}
		cursor++
	}
}

// MaxVariables is the size of the variable namespace, the letters 'A' to 'Z'.
const MaxVariables = 26

// Variable is the single-letter name of a kernel buffer parameter.
type Variable byte

// String implements fmt.Stringer.
func (v Variable) String() string { return string(rune(v)) }

// Index of the variable in allocation order: 'A' is 0.
func (v Variable) Index() int { return int(v - 'A') }

// allocator hands out variable names in order. It's a value: next returns the advanced allocator.
type allocator struct {
	count int
}

func (a allocator) next() (Variable, allocator, error) {
	if a.count >= MaxVariables {
		return 0, a, errors.Wrapf(ErrTooManyOperands, "only %d variables ('A' to 'Z') are available", MaxVariables)
	}
	return Variable('A' + a.count), allocator{count: a.count + 1}, nil
}

// allocate returns the variables for an expression with the given operators: the output 'A',
// the first operand 'B' and one more per operator.
func allocate(ops []Op) ([]Variable, error) {
	vars := make([]Variable, 0, len(ops)+2)
	var alloc allocator
	for range len(ops) + 2 {
		var v Variable
		var err error
		v, alloc, err = alloc.next()
		if err != nil {
			return nil, errors.WithMessagef(err, "expression with %d operators needs %d variables", len(ops), len(ops)+2)
		}
		vars = append(vars, v)
	}
	return vars, nil
}
