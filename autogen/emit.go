// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autogen

import (
	"fmt"
	"strings"
)

//go:generate go run ../internal/cmd/golden_generator -output testdata

// KernelName is the entry point of every generated kernel.
const KernelName = "auto_gen"

// LineKind classifies the lines of a generated Kernel.
type LineKind int

const (
	// HeaderLine opens the function and holds the first parameter (the output, and the local
	// scratch buffer for reductions).
	HeaderLine LineKind = iota
	ParamLine
	PrologueLine
	StatementLine
	EpilogueLine
	ClosingLine
)

// String implements fmt.Stringer.
func (k LineKind) String() string {
	switch k {
	case HeaderLine:
		return "Header"
	case ParamLine:
		return "Param"
	case PrologueLine:
		return "Prologue"
	case StatementLine:
		return "Statement"
	case EpilogueLine:
		return "Epilogue"
	case ClosingLine:
		return "Closing"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// Line of kernel source, including its trailing new line (except for the closing brace).
type Line struct {
	Kind LineKind
	Text string
}

// Kernel is the generated kernel program. It's immutable once emitted.
type Kernel struct {
	lines []Line
}

// Source serializes the kernel into the text given to the device compiler.
func (k *Kernel) Source() string {
	var sb strings.Builder
	for _, line := range k.lines {
		sb.WriteString(line.Text)
	}
	return sb.String()
}

// String implements fmt.Stringer, and returns the source.
func (k *Kernel) String() string { return k.Source() }

// Lines returns the lines of the given kinds, or all lines if no kind is given.
func (k *Kernel) Lines(kinds ...LineKind) []Line {
	if len(kinds) == 0 {
		return append([]Line(nil), k.lines...)
	}
	var lines []Line
	for _, line := range k.lines {
		for _, kind := range kinds {
			if line.Kind == kind {
				lines = append(lines, line)
				break
			}
		}
	}
	return lines
}

// Names used in the generated source.
const (
	scratchName    = "rdc"
	globalIDName   = "gid"
	localSizeName  = "n_items"
	localIDName    = "t_num"
	groupIDName    = "work_group_num"
	paramIndent    = "\t\t     "
	barrierLocal   = "barrier(CLK_LOCAL_MEM_FENCE);"
	globalParamFmt = "global float *%s"
	inputParamFmt  = "global const float *%s"
)

// kernelEmitter accumulates the lines of a Kernel.
type kernelEmitter struct {
	lines []Line
}

func (e *kernelEmitter) add(kind LineKind, format string, args ...any) {
	e.lines = append(e.lines, Line{Kind: kind, Text: fmt.Sprintf(format, args...)})
}

// emit generates the kernel for the given mode, operators and variables.
// vars must hold len(ops)+2 variables, the first one being the output.
func emit(mode Mode, ops []Op, vars []Variable) *Kernel {
	e := &kernelEmitter{}
	output, inputs := vars[0], vars[1:]

	// Parameters.
	if mode == Reduction {
		e.add(HeaderLine, "kernel void %s(local float *%s, "+globalParamFmt+",\n", KernelName, scratchName, output)
	} else {
		e.add(HeaderLine, "kernel void %s("+globalParamFmt+",\n", KernelName, output)
	}
	for ii, v := range inputs {
		if ii == len(inputs)-1 {
			e.add(ParamLine, paramIndent+inputParamFmt+") {\n", v)
		} else {
			e.add(ParamLine, paramIndent+inputParamFmt+",\n", v)
		}
	}

	// Prologue.
	e.add(PrologueLine, "\tint %s = get_global_id(0);\n", globalIDName)
	if mode == Reduction {
		e.add(PrologueLine, "\tint %s = get_local_size(0);\n", localSizeName)
		e.add(PrologueLine, "\tint %s = get_local_id(0);\n", localIDName)
		e.add(PrologueLine, "\tint %s = get_group_id(0);\n", groupIDName)
	}

	// Statement chain.
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s]", inputs[0], globalIDName)
	for ii, op := range ops {
		fmt.Fprintf(&sb, " %s %s[%s]", op.Symbol(), inputs[ii+1], globalIDName)
	}
	if mode == Reduction {
		e.add(StatementLine, "\t%s[%s] = %s;\n", scratchName, localIDName, sb.String())
		e.emitTreeReduction(output)
	} else {
		e.add(StatementLine, "\t%s[%s] = %s;\n", output, globalIDName, sb.String())
	}

	e.add(ClosingLine, "}")
	return &Kernel{lines: e.lines}
}

// emitTreeReduction sums the scratch buffer of the work-group with a binary tree: at each step
// lanes whose index is a multiple of 2*offset add the partial sum offset lanes away.
// The barrier precedes every read of a neighbor's partial sum, and lane 0 alone writes the result.
func (e *kernelEmitter) emitTreeReduction(output Variable) {
	e.add(EpilogueLine, "\tfor (int offset = 1; offset < %s; offset *= 2) {\n", localSizeName)
	e.add(EpilogueLine, "\t\tint mask = 2 * offset - 1;\n")
	e.add(EpilogueLine, "\t\t%s\n", barrierLocal)
	e.add(EpilogueLine, "\t\tif ((%s & mask) == 0) {\n", localIDName)
	e.add(EpilogueLine, "\t\t\t%[1]s[%[2]s] += %[1]s[%[2]s + offset];\n", scratchName, localIDName)
	e.add(EpilogueLine, "\t\t}\n")
	e.add(EpilogueLine, "\t}\n")
	e.add(EpilogueLine, "\t%s\n", barrierLocal)
	e.add(EpilogueLine, "\tif(%s == 0) {\n", localIDName)
	e.add(EpilogueLine, "\t\t%s[%s]=%s[0];\n", output, groupIDName, scratchName)
	e.add(EpilogueLine, "\t}\n")
}
