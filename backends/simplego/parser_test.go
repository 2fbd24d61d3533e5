// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/backends"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "..", "autogen", "testdata", "*.cl"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, file := range files {
		source := string(must.M1(os.ReadFile(file)))
		prog, err := parse(source, autogen.KernelName)
		require.NoErrorf(t, err, "parsing %s", file)
		assert.Equal(t, autogen.KernelName, prog.name)
		assert.NotEmpty(t, prog.body)
	}
}

func TestParseReduction(t *testing.T) {
	prog, err := parse(autogen.MustCompile("X:=Y*Z").Source, autogen.KernelName)
	require.NoError(t, err)
	require.Len(t, prog.params, 4)
	assert.Equal(t, param{name: "rdc", space: localSpace}, prog.params[0])
	assert.Equal(t, param{name: "A", space: globalSpace}, prog.params[1])
	assert.Equal(t, param{name: "B", space: globalSpace, readOnly: true}, prog.params[2])
	assert.True(t, prog.hasBarrier)
	// gid, n_items, t_num, work_group_num, offset and mask.
	assert.Equal(t, 6, prog.numSlots)

	prog, err = parse(autogen.MustCompile("X=Y").Source, autogen.KernelName)
	require.NoError(t, err)
	assert.False(t, prog.hasBarrier)
	assert.Equal(t, 1, prog.numSlots)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name, source, want string
	}{
		{"entry point", "kernel void other(global float *A) { }", "not found"},
		{"const store", "kernel void f(global const float *A) { A[0] = A[1]; }", "pointer to const"},
		{"undeclared", "kernel void f(global float *A) { A[i] = A[0]; }", "undeclared identifier \"i\""},
		{"private param", "kernel void f(float *A) { }", "global or local"},
		{"missing brace", "kernel void f(global float *A) { int i = 0;", "missing '}'"},
		{"trailing", "kernel void f(global float *A) { } }", "after the end"},
		{"duplicate", "kernel void f(global float *A, global float *A) { }", "duplicate parameter"},
		{"dimension", "kernel void f(global float *A) { int i = get_global_id(1); }", "dimension must be 0"},
		{"shadow", "kernel void f(global float *A) { int A = 0; }", "shadows"},
		{"float index", "kernel void f(global float *A) { A[A[0]] = A[0]; }", "expected an int expression"},
		{"loop step", "kernel void f(global float *A) { int j = 0; for (int i = 0; i < 4; j++) { } }", "loop variable"},
		{"barrier fence", "kernel void f(global float *A) { barrier(0); }", "CLK_LOCAL_MEM_FENCE"},
		{"keyword", "kernel void f(global float *A) { int for = 0; }", "reserved word"},
		{"float modulo", "kernel void f(global float *A) { A[0] = A[1] % A[2]; }", "only supported for int"},
		{"bad char", "kernel void f(global float *A) { int i = 'a; }", ""},
		{"logical and", "kernel void f(global float *A) { if (1 < 2 && 2 < 3) { } }", `got "&"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(tc.source, "f")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

// runSource runs a kernel with a single global read-write buffer, initialized with the given values.
func runSource(b backends.Backend, source string, data []float32, localSize int) ([]float32, error) {
	k, err := b.CreateProgram(source, "f")
	if err != nil {
		return nil, err
	}
	buf := must.M1(b.NewBuffer(0, len(data), backends.ReadWrite))
	must.M(buf.Write(data))
	must.M(k.SetArg(0, backends.BufferArg{Buffer: buf}))
	if err := k.Enqueue(context.Background(), len(data), localSize); err != nil {
		return nil, err
	}
	result := make([]float32, len(data))
	must.M(buf.Read(result))
	return result, nil
}

func TestControlFlow(t *testing.T) {
	// Each element becomes 2^(lid % 4) times itself; elements of odd groups are also incremented by itself.
	source := `
kernel void f(global float *A) {
	int lid = get_local_id(0);
	int gid = get_global_id(0);
	// Comments are skipped.
	for (int i = 0; i < lid % 4; i++) {
		A[gid] += A[gid];
	}
	if (get_group_id(0) % 2 != 0) {
		A[gid] = A[gid] + A[gid];
	}
}`
	data := []float32{1, 1, 1, 1, 1, 2, 3, 4}
	for _, scheduler := range []string{"lanes", "lanes,jitter"} {
		b := must.M1(New(scheduler))
		got, err := runSource(b, source, data, 4)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 4, 8, 2, 8, 24, 64}, got)
		b.Finalize()
	}

	// The lockstep scheduler requires uniform loops.
	b := must.M1(New("lockstep"))
	defer b.Finalize()
	_, err := runSource(b, source, data, 4)
	require.ErrorContains(t, err, "loop condition diverges")

	_, err = runSource(b, "kernel void f(global float *A) { int z = 0; A[0] = A[1 / z]; }", data, 4)
	require.ErrorContains(t, err, "division by zero")
}

func TestDecrementingLoop(t *testing.T) {
	source := `
kernel void f(global float *A) {
	int gid = get_global_id(0);
	for (int i = 3; i > 0; i -= 1) {
		A[gid] = A[gid] + A[gid];
	}
}`
	data := []float32{1, 2, 3, 4}
	for _, scheduler := range []string{"lockstep", "lanes"} {
		b := must.M1(New(scheduler))
		got, err := runSource(b, source, data, 4)
		require.NoError(t, err)
		assert.Equal(t, []float32{8, 16, 24, 32}, got)
		b.Finalize()
	}
}

func TestRunLanesBarrier(t *testing.T) {
	for _, expr := range []string{"X=Y", "X:=Y*Z"} {
		prog, err := parse(autogen.MustCompile(expr).Source, autogen.KernelName)
		require.NoError(t, err)
		g := &groupState{localSize: 2, lanes: make([]lane, 2)}
		require.NoError(t, g.runLanes(&program{hasBarrier: prog.hasBarrier}, Config{}))
		assert.Equalf(t, prog.hasBarrier, g.barrier != nil, "barrier allocation for %q", expr)
	}

	// Without barriers a failing lane doesn't affect the others.
	b := must.M1(New("lanes"))
	defer b.Finalize()
	_, err := runSource(b, "kernel void f(global float *A) { int z = get_local_id(0); A[z] = A[1 / z]; }", make([]float32, 4), 4)
	require.ErrorContains(t, err, "division by zero")
	require.NotErrorIs(t, err, errBarrierBroken)
}

func TestDivergentBarrier(t *testing.T) {
	source := `
kernel void f(global float *A) {
	int lid = get_local_id(0);
	if (lid == 0) {
		barrier(CLK_LOCAL_MEM_FENCE);
	}
	A[lid] = A[lid];
}`
	data := make([]float32, 4)
	b := must.M1(New("lockstep"))
	_, err := runSource(b, source, data, 4)
	require.ErrorContains(t, err, "barrier not reached by all lanes")
	b.Finalize()

	b = must.M1(New("lanes"))
	_, err = runSource(b, source, data, 4)
	require.ErrorIs(t, err, errBarrierBroken)
	b.Finalize()
}

func TestLockstepStoreOrder(t *testing.T) {
	// All lanes read before any lane writes: a shift by one reads the values from before the store.
	source := `
kernel void f(global float *A) {
	int lid = get_local_id(0);
	if (lid < get_local_size(0) - 1) {
		A[lid] = A[lid + 1];
	}
}`
	b := must.M1(New("lockstep"))
	defer b.Finalize()
	got, err := runSource(b, source, []float32{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 4}, got)
}
