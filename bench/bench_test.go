// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/backends"
	"github.com/gomlx/clbench/backends/simplego"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) backends.Backend {
	b, err := simplego.New("")
	require.NoError(t, err)
	t.Cleanup(b.Finalize)
	return b
}

func testConfig(buildString string, localSize int) Config {
	cfg := DefaultConfig(buildString)
	cfg.NMB = 1
	cfg.LocalSize = localSize
	cfg.Iterations = 2
	cfg.Warmup = 1
	cfg.Verify = true
	return cfg
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig("X=Y*Z")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64*1024*1024, cfg.NumElements())
	assert.Equal(t, 1024*1024, cfg.NumWorkGroups())

	testCases := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"nmb", func(c *Config) { c.NMB = 0 }, "NMB"},
		{"small local size", func(c *Config) { c.LocalSize = 4 }, "greater or equal to 8"},
		{"power of two", func(c *Config) { c.LocalSize = 48 }, "power of two"},
		{"iterations", func(c *Config) { c.Iterations = 0 }, "iterations"},
		{"warmup", func(c *Config) { c.Warmup = -1 }, "warmup"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig("X=Y*Z")
			tc.modify(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestExpectedValue(t *testing.T) {
	sqrt2, sqrt3 := float32(math.Sqrt(2)), float32(math.Sqrt(3))
	assert.Equal(t, float32(0), ExpectedValue(autogen.MustCompile("X=Y")))
	assert.Equal(t, float32(1), ExpectedValue(autogen.MustCompile("X=Y+Z")))
	assert.Equal(t, float32(0), ExpectedValue(autogen.MustCompile("X=Y*Z")))
	assert.Equal(t, float32(1)*sqrt2, ExpectedValue(autogen.MustCompile("X=Y+Z*W")))
	assert.Equal(t, sqrt3, ExpectedValue(autogen.MustCompile("X=Y*Z*W+V")))
}

func TestVerify(t *testing.T) {
	res := autogen.MustCompile("X=Y+Z")
	assert.Equal(t, 0, Verify(res, 8, []float32{1, 1, 1.00001}))
	assert.Equal(t, 2, Verify(res, 8, []float32{1, 0, 2}))

	res = autogen.MustCompile("X:=Y+Z")
	assert.Equal(t, 0, Verify(res, 16, []float32{16, 16}))
	assert.Equal(t, 1, Verify(res, 16, []float32{16, 1}))
}

func TestRunAssignment(t *testing.T) {
	b := newTestBackend(t)
	cfg := testConfig("X=Y*Z+W", 64)
	var iterations []int
	m, err := Run(context.Background(), b, cfg, func(iteration int, elapsed time.Duration) {
		iterations = append(iterations, iteration)
		assert.Greater(t, elapsed, time.Duration(0))
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, iterations)
	require.Len(t, m.Durations, 2)
	assert.LessOrEqual(t, m.Best(), m.Mean())
	assert.True(t, m.Verified)
	assert.Equal(t, 0, m.Mismatches)
	assert.Equal(t, cfg.NumElements(), m.OutputLen())
	assert.Equal(t, int64(4*4*cfg.NumElements()), m.BytesMoved())

	want := float64(cfg.NumElements()) * math.Sqrt(2)
	assert.InDelta(t, want, m.Checksum, want*1e-4)
	assert.Greater(t, m.GigaOpsPerSecond(), 0.0)
	assert.InDelta(t, 2*m.GigaOpsPerSecond(), m.GFLOPS(), 1e-9)
}

func TestRunReduction(t *testing.T) {
	b := newTestBackend(t)
	cfg := testConfig("S:=A*B+C", 32)
	m, err := Run(context.Background(), b, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.NumWorkGroups(), m.OutputLen())
	require.Len(t, m.Output, cfg.NumWorkGroups())
	assert.True(t, m.Verified)
	assert.InDelta(t, 32*math.Sqrt(2), m.Output[0], 1e-3)

	want := float64(cfg.NumElements()) * math.Sqrt(2)
	assert.InDelta(t, want, m.Checksum, want*1e-4)
}

func TestRunErrors(t *testing.T) {
	b := newTestBackend(t)

	cfg := testConfig("X=Y", 4)
	_, err := Run(context.Background(), b, cfg, nil)
	require.ErrorContains(t, err, "local size")

	cfg = testConfig("XY", 8)
	_, err = Run(context.Background(), b, cfg, nil)
	require.True(t, errors.Is(err, autogen.ErrInvalidFormat))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg = testConfig("X=Y", 8)
	_, err = Run(ctx, b, cfg, nil)
	require.ErrorIs(t, err, context.Canceled)
}
