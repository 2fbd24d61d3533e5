// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/clbench/bench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromArgs(t *testing.T) {
	cfg, err := configFromArgs([]string{"X=Y*Z"})
	require.NoError(t, err)
	assert.Equal(t, "X=Y*Z", cfg.BuildString)
	assert.Equal(t, bench.DefaultNMB, cfg.NMB)
	assert.Equal(t, bench.DefaultLocalSize, cfg.LocalSize)
	assert.Equal(t, 1, cfg.Iterations)

	cfg, err = configFromArgs([]string{"X:=Y*Z", "2", "128"})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NMB)
	assert.Equal(t, 128, cfg.LocalSize)
	require.NoError(t, cfg.Validate())

	_, err = configFromArgs([]string{"X=Y", "0"})
	require.ErrorContains(t, err, "nmb")
	_, err = configFromArgs([]string{"X=Y", "1", "4"})
	require.ErrorContains(t, err, "local_size")
	_, err = configFromArgs([]string{"X=Y", "one"})
	require.Error(t, err)
}

func TestHumanizeCount(t *testing.T) {
	assert.Equal(t, "1,048,576", humanizeCount(1024*1024))
	assert.Equal(t, "64", humanizeCount(uint8(64)))
	assert.Equal(t, "-1,000", humanizeCount(int64(-1000)))
}
