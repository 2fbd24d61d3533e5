// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(e int) string { return strconv.Itoa(e * 2) })
	assert.Equal(t, []string{"2", "4", "6"}, got)
	assert.Empty(t, Map([]int(nil), strconv.Itoa))
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	sizes := FlagSetVar(fs, "sizes", []int{64}, "sizes", strconv.Atoi)
	require.NoError(t, fs.Parse(nil))
	assert.Equal(t, []int{64}, *sizes)
	assert.Equal(t, "64", fs.Lookup("sizes").Value.String())

	require.NoError(t, fs.Parse([]string{"-sizes=8, 16,32"}))
	assert.Equal(t, []int{8, 16, 32}, *sizes)
	assert.Equal(t, "8,16,32", fs.Lookup("sizes").Value.String())

	require.Error(t, fs.Parse([]string{"-sizes=8,x"}))
	assert.Equal(t, []int{8, 16, 32}, *sizes)
}
