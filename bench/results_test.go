// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/clbench/autogen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeasurement(buildString string, localSize int) *Measurement {
	cfg := DefaultConfig(buildString)
	cfg.LocalSize = localSize
	return &Measurement{
		Config:    cfg,
		Result:    autogen.MustCompile(buildString),
		Backend:   "test",
		Durations: []time.Duration{2 * time.Millisecond, time.Millisecond},
		Checksum:  42,
	}
}

func TestResultsFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "results.csv"), ResultsFileName("out", ""))
	assert.Equal(t, filepath.Join("out", "results_mul.csv"), ResultsFileName("out", "mul"))
	assert.Equal(t, filepath.Join("out", "results_X_Y_Z.csv"), ResultsFileName("out", "X=Y*Z"))
}

func TestRecord(t *testing.T) {
	m := testMeasurement("X=Y*Z", 64)
	runID := NewRunID()
	assert.Len(t, runID, 36)
	r := m.Record(runID, "mul")
	assert.Equal(t, runID, r.RunID)
	assert.Equal(t, "mul", r.Tag)
	assert.Equal(t, "X=Y*Z", r.BuildString)
	assert.Equal(t, 1024*1024, r.WorkGroups)
	assert.Equal(t, 2, r.Iterations)
	assert.InDelta(t, 1000.0, r.BestMicros, 1e-9)
	assert.InDelta(t, 1500.0, r.MeanMicros, 1e-9)
	assert.InDelta(t, m.GigaOpsPerSecond(), r.GigaOpsPerSecond, 1e-9)
	_, err := time.Parse(time.RFC3339, r.Time)
	require.NoError(t, err)
}

func TestAppendCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "results.csv")
	runID := NewRunID()
	require.NoError(t, AppendCSV(path, nil))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, AppendCSV(path, []Record{
		testMeasurement("X=Y*Z", 64).Record(runID, ""),
		testMeasurement("X:=Y*Z", 128).Record(runID, ""),
	}))
	require.NoError(t, AppendCSV(path, []Record{testMeasurement("X=Y+Z", 8).Record(NewRunID(), "add")}))

	df, err := LoadResults(path)
	require.NoError(t, err)
	require.Equal(t, 3, df.Nrow())
	assert.Equal(t, []string{"X=Y*Z", "X:=Y*Z", "X=Y+Z"}, df.Col("build_string").Records())
	assert.Equal(t, []string{"", "", "add"}, df.Col("tag").Records())
	localSizes, err := df.Col("local_size").Int()
	require.NoError(t, err)
	assert.Equal(t, []int{64, 128, 8}, localSizes)
	assert.Equal(t, []float64{1000, 1000, 1000}, df.Col("best_us").Float())

	_, err = LoadResults(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestPlotSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.png")
	require.Error(t, PlotSweep(path, "empty", nil))
	require.NoError(t, PlotSweep(path, "X=Y*Z", []SweepPoint{
		{LocalSize: 8, GigaOpsPerSecond: 0.5},
		{LocalSize: 16, GigaOpsPerSecond: 0.9},
		{LocalSize: 32, GigaOpsPerSecond: 1.2},
	}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
