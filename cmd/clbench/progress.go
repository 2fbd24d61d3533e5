// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gomlx/clbench/bench"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// iterationProgress displays a progress bar over the timed iterations of a benchmark.
// A nil *iterationProgress is valid and displays nothing.
type iterationProgress struct {
	bar     *progressbar.ProgressBar
	termenv *termenv.Output
}

func newIterationProgress(cfg bench.Config) *iterationProgress {
	if !*flagProgress {
		return nil
	}
	p := &iterationProgress{termenv: termenv.NewOutput(os.Stderr)}
	p.bar = progressbar.NewOptions(cfg.Iterations,
		progressbar.OptionSetDescription(fmt.Sprintf("local_size=%-5d", cfg.LocalSize)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("launches"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
	p.termenv.HideCursor()
	return p
}

func (p *iterationProgress) onIteration(_ int, _ time.Duration) {
	if p == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *iterationProgress) done() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
	p.termenv.ShowCursor()
}
