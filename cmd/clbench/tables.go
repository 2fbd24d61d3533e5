// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/bench"
	"github.com/gomlx/clbench/pkg/support/xslices"
	"golang.org/x/exp/constraints"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

// humanizeCount formats integer counts with thousands separators.
func humanizeCount[T constraints.Integer](n T) string {
	return humanize.Comma(int64(n))
}

func printSummary(m *bench.Measurement) {
	cfg, res := m.Config, m.Result
	fmt.Println(titleStyle.Render(fmt.Sprintf("Benchmark %q", cfg.BuildString)))
	table := newPlainTable(false)
	table.Row("backend", m.Backend)
	table.Row("mode", res.Mode.String())
	table.Row("variables", strings.Join(xslices.Map(res.Variables, autogen.Variable.String), " "))
	table.Row("# elements", humanizeCount(cfg.NumElements()))
	table.Row("local size", humanizeCount(cfg.LocalSize))
	table.Row("# work-groups", humanizeCount(cfg.NumWorkGroups()))
	table.Row("iterations", humanizeCount(len(m.Durations)))
	table.Row("best", m.Best().String())
	table.Row("mean", m.Mean().String())
	table.Row("GigaMults/s", fmt.Sprintf("%.3f", m.GigaOpsPerSecond()))
	table.Row("GFLOPS", fmt.Sprintf("%.3f", m.GFLOPS()))
	table.Row("memory moved", humanize.Bytes(uint64(m.BytesMoved())))
	table.Row("bandwidth", humanize.Bytes(uint64(float64(m.BytesMoved())/m.Best().Seconds()))+"/s")
	table.Row("checksum", humanize.FormatFloat("#,###.###", m.Checksum))
	if cfg.Verify {
		verified := "ok"
		if !m.Verified {
			verified = fmt.Sprintf("%s mismatches", humanizeCount(m.Mismatches))
		}
		table.Row("verified", verified)
	}
	fmt.Println(table.Render())
}

func printSweep(cfg bench.Config, points []bench.SweepPoint) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Local size sweep of %q", cfg.BuildString)))
	table := newPlainTable(true)
	table.Headers("local size", "# work-groups", "GigaMults/s")
	for _, point := range points {
		table.Row(humanizeCount(point.LocalSize), humanizeCount(cfg.NumElements()/point.LocalSize),
			fmt.Sprintf("%.3f", point.GigaOpsPerSecond))
	}
	fmt.Println(table.Render())
}
