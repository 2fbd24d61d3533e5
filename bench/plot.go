// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SweepPoint is the throughput measured for one local size.
type SweepPoint struct {
	LocalSize        int
	GigaOpsPerSecond float64
}

// PlotSweep saves a plot of the throughput as a function of the local size. The image format is
// taken from the path extension, e.g. ".png" or ".svg".
func PlotSweep(path, title string, points []SweepPoint) error {
	if len(points) == 0 {
		return errors.New("PlotSweep: no points to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "local size"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Label.Text = "GigaOps/s"
	p.Y.Min = 0

	xys := make(plotter.XYs, len(points))
	for ii, point := range points {
		xys[ii].X = float64(point.LocalSize)
		xys[ii].Y = point.GigaOpsPerSecond
	}
	line, scatter, err := plotter.NewLinePoints(xys)
	if err != nil {
		return errors.Wrap(err, "PlotSweep: invalid points")
	}
	p.Add(plotter.NewGrid(), line, scatter)
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "PlotSweep: failed to save %q", path)
	}
	return nil
}
