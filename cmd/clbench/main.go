// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// clbench generates a kernel from a build string, runs it on a compute backend and reports its throughput.
//
// Usage:
//
//	clbench [flags] <build_string> [nmb] [local_size]
//
// Examples of build strings: "X=Y*Z" (element-wise multiply) or "S:=A*B+C" (multiply-add reduced
// per work-group). The positional nmb and local_size take precedence over the flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/backends"
	_ "github.com/gomlx/clbench/backends/simplego"
	"github.com/gomlx/clbench/bench"
	"github.com/gomlx/clbench/pkg/support/fsutil"
	"github.com/gomlx/clbench/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagNMB = flag.Int("nmb", bench.DefaultNMB, "Number of work-items, in units of 1024*1024. "+
		"Overridden by the second positional argument.")
	flagLocalSize = flag.Int("local_size", bench.DefaultLocalSize, "Number of work-items per work-group, "+
		"a power of two >= 8. Overridden by the third positional argument.")
	flagIterations = flag.Int("iterations", 1, "Number of timed kernel launches. The best one is reported.")
	flagWarmup     = flag.Int("warmup", 0, "Number of untimed kernel launches before the timed ones.")
	flagBackend    = flag.String("backend", "", fmt.Sprintf("Backend configuration, e.g. \"go:lanes\". "+
		"If empty, uses $%s or the first registered backend.", backends.ConfigEnvVar))
	flagEmit    = flag.Bool("emit", false, "Print the generated kernel source and exit.")
	flagVerify  = flag.Bool("verify", true, "Verify the output against values computed on the host.")
	flagResults = flag.String("results", "", "Directory where results are appended to a CSV log. "+
		"If empty results are not logged.")
	flagTag   = flag.String("tag", "", "Tag of the benchmarked operation: it names the results log \"results_<tag>.csv\".")
	flagSweep = xslices.Flag("sweep", nil, "Comma-separated list of local sizes to benchmark, instead of --local_size.",
		strconv.Atoi)
	flagPlot = flag.String("plot", "", "Path of an image with the throughput for each of the --sweep local sizes.")

	flagProgress = flag.Bool("progress", true, "Display a progress bar over the iterations.")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <build_string> [nmb] [local_size]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Build string is a required argument. See 'clbench -help'.")
		os.Exit(1)
	}
	if len(args) > 3 {
		klog.Errorf("Too many arguments. See 'clbench -help'.")
		os.Exit(1)
	}
	cfg, err := configFromArgs(args)
	if err != nil {
		klog.Fatalf("%v", err)
	}

	if *flagEmit {
		res, err := autogen.Compile(cfg.BuildString)
		if err != nil {
			klog.Fatalf("Bad auto generation of kernel code: %v", err)
		}
		fmt.Printf("Generated:\n%s\n\n", res.Source)
		return
	}

	localSizes := []int{cfg.LocalSize}
	if len(*flagSweep) > 0 {
		localSizes = *flagSweep
	}
	if *flagPlot != "" && len(localSizes) < 2 {
		klog.Warningf("--plot is only useful with a --sweep of local sizes")
	}

	backend := newBackend()
	defer backend.Finalize()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	runID := bench.NewRunID()
	var (
		records []bench.Record
		points  []bench.SweepPoint
	)
	for _, localSize := range localSizes {
		cfg.LocalSize = localSize
		if err := cfg.Validate(); err != nil {
			klog.Fatalf("%v", err)
		}
		progress := newIterationProgress(cfg)
		m, err := bench.Run(ctx, backend, cfg, progress.onIteration)
		progress.done()
		if err != nil {
			klog.Fatalf("Benchmark of %q failed: %+v", cfg.BuildString, err)
		}
		klog.V(1).Infof("Generated:\n%s", m.Result.Source)
		printSummary(m)
		_, _ = fmt.Fprintf(os.Stderr, "%8d\t%4d\t%10d\t%10.3f GigaMultsPerSecond\n",
			cfg.NMB, cfg.LocalSize, cfg.NumWorkGroups(), m.GigaOpsPerSecond())
		records = append(records, m.Record(runID, *flagTag))
		points = append(points, bench.SweepPoint{LocalSize: cfg.LocalSize, GigaOpsPerSecond: m.GigaOpsPerSecond()})
	}
	if len(points) > 1 {
		printSweep(cfg, points)
	}

	if *flagResults != "" {
		path := bench.ResultsFileName(fsutil.MustReplaceTildeInDir(*flagResults), *flagTag)
		must.M(bench.AppendCSV(path, records))
		klog.Infof("Results appended to %q", path)
	}
	if *flagPlot != "" {
		path := fsutil.MustReplaceTildeInDir(*flagPlot)
		must.M(bench.PlotSweep(path, cfg.BuildString, points))
		klog.Infof("Sweep plot saved to %q", path)
	}
}

// configFromArgs builds the benchmark configuration from the flags and positional arguments.
func configFromArgs(args []string) (bench.Config, error) {
	cfg := bench.DefaultConfig(args[0])
	cfg.NMB = *flagNMB
	cfg.LocalSize = *flagLocalSize
	cfg.Iterations = *flagIterations
	cfg.Warmup = *flagWarmup
	cfg.Verify = *flagVerify
	var err error
	if len(args) >= 2 {
		if cfg.NMB, err = strconv.Atoi(args[1]); err != nil {
			return cfg, errors.Wrapf(err, "invalid nmb %q", args[1])
		}
		if cfg.NMB < 1 {
			return cfg, errors.Errorf("nmb must be greater or equal to one, got %d", cfg.NMB)
		}
	}
	if len(args) >= 3 {
		if cfg.LocalSize, err = strconv.Atoi(args[2]); err != nil {
			return cfg, errors.Wrapf(err, "invalid local_size %q", args[2])
		}
		if cfg.LocalSize < bench.MinLocalSize {
			return cfg, errors.Errorf("local_size must be greater or equal to %d, got %d", bench.MinLocalSize, cfg.LocalSize)
		}
	}
	return cfg, nil
}

func newBackend() backends.Backend {
	if *flagBackend != "" {
		return backends.MustNewWithConfig(*flagBackend)
	}
	backend, err := backends.NewOrErr()
	if err != nil {
		klog.Fatalf("Failed to create backend: %+v", err)
	}
	return backend
}
