// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bench runs the kernel generated from a build string on a backend and measures its throughput.
//
// Each input buffer i (0-based) is filled with the constant sqrt(i), and the kernel is launched
// over NMB*1024*1024 work-items, in work-groups of LocalSize.
package bench

import (
	"context"
	"math"
	"math/bits"
	"time"

	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultNMB is the default number of work-items, in units of 1024*1024.
	DefaultNMB = 64

	// DefaultLocalSize is the default number of work-items per work-group.
	DefaultLocalSize = 64

	// MinLocalSize is the smallest accepted work-group size.
	MinLocalSize = 8

	// Tolerance is the relative error accepted by Verify.
	Tolerance = 1e-4
)

// Config of one benchmark run.
type Config struct {
	BuildString string

	// NMB is the number of work-items in units of 1024*1024.
	NMB int

	// LocalSize is the number of work-items per work-group. It must be a power of two.
	LocalSize int

	// Iterations is the number of timed kernel launches, and Warmup the number of untimed ones before them.
	Iterations, Warmup int

	// Verify the output against the values computed on the host.
	Verify bool
}

// DefaultConfig returns a Config with the default sizes and a single timed iteration.
func DefaultConfig(buildString string) Config {
	return Config{
		BuildString: buildString,
		NMB:         DefaultNMB,
		LocalSize:   DefaultLocalSize,
		Iterations:  1,
	}
}

// NumElements is the total number of work-items.
func (c Config) NumElements() int { return c.NMB * 1024 * 1024 }

// NumWorkGroups is the number of work-groups of the launch.
func (c Config) NumWorkGroups() int { return c.NumElements() / c.LocalSize }

// Validate returns an error if the configuration can't be run.
func (c Config) Validate() error {
	if c.NMB < 1 {
		return errors.Errorf("NMB must be greater or equal to one, got %d", c.NMB)
	}
	if c.LocalSize < MinLocalSize {
		return errors.Errorf("local size must be greater or equal to %d, got %d", MinLocalSize, c.LocalSize)
	}
	if bits.OnesCount(uint(c.LocalSize)) != 1 {
		return errors.Errorf("local size must be a power of two, got %d", c.LocalSize)
	}
	if c.NumElements()%c.LocalSize != 0 {
		return errors.Errorf("local size %d must divide the number of elements %d", c.LocalSize, c.NumElements())
	}
	if c.Iterations < 1 {
		return errors.Errorf("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.Warmup < 0 {
		return errors.Errorf("warmup can't be negative, got %d", c.Warmup)
	}
	return nil
}

// InputValue is the value of every element of input i (0-based).
func InputValue(input int) float32 {
	return float32(math.Sqrt(float64(input)))
}

// Measurement holds the results of Run.
type Measurement struct {
	Config  Config
	Result  *autogen.Result
	Backend string

	// Durations of each timed iteration.
	Durations []time.Duration

	// Output read back after the last iteration.
	Output []float32

	// Checksum is the sum of the output, accumulated in float64.
	Checksum float64

	// Verified is set if Config.Verify was set and all output values matched, Mismatches holds
	// the number of values that didn't.
	Verified   bool
	Mismatches int
}

// Best returns the shortest iteration.
func (m *Measurement) Best() time.Duration {
	best := m.Durations[0]
	for _, d := range m.Durations[1:] {
		best = min(best, d)
	}
	return best
}

// Mean returns the mean iteration duration.
func (m *Measurement) Mean() time.Duration {
	var total time.Duration
	for _, d := range m.Durations {
		total += d
	}
	return total / time.Duration(len(m.Durations))
}

// GigaOpsPerSecond is the number of work-items processed per second of the best iteration, in billions.
//
// It is reported as "GigaMultsPerSecond" by the command line.
func (m *Measurement) GigaOpsPerSecond() float64 {
	return float64(m.Config.NumElements()) / m.Best().Seconds() / 1e9
}

// GFLOPS is the number of floating point operations per second of the best iteration, in billions.
func (m *Measurement) GFLOPS() float64 {
	return float64(m.Config.NumElements()*len(m.Result.Ops)) / m.Best().Seconds() / 1e9
}

// OutputLen is the number of elements of the output buffer: one per work-group for reductions.
func (m *Measurement) OutputLen() int {
	return outputLen(m.Config, m.Result)
}

func outputLen(cfg Config, res *autogen.Result) int {
	if res.UseReduction {
		return cfg.NumWorkGroups()
	}
	return cfg.NumElements()
}

// BytesMoved is the number of bytes read from and written to global memory by one iteration.
func (m *Measurement) BytesMoved() int64 {
	return 4 * int64(m.Result.NumInputs()*m.Config.NumElements()+m.OutputLen())
}

// Run the benchmark configured by cfg on backend b.
//
// onIteration, if not nil, is called after each timed iteration.
func Run(ctx context.Context, b backends.Backend, cfg Config, onIteration func(iteration int, elapsed time.Duration)) (*Measurement, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res, err := autogen.Compile(cfg.BuildString)
	if err != nil {
		return nil, err
	}
	if err := res.GoodBuild(); err != nil {
		return nil, err
	}
	m := &Measurement{Config: cfg, Result: res, Backend: b.Name()}
	numElements := cfg.NumElements()
	klog.V(1).Infof("bench: %q with %d elements, %d work-groups of %d, %d inputs",
		cfg.BuildString, numElements, cfg.NumWorkGroups(), cfg.LocalSize, res.NumInputs())

	kernel, err := b.CreateProgram(res.Source, res.KernelName())
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to build kernel for %q", cfg.BuildString)
	}
	defer kernel.Finalize()

	firstBuffer := 0
	if res.UseReduction {
		if err := kernel.SetArg(0, backends.LocalArg{NumElements: cfg.LocalSize}); err != nil {
			return nil, err
		}
		firstBuffer = 1
	}
	output, err := b.NewBuffer(0, m.OutputLen(), backends.WriteOnly)
	if err != nil {
		return nil, err
	}
	defer output.Finalize()
	if err := kernel.SetArg(firstBuffer, backends.BufferArg{Buffer: output}); err != nil {
		return nil, err
	}
	host := make([]float32, numElements)
	for input := range res.NumInputs() {
		value := InputValue(input)
		for ii := range host {
			host[ii] = value
		}
		buf, err := b.NewBuffer(0, numElements, backends.ReadOnly)
		if err != nil {
			return nil, err
		}
		defer buf.Finalize()
		if err := buf.Write(host); err != nil {
			return nil, err
		}
		if err := kernel.SetArg(firstBuffer+1+input, backends.BufferArg{Buffer: buf}); err != nil {
			return nil, err
		}
	}

	for range cfg.Warmup {
		if err := kernel.Enqueue(ctx, numElements, cfg.LocalSize); err != nil {
			return nil, errors.WithMessage(err, "warmup failed")
		}
	}
	m.Durations = make([]time.Duration, 0, cfg.Iterations)
	for iteration := range cfg.Iterations {
		start := time.Now()
		if err := kernel.Enqueue(ctx, numElements, cfg.LocalSize); err != nil {
			return nil, errors.WithMessagef(err, "iteration %d failed", iteration)
		}
		elapsed := time.Since(start)
		m.Durations = append(m.Durations, elapsed)
		if onIteration != nil {
			onIteration(iteration, elapsed)
		}
	}

	m.Output = make([]float32, m.OutputLen())
	if err := output.Read(m.Output); err != nil {
		return nil, err
	}
	for _, v := range m.Output {
		m.Checksum += float64(v)
	}
	if cfg.Verify {
		m.Mismatches = Verify(res, cfg.LocalSize, m.Output)
		m.Verified = m.Mismatches == 0
		if !m.Verified {
			klog.Warningf("bench: %d of %d output values of %q are wrong", m.Mismatches, len(m.Output), cfg.BuildString)
		}
	}
	return m, nil
}

// ExpectedValue returns the value of every work-item's expression: the inputs combined by the
// result operators with the usual precedence of '*' over '+'.
func ExpectedValue(res *autogen.Result) float32 {
	var sum float32
	term := InputValue(0)
	for ii, op := range res.Ops {
		next := InputValue(ii + 1)
		if op == autogen.Multiply {
			term *= next
		} else {
			sum += term
			term = next
		}
	}
	return sum + term
}

// Verify returns the number of output values that differ from those computed on the host by more
// than Tolerance, relative to the expected value.
func Verify(res *autogen.Result, localSize int, output []float32) int {
	want := float64(ExpectedValue(res))
	if res.UseReduction {
		want *= float64(localSize)
	}
	tolerance := Tolerance * max(1, math.Abs(want))
	var mismatches int
	for _, v := range output {
		if math.Abs(float64(v)-want) > tolerance {
			mismatches++
		}
	}
	return mismatches
}
