// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable backend: it
// interprets kernels written in the OpenCL C subset generated by package autogen on the CPU.
//
// Work-groups run in parallel on a pool of goroutines. The lanes (work-items) of a group are
// scheduled in one of two ways, selected by the backend configuration:
//
//   - "lockstep" (default): every statement runs for all active lanes of the group before the next
//     statement, like a SIMT unit. Barriers are implicit.
//   - "lanes": one goroutine per lane, with barriers implemented by xsync.Barrier. With "jitter"
//     lanes yield randomly, which exercises different interleavings.
//
// Other configuration options: "parallelism=N" (number of groups run concurrently, 0 to disable
// parallelism) and "seed=N" (for jitter). Options are separated by commas, e.g.: "go:lanes,jitter".
package simplego

import (
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/clbench/backends"
	"github.com/gomlx/clbench/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in CLBENCH_BACKEND to specify this backend.
const BackendName = "go"

// Registers New() as the constructor for the "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// Scheduler of the lanes of a work-group.
type Scheduler int

const (
	Lockstep Scheduler = iota
	Lanes
)

// String implements fmt.Stringer.
func (s Scheduler) String() string {
	if s == Lanes {
		return "lanes"
	}
	return "lockstep"
}

// Config of the backend, parsed from the configuration string.
type Config struct {
	Scheduler Scheduler

	// Jitter makes lanes yield randomly, only with the Lanes scheduler.
	Jitter bool
	Seed   uint64

	// Parallelism is the number of work-groups run concurrently: 0 disables parallelism and < 0
	// means unlimited. Defaults to runtime.NumCPU().
	Parallelism int
}

// ParseConfig parses a comma-separated list of options.
func ParseConfig(config string) (Config, error) {
	cfg := Config{Parallelism: runtime.NumCPU()}
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		key, value, _ := strings.Cut(option, "=")
		var err error
		switch key {
		case "":
		case "lockstep":
			cfg.Scheduler = Lockstep
		case "lanes":
			cfg.Scheduler = Lanes
		case "jitter":
			cfg.Jitter = true
		case "parallelism":
			cfg.Parallelism, err = strconv.Atoi(value)
		case "seed":
			cfg.Seed, err = strconv.ParseUint(value, 10, 64)
		default:
			return cfg, errors.Errorf("unknown %s backend option %q in config %q", BackendName, option, config)
		}
		if err != nil {
			return cfg, errors.Wrapf(err, "invalid %s backend option %q", BackendName, option)
		}
	}
	if cfg.Jitter && cfg.Scheduler != Lanes {
		return cfg, errors.Errorf("option \"jitter\" requires the \"lanes\" scheduler, in config %q", config)
	}
	return cfg, nil
}

// New constructs a new SimpleGo Backend from a configuration string, see package documentation.
func New(config string) (backends.Backend, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig constructs a new SimpleGo Backend.
func NewWithConfig(cfg Config) *Backend {
	pool := workerspool.New()
	pool.SetMaxParallelism(cfg.Parallelism)
	klog.V(1).Infof("simplego backend: scheduler=%s, jitter=%v, parallelism=%d", cfg.Scheduler, cfg.Jitter, cfg.Parallelism)
	return &Backend{config: cfg, pool: pool}
}

// Backend implements the backends.Backend interface.
type Backend struct {
	config Config
	pool   *workerspool.Pool

	mu        sync.Mutex
	finalized bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return "SimpleGo (go)"
}

// String implement backends.Backend.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Simple Go Portable Backend, " + b.config.Scheduler.String() + " scheduler"
}

// Config returns the configuration of the backend.
func (b *Backend) Config() Config { return b.config }

// NumDevices return the number of devices available for this Backend.
func (b *Backend) NumDevices() backends.DeviceNum {
	return 1
}

func (b *Backend) checkValid(deviceNum backends.DeviceNum) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return errors.New("backend has already been finalized")
	}
	if deviceNum != 0 {
		return errors.Errorf("invalid device %d, backend %q only has 1 device", deviceNum, BackendName)
	}
	return nil
}

// NewBuffer implements backends.Backend.
func (b *Backend) NewBuffer(deviceNum backends.DeviceNum, numElements int, access backends.Access) (backends.Buffer, error) {
	if err := b.checkValid(deviceNum); err != nil {
		return nil, err
	}
	if numElements <= 0 {
		return nil, errors.Errorf("NewBuffer: invalid number of elements %d", numElements)
	}
	return &Buffer{data: make([]float32, numElements), access: access}, nil
}

// CreateProgram implements backends.Backend: it parses the source and returns the kernel with the given entry point.
func (b *Backend) CreateProgram(source, entryPoint string) (backends.Kernel, error) {
	if err := b.checkValid(0); err != nil {
		return nil, err
	}
	prog, err := parse(source, entryPoint)
	if err != nil {
		return nil, errors.WithMessage(err, "simplego: failed to build program")
	}
	klog.V(2).Infof("simplego: compiled kernel %q with %d parameters", prog.name, len(prog.params))
	return newKernel(b, prog), nil
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = true
}
