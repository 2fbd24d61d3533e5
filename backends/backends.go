// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the compute device API the benchmark harness runs kernels on: buffers,
// program compilation from source and kernel launches.
//
// It mirrors the subset of OpenCL the harness needs. Backends register themselves with Register,
// usually in an init function, and are selected by a configuration string:
// see NewWithConfig.
package backends

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DeviceNum represents which device holds a buffer, or should execute a kernel.
// It's up to the backend to interpret it, but it should be between 0 and Backend.NumDevices.
type DeviceNum int

// Access of a device buffer, as seen by kernels.
type Access int

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

// String implements fmt.Stringer.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// Backend is the API that needs to be implemented by a compute backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the portable emulator.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// NumDevices return the number of devices available for this Backend.
	NumDevices() DeviceNum

	// NewBuffer allocates a float32 buffer with numElements on the device.
	NewBuffer(deviceNum DeviceNum, numElements int, access Access) (Buffer, error)

	// CreateProgram compiles the kernel source and returns the kernel with the given entry point.
	// Compilation errors are returned as errors, with the compiler log if available.
	CreateProgram(source, entryPoint string) (Kernel, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Buffer is a float32 device buffer.
type Buffer interface {
	// Len returns the number of elements.
	Len() int

	// Access returns how kernels can access the buffer.
	Access() Access

	// Write copies host data to the device, len(host) must be Len().
	Write(host []float32) error

	// Read copies device data to the host, len(host) must be Len().
	Read(host []float32) error

	// Finalize releases the device memory. The buffer can't be used afterward.
	Finalize()
}

// Arg is a kernel argument: either a BufferArg or a LocalArg.
type Arg interface {
	isArg()
}

// BufferArg binds a device buffer to a global memory kernel parameter.
type BufferArg struct {
	Buffer Buffer
}

func (BufferArg) isArg() {}

// LocalArg reserves NumElements float32s of work-group local memory for a local kernel
// parameter. There is no host buffer associated with it.
type LocalArg struct {
	NumElements int
}

func (LocalArg) isArg() {}

// Kernel is a compiled kernel entry point, ready to be launched once all its arguments are set.
type Kernel interface {
	// Name of the entry point.
	Name() string

	// NumArgs returns the number of parameters of the kernel.
	NumArgs() int

	// SetArg binds the argument for the parameter at index.
	SetArg(index int, arg Arg) error

	// Enqueue launches the kernel over globalSize work items split in work-groups of localSize,
	// and blocks until it finishes.
	Enqueue(ctx context.Context, globalSize, localSize int) error

	// Finalize releases the kernel.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnvVar is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
const ConfigEnvVar = "CLBENCH_BACKEND"

// New returns a new default Backend, or panics with an error.
//
// The configuration used is, in order of preference:
//
// 1. The environment variable CLBENCH_BACKEND.
// 2. The variable DefaultConfig.
// 3. The first registered backend with an empty configuration.
func New() Backend {
	config, found := os.LookupEnv(ConfigEnvVar)
	if !found {
		config = DefaultConfig
	}
	return MustNewWithConfig(config)
}

// NewOrErr is like New, but returns an error instead of panicking.
func NewOrErr() (backend Backend, err error) {
	err = exceptions.TryCatch[error](func() { backend = New() })
	return
}

// NewWithConfig takes a configurations string formatted as "<backend_name>:<backend_configuration>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific. If the name is omitted, the first registered
// backend is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.Errorf(`no registered backends -- maybe import the portable one with import _ "github.com/gomlx/clbench/backends/simplego"?`)
	}
	backendName, backendConfig := firstRegistered, config
	if name, rest, found := strings.Cut(config, ":"); found {
		backendName, backendConfig = name, rest
	} else if _, isName := registeredConstructors[config]; isName {
		backendName, backendConfig = config, ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q with configuration %q", backendName, backendConfig)
	}
	return backend, nil
}

// MustNewWithConfig is like NewWithConfig, but panics on error.
func MustNewWithConfig(config string) Backend {
	backend, err := NewWithConfig(config)
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return backend
}
