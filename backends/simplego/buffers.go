// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/clbench/backends"
	"github.com/pkg/errors"
)

// Buffer implements backends.Buffer with a Go slice.
type Buffer struct {
	data   []float32
	access backends.Access
}

var _ backends.Buffer = (*Buffer)(nil)

// Len implements backends.Buffer.
func (buf *Buffer) Len() int { return len(buf.data) }

// Access implements backends.Buffer.
func (buf *Buffer) Access() backends.Access { return buf.access }

func (buf *Buffer) checkHost(method string, host []float32) error {
	if buf.data == nil {
		return errors.Errorf("Buffer.%s: buffer has been finalized", method)
	}
	if len(host) != len(buf.data) {
		return errors.Errorf("Buffer.%s: host slice has %d elements, buffer has %d", method, len(host), len(buf.data))
	}
	return nil
}

// Write implements backends.Buffer.
func (buf *Buffer) Write(host []float32) error {
	if err := buf.checkHost("Write", host); err != nil {
		return err
	}
	copy(buf.data, host)
	return nil
}

// Read implements backends.Buffer.
func (buf *Buffer) Read(host []float32) error {
	if err := buf.checkHost("Read", host); err != nil {
		return err
	}
	copy(host, buf.data)
	return nil
}

// Finalize implements backends.Buffer.
func (buf *Buffer) Finalize() {
	buf.data = nil
}
