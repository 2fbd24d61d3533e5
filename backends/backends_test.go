// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name, config string
}

func (b *fakeBackend) Name() string          { return b.name }
func (b *fakeBackend) Description() string   { return "fake: " + b.config }
func (b *fakeBackend) NumDevices() DeviceNum { return 1 }
func (b *fakeBackend) Finalize()             {}
func (b *fakeBackend) NewBuffer(DeviceNum, int, Access) (Buffer, error) {
	return nil, errors.New("not implemented")
}
func (b *fakeBackend) CreateProgram(string, string) (Kernel, error) {
	return nil, errors.New("not implemented")
}

func TestRegistry(t *testing.T) {
	Register("fake", func(config string) (Backend, error) {
		if config == "fail" {
			return nil, errors.New("bad config")
		}
		return &fakeBackend{name: "fake", config: config}, nil
	})
	Register("other", func(config string) (Backend, error) {
		return &fakeBackend{name: "other", config: config}, nil
	})
	assert.Equal(t, []string{"fake", "other"}, List())

	b, err := NewWithConfig("")
	require.NoError(t, err)
	assert.Equal(t, "fake", b.Name())

	b, err = NewWithConfig("other")
	require.NoError(t, err)
	assert.Equal(t, "other", b.Name())

	b, err = NewWithConfig("other:x=1")
	require.NoError(t, err)
	assert.Equal(t, "x=1", b.(*fakeBackend).config)

	_, err = NewWithConfig("missing:x")
	require.Error(t, err)
	_, err = NewWithConfig("fake:fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")

	t.Setenv(ConfigEnvVar, "other:y")
	b, err = NewOrErr()
	require.NoError(t, err)
	assert.Equal(t, "other", b.Name())

	t.Setenv(ConfigEnvVar, "missing:")
	_, err = NewOrErr()
	require.Error(t, err)
	assert.Panics(t, func() { New() })
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "WriteOnly", WriteOnly.String())
	assert.Equal(t, "Access(9)", Access(9).String())
}
