// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"flag"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Flag creates a flag for []T with the given name, description and default value, in the default
// flag.CommandLine. It takes as input a parser for an individual T value.
//
// The flag value is a comma-separated list, and spaces around the values are trimmed.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	return FlagSetVar(flag.CommandLine, name, defaultValue, usage, parserFn)
}

// FlagSetVar is like Flag, but registers the flag in the given flag.FlagSet.
func FlagSetVar[T any](fs *flag.FlagSet, name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &sliceFlag[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	fs.Var(f, name, usage)
	return &f.parsedSlice
}

// sliceFlag implements flag.Value for a slice of a generic type.
type sliceFlag[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

func (f *sliceFlag[T]) String() string {
	if f == nil || len(f.parsedSlice) == 0 {
		return ""
	}
	return strings.Join(Map(f.parsedSlice, func(e T) string { return fmt.Sprintf("%v", e) }), ",")
}

func (f *sliceFlag[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	parsed := make([]T, len(parts))
	for ii, part := range parts {
		var err error
		parsed[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return errors.Wrapf(err, "invalid value %q in list %q", part, listStr)
		}
	}
	f.parsedSlice = parsed
	return nil
}
