// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autogen

import "github.com/pkg/errors"

var (
	// ErrInvalidFormat is returned for build strings too short to classify, or whose mode marker
	// is neither "=" nor ":=".
	ErrInvalidFormat = errors.New("invalid build string format")

	// ErrTooManyOperands is returned when the expression needs more than MaxVariables names.
	ErrTooManyOperands = errors.New("too many operands")

	// ErrInsufficientVariables is only returned by Result.GoodBuild, which can't fail on a Result
	// returned by Compile: classification always allocates two variables.
	ErrInsufficientVariables = errors.New("you need more than 1 variable")
)
