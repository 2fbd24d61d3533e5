// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package autogen

import (
	"fmt"

	"github.com/pkg/errors"
)

// Mode of the generated kernel: a plain elementwise assignment or a per work-group reduction.
type Mode int

const (
	// Assignment writes one output element per global thread: "X=...".
	Assignment Mode = iota

	// Reduction sums the expression over each work-group into one output element per group: "X:=...".
	Reduction
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Assignment:
		return "Assignment"
	case Reduction:
		return "Reduction"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// classify reads the mode marker at byte offsets 1 (and 2) of buildString.
// It returns the mode and the offset where the operator chain starts.
func classify(buildString string) (mode Mode, remainder int, err error) {
	if len(buildString) < 2 {
		return 0, 0, errors.Wrapf(ErrInvalidFormat, "build string %q is too short: need at least 2 characters", buildString)
	}
	switch buildString[1] {
	case '=':
		return Assignment, 2, nil
	case ':':
		if len(buildString) < 3 {
			return 0, 0, errors.Wrapf(ErrInvalidFormat, "build string %q is too short: missing '=' after ':'", buildString)
		}
		if buildString[2] != '=' {
			return 0, 0, errors.Wrapf(ErrInvalidFormat, "build string %q: did you forget a '=' after ':'?", buildString)
		}
		return Reduction, 3, nil
	default:
		return 0, 0, errors.Wrapf(ErrInvalidFormat,
			"build string %q: unrecognized shape, expected \"X=...\" or \"X:=...\"", buildString)
	}
}
