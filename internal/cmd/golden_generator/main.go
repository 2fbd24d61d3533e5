// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// golden_generator writes the kernels generated for a fixed set of build strings into
// autogen/testdata, used as golden files by the autogen tests.
//
// Run it (through `go generate ./autogen`) after a deliberate change of the generated source.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/clbench/autogen"
	"github.com/gomlx/clbench/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var flagOutput = flag.String("output", "testdata", "Directory where to write the golden .cl files.")

// goldenCases must be kept in sync with autogen/autogen_test.go.
var goldenCases = []struct{ name, buildString string }{
	{"assign_copy", "X=Y"},
	{"assign_mul", "X=Y*Z"},
	{"assign_mul_add", "X=Y*Z+W"},
	{"reduce_mul", "X:=Y*Z"},
	{"reduce_add_mul", "S:=a+b*c"},
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	fmt.Println("\tinternal/cmd/golden_generator:")

	dir := must.M1(fsutil.ReplaceTildeInDir(*flagOutput))
	must.M(fsutil.EnsureDir(dir))
	for _, gc := range goldenCases {
		r := autogen.MustCompile(gc.buildString)
		fileName := filepath.Join(dir, gc.name+".cl")
		must.M(os.WriteFile(fileName, []byte(r.Source), 0o644))
		klog.V(1).Infof("%q -> %s", gc.buildString, fileName)
		fmt.Printf("\t- %s\n", fileName)
	}
}
