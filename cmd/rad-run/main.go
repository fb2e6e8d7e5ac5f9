// rad-run feeds inventory job files through the anomaly detection worker and
// waits for every unit.
//
// Usage:
//
//	rad-run --jobs a.json,b.json [--next URL] [--identity TOKEN]
package main

import (
	"fmt"
	"os"

	"github.com/okian/radworker/internal/runner"
)

// version is set with ldflags at build time.
var version = "dev"

func main() {
	if err := runner.NewCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
