// Package diag reports on the external binaries a mode depends on before
// it starts. It does not inspect process or rule state after a shutdown.
package diag

import (
	"context"
	"os/exec"

	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
)

// SubnetDependencies lists the binaries required by subnet mode.
var SubnetDependencies = []string{"ip"}

// SSHDependencies lists the binaries required by ssh mode.
var SSHDependencies = []string{"ssh", "ss", "iptables", "sudo"}

// Result is a single dependency check's outcome, for verbose startup
// reporting.
type Result struct {
	Binary  string
	Present bool
}

// Report checks every binary's presence on PATH without failing fast,
// returning one Result per binary in the order given.
func Report(binaries []string) []Result {
	results := make([]Result, len(binaries))
	for i, bin := range binaries {
		_, err := exec.LookPath(bin)
		results[i] = Result{Binary: bin, Present: err == nil}
	}
	return results
}

// CheckSubnet verifies subnet mode's dependencies are all present.
func CheckSubnet(ctx context.Context) error {
	return platform.CheckDependencies(SubnetDependencies...)
}

// CheckSSH verifies ssh mode's dependencies are all present.
func CheckSSH(ctx context.Context) error {
	return platform.CheckDependencies(SSHDependencies...)
}
