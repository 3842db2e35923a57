package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Run executes a command and returns its trimmed stdout; on failure the
// returned error includes the command's stderr.
func Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RunSilent executes a command and only returns an error if it fails.
func RunSilent(ctx context.Context, name string, args ...string) error {
	_, err := Run(ctx, name, args...)
	return err
}

// CheckDependencies verifies every named binary is on PATH, returning a
// single *proxyerr.Error of KindDependency naming every binary that's
// missing. Run before a mode starts: ssh mode needs ssh/ss/iptables/sudo,
// subnet mode needs the interface-adding utility (ip).
func CheckDependencies(binaries ...string) error {
	var missing []string
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return proxyerr.Errorf(proxyerr.KindDependency, "missing required binaries: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NeedsSudo reports whether commands should be prefixed with sudo because
// the process isn't already running as root.
func NeedsSudo() bool {
	return syscall.Geteuid() != 0
}

// SudoPrefix returns []string{"sudo"} when not running as root, or nil
// otherwise, for prepending to a command's argv.
func SudoPrefix() []string {
	if NeedsSudo() {
		return []string{"sudo"}
	}
	return nil
}
