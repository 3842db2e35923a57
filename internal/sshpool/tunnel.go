// Package sshpool manages a pool of long-lived `ssh -D` dynamic
// port-forward children, restarted on failure and visited in round-robin
// order.
package sshpool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/blacklanternsecurity/trevorproxy/internal/netfilter"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// State is a Tunnel's connection state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// Tunnel manages one `ssh -D <localPort>` child process.
type Tunnel struct {
	Host       string
	LocalPort  int
	KeyPath    string
	Passphrase string

	logger *slog.Logger

	mu           sync.Mutex
	state        State
	cmd          *exec.Cmd
	ptyMaster    *os.File
	passwordSent bool
}

// NewTunnel builds a Tunnel targeting host (user@host), forwarding dynamic
// SOCKS on localPort.
func NewTunnel(host string, localPort int, keyPath, passphrase string, logger *slog.Logger) *Tunnel {
	return &Tunnel{
		Host:       host,
		LocalPort:  localPort,
		KeyPath:    keyPath,
		Passphrase: passphrase,
		logger:     logger,
		state:      StateIdle,
	}
}

// Addr returns the tunnel's local SOCKS5 listener address.
func (t *Tunnel) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", t.LocalPort)
}

func (t *Tunnel) buildArgs() []string {
	args := []string{
		"-D", strconv.Itoa(t.LocalPort),
		"-o", "StrictHostKeyChecking=no",
		"-o", "ExitOnForwardFailure=yes",
		"-N",
	}
	if t.KeyPath != "" {
		args = append(args, "-i", t.KeyPath)
	}
	args = append(args, t.Host)
	return args
}

// Start launches the ssh child. If a passphrase is set, the child is driven
// over a PTY so the passphrase can be typed once the prompt appears. If
// wait is true, Start blocks until the local port is observed listening or
// timeout elapses.
func (t *Tunnel) Start(ctx context.Context, wait bool, timeout time.Duration) error {
	t.Stop()

	t.mu.Lock()
	t.state = StateStarting
	cmd := exec.Command("ssh", t.buildArgs()...)
	t.cmd = cmd
	t.mu.Unlock()

	t.logger.Info("opening ssh tunnel", "host", t.Host, "local_port", t.LocalPort)

	if t.Passphrase != "" {
		master, err := pty.Start(cmd)
		if err != nil {
			t.setState(StateDown)
			return proxyerr.Wrapf(err, proxyerr.KindSSHProxy, "failed to start ssh tunnel to %s", t.Host)
		}
		t.mu.Lock()
		t.ptyMaster = master
		t.mu.Unlock()
		go t.drivePassphrase(master)
	} else {
		if err := cmd.Start(); err != nil {
			t.setState(StateDown)
			return proxyerr.Wrapf(err, proxyerr.KindSSHProxy, "failed to start ssh tunnel to %s", t.Host)
		}
	}

	if !wait {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		up, err := t.probeLive(ctx)
		if err != nil {
			return err
		}
		if up {
			t.setState(StateUp)
			return nil
		}
		if !t.isAlive() {
			t.setState(StateDown)
			return proxyerr.Errorf(proxyerr.KindSSHProxy, "ssh tunnel to %s exited before coming up", t.Host)
		}
		if time.Now().After(deadline) {
			t.setState(StateDown)
			return proxyerr.Errorf(proxyerr.KindSSHProxy, "ssh tunnel to %s failed to start within %s", t.Host, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// drivePassphrase watches the child's combined output for a password-style
// prompt (a line ending "pass...: ") and writes the passphrase exactly
// once.
func (t *Tunnel) drivePassphrase(master *os.File) {
	var seen bytes.Buffer
	buf := make([]byte, 1)
	for {
		n, err := master.Read(buf)
		if n > 0 {
			seen.Write(buf[:n])
			t.mu.Lock()
			sent := t.passwordSent
			t.mu.Unlock()
			if !sent && strings.Contains(seen.String(), "pass") && strings.HasSuffix(seen.String(), ": ") {
				master.Write([]byte(t.Passphrase + "\n"))
				t.mu.Lock()
				t.passwordSent = true
				t.mu.Unlock()
			}
		}
		if err != nil {
			return
		}
	}
}

// probeLive checks the kernel for a listener on the tunnel's local port.
func (t *Tunnel) probeLive(ctx context.Context) (bool, error) {
	return netfilter.CheckListeningPort(ctx, fmt.Sprintf("127.0.0.1:%d ", t.LocalPort))
}

func (t *Tunnel) isAlive() bool {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (t *Tunnel) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// State returns the tunnel's current connection state.
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop terminates the ssh child (SIGTERM, then SIGKILL after a grace
// period). Idempotent.
func (t *Tunnel) Stop() {
	t.mu.Lock()
	cmd := t.cmd
	master := t.ptyMaster
	t.cmd = nil
	t.ptyMaster = nil
	t.state = StateIdle
	t.passwordSent = false
	t.mu.Unlock()

	if master != nil {
		master.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
	}
}
