// Package egress claims a subnet on the local host via a local route so
// that arbitrary addresses inside it are valid bind sources, and hands out
// source addresses from a cyclic.Sequence to callers opening outbound
// sockets.
package egress

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/blacklanternsecurity/trevorproxy/internal/cyclic"
	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Binder installs (and removes) a local route claiming subnet on iface, and
// serializes draws from the underlying cyclic sequence behind a mutex.
type Binder struct {
	subnet string
	iface  string
	pool   *cyclic.Pool
	logger *slog.Logger

	mu  sync.Mutex
	seq *cyclic.Sequence

	started bool
}

// New builds a Binder over subnet (CIDR). iface is the device the local
// route is attached to; blacklist addresses are never handed out.
func New(subnet, iface string, blacklist []netip.Addr, logger *slog.Logger) (*Binder, error) {
	pool, err := cyclic.NewPool(subnet)
	if err != nil {
		return nil, err
	}
	seq, err := cyclic.NewSequence(pool, blacklist)
	if err != nil {
		return nil, err
	}
	return &Binder{
		subnet: subnet,
		iface:  iface,
		pool:   pool,
		seq:    seq,
		logger: logger,
	}, nil
}

// Version reports whether the bound subnet is IPv4 (4) or IPv6 (6).
func (b *Binder) Version() int { return b.pool.Version }

// Start installs the local route claiming the subnet
// (`ip route add local <subnet> dev <iface>`). Failure here is a
// PrivilegeError; the caller must not begin accepting connections.
func (b *Binder) Start(ctx context.Context) error {
	b.logger.Info("claiming subnet", "subnet", b.subnet, "interface", b.iface)
	args := append(platform.SudoPrefix(), "ip", "route", "add", "local", b.subnet, "dev", b.iface)
	if err := platform.RunSilent(ctx, args[0], args[1:]...); err != nil {
		return proxyerr.Wrapf(err, proxyerr.KindPrivilege, "failed to claim local route for %s on %s", b.subnet, b.iface)
	}
	b.started = true
	return nil
}

// Stop removes the local route. Idempotent: a missing route is not an
// error.
func (b *Binder) Stop(ctx context.Context) error {
	if !b.started {
		return nil
	}
	args := append(platform.SudoPrefix(), "ip", "route", "del", "local", b.subnet, "dev", b.iface)
	_ = platform.RunSilent(ctx, args[0], args[1:]...)
	b.started = false
	return nil
}

// NextSource returns the next pseudo-random source address drawn from the
// cyclic sequence; the only mutating call against the shared generator.
func (b *Binder) NextSource() netip.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr, _ := b.seq.Next()
	return addr
}

// DefaultInterface returns the device carrying the host's default route,
// used to auto-detect which interface to attach a claimed subnet's local
// route to when the caller doesn't name one explicitly.
func DefaultInterface(ctx context.Context) (string, error) {
	out, err := platform.Run(ctx, "ip", "route", "show", "default")
	if err != nil {
		return "", proxyerr.Wrap(err, proxyerr.KindDependency, "failed to query default route")
	}
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "dev" && i+1 < len(fields) {
			return fields[i+1], nil
		}
	}
	return "", proxyerr.New(proxyerr.KindConfig, "no default route found; pass --interface explicitly")
}

// DialFrom opens a TCP connection to addr:port, binding the local endpoint
// to source. For IPv6 sources it sets IPV6_TRANSPARENT before bind so the
// kernel accepts a bind to an address it does not own locally, provided
// the matching route from Start is in place.
func DialFrom(ctx context.Context, source netip.Addr, network string, target netip.AddrPort) (net.Conn, error) {
	laddr := &net.TCPAddr{IP: source.AsSlice()}
	dialer := net.Dialer{
		LocalAddr: laddr,
		Control: func(_, _ string, c syscall.RawConn) error {
			if !source.Is6() || source.Is4In6() {
				return nil
			}
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(target.Addr().String(), strconv.Itoa(int(target.Port()))))
}
