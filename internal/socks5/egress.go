package socks5

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"golang.org/x/net/proxy"

	"github.com/blacklanternsecurity/trevorproxy/internal/egress"
	"github.com/blacklanternsecurity/trevorproxy/internal/sshpool"
)

// Dialer opens an outbound TCP connection to target on behalf of a SOCKS5
// session, choosing the egress identity according to whichever strategy
// the server was configured with.
type Dialer interface {
	Dial(ctx context.Context, network string, target netip.AddrPort) (net.Conn, error)
}

// SubnetDialer draws a pseudo-random source address from a subnet binder
// for every connection, binding the outbound socket to it when the target
// address family matches the bound subnet.
type SubnetDialer struct {
	Binder *egress.Binder
	Logger *slog.Logger
}

func (d *SubnetDialer) Dial(ctx context.Context, network string, target netip.AddrPort) (net.Conn, error) {
	targetIsV6 := target.Addr().Is6() && !target.Addr().Is4In6()
	subnetIsV6 := d.Binder.Version() == 6
	if targetIsV6 != subnetIsV6 {
		d.Logger.Warn("target address family does not match egress subnet, dialing without source bind",
			"target", target.Addr(), "subnet_version", d.Binder.Version())
		return (&net.Dialer{}).DialContext(ctx, network, target.String())
	}
	source := d.Binder.NextSource()
	return egress.DialFrom(ctx, source, network, target)
}

// TunnelDialer routes each connection through the next slot of a round-robin
// SSH tunnel pool, connecting through the tunnel's local SOCKS5 listener, or
// dialing directly when the slot is the pool's "direct" sentinel.
type TunnelDialer struct {
	Pool   *sshpool.Pool
	Logger *slog.Logger
}

func (d *TunnelDialer) Dial(ctx context.Context, network string, target netip.AddrPort) (net.Conn, error) {
	slot := d.Pool.Next()
	if slot.Direct() {
		return (&net.Dialer{}).DialContext(ctx, network, target.String())
	}

	sockDialer, err := proxy.SOCKS5("tcp", slot.Tunnel.Addr(), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build socks5 dialer for tunnel %s: %w", slot.Tunnel.Host, err)
	}
	if ctxDialer, ok := sockDialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, network, target.String())
	}
	return sockDialer.Dial(network, target.String())
}
