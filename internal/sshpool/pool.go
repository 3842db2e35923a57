package sshpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blacklanternsecurity/trevorproxy/internal/netfilter"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Egress is a round-robin slot: either a tunnel or, when Tunnel is nil, a
// sentinel meaning "use the host's own address" (direct egress).
type Egress struct {
	Tunnel *Tunnel // nil means direct egress
}

func (e Egress) Direct() bool { return e.Tunnel == nil }

// Pool owns k tunnels on consecutive ports, a round-robin iterator, and an
// optional packet-filter Dispatcher fanning a separate dispatch-target
// address:port across them.
type Pool struct {
	tunnels []*Tunnel
	slots   []Egress // tunnels plus an optional trailing direct sentinel
	counter atomic.Uint64

	dispatcher *netfilter.Dispatcher
	useSocks   bool // whether to program the packet-filter dispatcher

	logger *slog.Logger
}

// NewPool builds a Pool of tunnels to hosts, each listening on
// basePort, basePort+1, .... If direct is true, a sentinel "use the host's
// own address" slot participates in round-robin selection.
func NewPool(hosts []string, keyPath, passphrase string, basePort int, direct bool, logger *slog.Logger) *Pool {
	p := &Pool{logger: logger}
	for i, host := range hosts {
		t := NewTunnel(host, basePort+i, keyPath, passphrase, logger)
		p.tunnels = append(p.tunnels, t)
		p.slots = append(p.slots, Egress{Tunnel: t})
	}
	if direct {
		p.slots = append(p.slots, Egress{Tunnel: nil})
	}
	return p
}

// EnableDispatch configures the pool to program packet-filter dispatch
// rules against address:port once started, so that connections to that
// endpoint fan out across the pool at the kernel level. The address is
// independent of the SOCKS server's own listener, which always uses
// in-process selection via Next.
func (p *Pool) EnableDispatch(address string, port int) {
	p.useSocks = true
	p.dispatcher = netfilter.NewDispatcher(address, port, p.logger)
}

// Start launches every tunnel in parallel and waits up to timeout for all
// to report up, failing fast if any child exits before becoming up or the
// deadline elapses.
func (p *Pool) Start(ctx context.Context, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range p.tunnels {
		t := t
		g.Go(func() error {
			return t.Start(gctx, true, timeout)
		})
	}
	if err := g.Wait(); err != nil {
		p.stopTunnels()
		return err
	}

	if p.useSocks {
		ports := make([]int, len(p.tunnels))
		for i, t := range p.tunnels {
			ports[i] = t.LocalPort
		}
		if err := p.dispatcher.Start(ctx, ports); err != nil {
			p.stopTunnels()
			return proxyerr.Wrap(err, proxyerr.KindPrivilege, "failed to install packet-filter dispatch rules")
		}
	}

	go p.superviseLoop(ctx)
	return nil
}

// superviseLoop polls each tunnel's liveness once a second and restarts any
// found down in place, on the same port.
func (p *Pool) superviseLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range p.tunnels {
				up, err := t.probeLive(ctx)
				if err != nil || up {
					continue
				}
				if t.State() == StateUp {
					t.setState(StateDown)
				}
				p.logger.Warn("ssh tunnel down, restarting", "host", t.Host, "local_port", t.LocalPort)
				if err := t.Start(ctx, false, 0); err != nil {
					p.logger.Error("ssh tunnel restart failed", "host", t.Host, "error", err)
				}
			}
		}
	}
}

func (p *Pool) stopTunnels() {
	for _, t := range p.tunnels {
		t.Stop()
	}
}

// Stop terminates every tunnel and removes packet-filter rules.
func (p *Pool) Stop(ctx context.Context) {
	p.stopTunnels()
	if p.useSocks && p.dispatcher != nil {
		p.dispatcher.Stop(ctx)
	}
}

// Next returns the next egress slot in round-robin order; counter
// increments on every call via an atomic add, so concurrent callers
// observe distinct, consecutive values.
func (p *Pool) Next() Egress {
	n := p.counter.Add(1) - 1
	return p.slots[n%uint64(len(p.slots))]
}

// Len returns the number of slots (tunnels plus an optional direct
// sentinel) participating in round-robin selection.
func (p *Pool) Len() int { return len(p.slots) }

// String summarizes the pool for log lines.
func (p *Pool) String() string {
	return fmt.Sprintf("sshpool(%d tunnels)", len(p.tunnels))
}
