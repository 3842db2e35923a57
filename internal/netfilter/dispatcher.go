package netfilter

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher programs the NAT OUTPUT chain rules that statistically spread
// connections to the public service endpoint across an SSH tunnel pool.
type Dispatcher struct {
	ipt     *IPTables
	address string
	port    int
	logger  *slog.Logger

	rules [][]string
}

// NewDispatcher builds a Dispatcher for connections destined to
// address:port (the --dispatch-target endpoint, not the SOCKS5 listener,
// matched on loopback egress).
func NewDispatcher(address string, port int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		ipt:     NewIPTables(),
		address: address,
		port:    port,
		logger:  logger,
	}
}

// Start installs one DNAT rule per tunnel port. Rules 0..k-2 carry an
// `nth`-mode statistic predicate (every=k-i, packet=0) so that the first
// rule matches 1-of-k of new flows, the next 1-of-(k-1) of the remainder,
// and so on; the last rule is unconditional, giving an exact 1/k split
// without connection tracking.
func (d *Dispatcher) Start(ctx context.Context, tunnelPorts []int) error {
	d.logger.Info("installing packet-filter dispatch rules", "address", d.address, "port", d.port, "tunnels", len(tunnelPorts))

	for i, rule := range buildDispatchRules(d.address, d.port, tunnelPorts) {
		if err := d.ipt.AppendRule(ctx, "nat", rule...); err != nil {
			return fmt.Errorf("install dispatch rule %d: %w", i, err)
		}
		d.rules = append(d.rules, rule)
	}
	return nil
}

// buildDispatchRules computes the ordered iptables rule specs for dispatch
// across tunnelPorts, split out from Start so the nth-statistic arithmetic
// can be tested without shelling out.
func buildDispatchRules(address string, port int, tunnelPorts []int) [][]string {
	rules := make([][]string, 0, len(tunnelPorts))
	for i, tport := range tunnelPorts {
		rule := []string{
			"OUTPUT",
			"-d", address, "-o", "lo", "-p", "tcp",
			"--dport", fmt.Sprintf("%d", port),
			"-j", "DNAT", "--to-destination", fmt.Sprintf("127.0.0.1:%d", tport),
		}
		if i != len(tunnelPorts)-1 {
			rule = append(rule, "-m", "statistic", "--mode", "nth", "--every", fmt.Sprintf("%d", len(tunnelPorts)-i), "--packet", "0")
		}
		rules = append(rules, rule)
	}
	return rules
}

// Stop removes every rule this Dispatcher installed, in reverse insertion
// order. Tolerates a process that never called Start (no-op) and rules
// already gone (best-effort removal).
func (d *Dispatcher) Stop(ctx context.Context) {
	d.logger.Info("removing packet-filter dispatch rules", "count", len(d.rules))
	for i := len(d.rules) - 1; i >= 0; i-- {
		_ = d.ipt.DeleteRule(ctx, "nat", d.rules[i]...)
	}
	d.rules = nil
}
