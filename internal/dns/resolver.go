package dns

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver resolves domain names to IP literals via a configured DNS
// server, supporting family-preference lookups for the SOCKS server's
// hostname-target resolution.
type Resolver struct {
	Server  string // DNS server address (e.g., "127.0.0.1:53")
	Timeout time.Duration
}

// NewResolver creates a resolver that queries the given DNS server.
func NewResolver(server string) *Resolver {
	if !strings.Contains(server, ":") {
		server = server + ":53"
	}
	return &Resolver{
		Server:  server,
		Timeout: 5 * time.Second,
	}
}

// ResolveA returns all A-record (IPv4) addresses for a domain.
func (r *Resolver) ResolveA(ctx context.Context, domain string) ([]netip.Addr, error) {
	return r.query(ctx, domain, dns.TypeA)
}

// ResolveAAAA returns all AAAA-record (IPv6) addresses for a domain.
func (r *Resolver) ResolveAAAA(ctx context.Context, domain string) ([]netip.Addr, error) {
	return r.query(ctx, domain, dns.TypeAAAA)
}

// ResolvePreferred resolves domain, trying AAAA first when preferV6 is
// true (else A first) and falling back to the other family on empty
// result or failure. Used when the egress subnet's address family sets
// the preference order.
func (r *Resolver) ResolvePreferred(ctx context.Context, domain string, preferV6 bool) ([]netip.Addr, error) {
	first, second := r.ResolveA, r.ResolveAAAA
	if preferV6 {
		first, second = r.ResolveAAAA, r.ResolveA
	}

	addrs, err := first(ctx, domain)
	if err == nil && len(addrs) > 0 {
		return addrs, nil
	}
	addrs, err2 := second(ctx, domain)
	if err2 == nil && len(addrs) > 0 {
		return addrs, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, err2
}

func (r *Resolver) query(ctx context.Context, domain string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true

	client := &dns.Client{
		Net:          "udp",
		ReadTimeout:  r.Timeout,
		WriteTimeout: r.Timeout,
	}

	resp, _, err := client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return nil, fmt.Errorf("dns query %s: %w", domain, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns query %s: rcode %s", domain, dns.RcodeToString[resp.Rcode])
	}

	var addrs []netip.Addr
	for _, ans := range resp.Answer {
		switch rr := ans.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rr.A.To4()); ok {
				addrs = append(addrs, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rr.AAAA.To16()); ok {
				addrs = append(addrs, addr)
			}
		}
	}
	return addrs, nil
}
