// Package cyclic implements a lazy, non-repeating, pseudo-random
// permutation of a subnet's host range, computed without ever storing the
// set of addresses already visited. It does so by walking a cyclic
// multiplicative group of integers modulo a prime, using a freshly chosen
// primitive root (and random seed) for every pass over the range.
package cyclic

import (
	"fmt"
	"net/netip"

	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Pool is an immutable IPv4 or IPv6 address pool parsed from CIDR.
type Pool struct {
	Prefix    netip.Prefix
	Version   int // 4 or 6
	HostBits  int // max_prefixlen - prefix_len, not clamped; unbounded above 32
	HostCount uint64
	degenerate bool // prefix_len > max_prefixlen-2: size-<=2 subnet, linear scan
	bounded   bool // HostBits <= 32: use the multiplicative-group algorithm
}

// NewPool parses a CIDR string into a Pool, validating that prefix_len
// <= 128 (v6) or <= 32 (v4).
func NewPool(cidr string) (*Pool, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, proxyerr.Wrapf(err, proxyerr.KindConfig, "invalid subnet %q", cidr)
	}
	prefix = prefix.Masked()

	version := 4
	maxPrefixLen := 32
	if prefix.Addr().Is6() && !prefix.Addr().Is4In6() {
		version = 6
		maxPrefixLen = 128
	}

	prefixLen := prefix.Bits()
	if prefixLen < 0 || prefixLen > maxPrefixLen {
		return nil, proxyerr.Errorf(proxyerr.KindConfig, "invalid prefix length %d for IPv%d subnet %q", prefixLen, version, cidr)
	}

	hostBits := maxPrefixLen - prefixLen

	p := &Pool{
		Prefix:   prefix,
		Version:  version,
		HostBits: hostBits,
	}

	switch {
	case prefixLen > maxPrefixLen-2:
		// /31, /32 (v4) or /127, /128 (v6): too small to exclude
		// network/broadcast addresses. Degenerates to a linear scan.
		p.degenerate = true
		p.HostCount = uint64(1) << uint(hostBits)
	case hostBits <= 32:
		p.bounded = true
		p.HostCount = (uint64(1) << uint(hostBits)) - 2 // exclude network and broadcast addresses
	default:
		// Host space too large to permute without storage; falls back to
		// unbounded uniform sampling (duplicates tolerated). hostBits can
		// reach 126 for an IPv6 /2, where 1<<hostBits overflows uint64 to 0;
		// clamp to the full uint64 range instead so nextUnbounded still
		// samples uniformly rather than only ever returning offset 0.
		if hostBits >= 64 {
			p.HostCount = ^uint64(0)
		} else {
			p.HostCount = uint64(1) << uint(hostBits)
		}
	}

	return p, nil
}

// NetworkAddress returns the first address of the pool (the network
// address), used as the offset added to a generator's walk position.
func (p *Pool) NetworkAddress() netip.Addr {
	return p.Prefix.Addr()
}

func (p *Pool) String() string {
	return fmt.Sprintf("%s (IPv%d, %d usable hosts)", p.Prefix, p.Version, p.HostCount)
}

// addrAt returns the address at offset n from the network address (n=0 is
// the network address itself), wrapping within the pool's address width.
func (p *Pool) addrAt(n uint64) netip.Addr {
	base := p.Prefix.Addr().As16()
	// Treat base as a 128-bit big-endian integer, add n, and re-slice to
	// the original address width.
	var carry uint64 = n
	for i := 15; i >= 0 && carry > 0; i-- {
		sum := uint64(base[i]) + carry
		base[i] = byte(sum)
		carry = sum >> 8
	}
	addr := netip.AddrFrom16(base)
	if p.Version == 4 {
		return addr.Unmap()
	}
	return addr
}
