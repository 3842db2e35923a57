package cyclic

import (
	"net/netip"
	"testing"
)

// TestBoundedCyclePermutation verifies that a full cycle over a /28
// yields exactly host_count distinct addresses covering
// network+1 .. network+host_count.
func TestBoundedCyclePermutation(t *testing.T) {
	pool, err := NewPool("10.0.0.0/28")
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.HostCount != 14 {
		t.Fatalf("expected 14 usable hosts, got %d", pool.HostCount)
	}

	seq, err := NewSequence(pool, nil)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	seen := make(map[netip.Addr]int)
	for i := 0; i < int(pool.HostCount); i++ {
		addr, ok := seq.Next()
		if !ok {
			t.Fatalf("Next() returned false at index %d", i)
		}
		seen[addr]++
	}

	if len(seen) != 14 {
		t.Fatalf("expected 14 distinct addresses, got %d", len(seen))
	}
	for i := 1; i <= 14; i++ {
		want := netip.MustParseAddr("10.0.0.0").As4()
		want[3] += byte(i)
		addr := netip.AddrFrom4(want)
		if seen[addr] != 1 {
			t.Errorf("address %s yielded %d times, want 1", addr, seen[addr])
		}
	}
}

// TestBoundedCycleDiffersAcrossRuns exercises the property that two
// independently constructed sequences over the same subnet differ at the
// first position with overwhelming probability.
func TestBoundedCycleDiffersAcrossRuns(t *testing.T) {
	pool, err := NewPool("10.1.0.0/24")
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	first := func() netip.Addr {
		seq, err := NewSequence(pool, nil)
		if err != nil {
			t.Fatalf("NewSequence: %v", err)
		}
		addr, _ := seq.Next()
		return addr
	}

	a, b := first(), first()
	// Run several pairs; at least one must differ, or the RNG is broken.
	differed := a != b
	for i := 0; i < 10 && !differed; i++ {
		differed = first() != first()
	}
	if !differed {
		t.Error("expected sequences to differ across constructions")
	}
}

// TestBlacklistExclusion verifies that the yielded stream never
// intersects a supplied blacklist.
func TestBlacklistExclusion(t *testing.T) {
	pool, err := NewPool("10.2.0.0/28")
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	blacklist := []netip.Addr{
		netip.MustParseAddr("10.2.0.5"),
		netip.MustParseAddr("10.2.0.9"),
	}
	seq, err := NewSequence(pool, blacklist)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	blocked := make(map[netip.Addr]struct{}, len(blacklist))
	for _, b := range blacklist {
		blocked[b] = struct{}{}
	}

	// A full cycle yields 12 (14 minus 2 blacklisted); sample well past
	// that to also cover the re-seeded next cycle.
	for i := 0; i < 40; i++ {
		addr, ok := seq.Next()
		if !ok {
			t.Fatalf("Next() returned false at index %d", i)
		}
		if _, isBlacklisted := blocked[addr]; isBlacklisted {
			t.Fatalf("yielded blacklisted address %s", addr)
		}
	}
}

// TestDegenerateLinearScan covers the /31-and-smaller edge case.
func TestDegenerateLinearScan(t *testing.T) {
	pool, err := NewPool("10.3.0.0/31")
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if !pool.degenerate {
		t.Fatal("expected /31 to be treated as degenerate")
	}
	seq, err := NewSequence(pool, nil)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	seen := make(map[netip.Addr]struct{})
	for i := 0; i < 4; i++ {
		addr, _ := seq.Next()
		seen[addr] = struct{}{}
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 distinct addresses from /31 scan, got %d", len(seen))
	}
}

// TestUnboundedSampling covers the >32-host-bit fallback (here, a /64 IPv6
// network has 64 host bits).
func TestUnboundedSampling(t *testing.T) {
	pool, err := NewPool("fd00::/64")
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.bounded || pool.degenerate {
		t.Fatal("expected /64 to use unbounded sampling")
	}
	seq, err := NewSequence(pool, nil)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	for i := 0; i < 5; i++ {
		addr, ok := seq.Next()
		if !ok {
			t.Fatalf("Next() returned false at index %d", i)
		}
		if !pool.Prefix.Contains(addr) {
			t.Errorf("address %s not contained in %s", addr, pool.Prefix)
		}
	}
}
