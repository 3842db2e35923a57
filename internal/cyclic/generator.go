package cyclic

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"math/big"
	"math/bits"
	mrand "math/rand"
	"net/netip"

	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Sequence is a pull-based, lazy, infinite stream of addresses drawn from a
// Pool. Next returns false only if the pool is exhausted without wraparound
// (never happens for the bounded/unbounded modes below, which re-seed a
// fresh cycle on completion rather than terminating).
type Sequence struct {
	pool      *Pool
	rng       *mrand.Rand
	blacklist map[netip.Addr]struct{}

	// bounded-mode cycle state
	params cyclicParams
	root   uint64
	seed   uint64
	n      uint64
	started bool

	// degenerate linear-scan state
	scanOffset uint64
}

// NewSequence creates a Sequence over pool. blacklist entries are never
// yielded.
func NewSequence(pool *Pool, blacklist []netip.Addr) (*Sequence, error) {
	s := &Sequence{
		pool: pool,
		rng:  mrand.New(mrand.NewSource(randomSeed())),
	}
	if len(blacklist) > 0 {
		s.blacklist = make(map[netip.Addr]struct{}, len(blacklist))
		for _, a := range blacklist {
			s.blacklist[a] = struct{}{}
		}
	}

	if pool.bounded {
		params, ok := paramsByHostBits[pool.HostBits]
		if !ok {
			return nil, proxyerr.Errorf(proxyerr.KindInternal, "no cyclic parameters for host-bit count %d", pool.HostBits)
		}
		s.params = params
	}

	return s, nil
}

// Next returns the next address in the permutation, skipping any address
// in the blacklist. It never returns false: once a cycle completes, a new
// one is started with a fresh random root/seed (bounded mode) or the walk
// simply continues (degenerate/unbounded modes).
func (s *Sequence) Next() (netip.Addr, bool) {
	for {
		addr, ok := s.rawNext()
		if !ok {
			return netip.Addr{}, false
		}
		if s.blacklist != nil {
			if _, excluded := s.blacklist[addr]; excluded {
				continue
			}
		}
		return addr, true
	}
}

func (s *Sequence) rawNext() (netip.Addr, bool) {
	switch {
	case s.pool.degenerate:
		return s.nextLinear(), true
	case s.pool.bounded:
		return s.nextBounded(), true
	default:
		return s.nextUnbounded(), true
	}
}

// nextLinear implements the degenerate case (subnets of size <=2): a plain,
// repeating scan of every address in the pool, in order.
func (s *Sequence) nextLinear() netip.Addr {
	addr := s.pool.addrAt(s.scanOffset)
	s.scanOffset = (s.scanOffset + 1) % s.pool.HostCount
	return addr
}

// nextUnbounded implements the fallback for subnets with more than 32 host
// bits: uniform random sampling of the range, duplicates tolerated.
func (s *Sequence) nextUnbounded() netip.Addr {
	offset := randUint64n(s.rng, s.pool.HostCount)
	return s.pool.addrAt(offset)
}

// nextBounded implements the multiplicative-group permutation: walk
// n <- (n*root) mod prime, yielding network+n whenever n falls within the
// usable host range, until n returns to the seed (one full cycle), then
// silently begin a new cycle with a fresh root and seed.
func (s *Sequence) nextBounded() netip.Addr {
	for {
		if !s.started {
			s.root = s.newPrimitiveRoot()
			s.seed = 1 + randUint64n(s.rng, s.pool.HostCount)
			s.n = s.seed
			s.started = true
		}

		n := s.n
		s.n = mulModUint64(s.n, s.root, s.params.prime)
		if s.n == s.seed {
			// Cycle complete; next call starts a fresh one.
			s.started = false
		}

		if n <= s.pool.HostCount {
			return s.pool.addrAt(n)
		}
		// n fell outside the usable range; it still advanced the walk
		// (and may have closed the cycle above), but yields nothing this
		// step. Loop again.
	}
}

// newPrimitiveRoot finds a fresh primitive root of (Z/primeZ)* by picking a
// random exponent c coprime to prime-1 and computing root0^c mod prime.
// Coprimality is tested via a shortcut (i%c == 0 || c%i == 0 against the
// precomputed factors of prime-1), deliberately not a true gcd: it may
// admit a few non-generators but in practice still produces long cycles.
func (s *Sequence) newPrimitiveRoot() uint64 {
	phi := s.params.prime - 1
	for {
		c := 3 + randUint64n(s.rng, phi-3)
		coprime := true
		for _, f := range s.params.factors {
			if f%c == 0 || c%f == 0 {
				coprime = false
				break
			}
		}
		if !coprime {
			continue
		}
		return modPow(s.params.root, c, s.params.prime)
	}
}

// modPow computes base^exp mod m for values that may not fit a uint64
// product; big.Int keeps this exact regardless of the /0 network's ~4.3e9
// modulus, and this only runs once per cycle.
func modPow(base, exp, m uint64) uint64 {
	result := new(big.Int).Exp(big.NewInt(0).SetUint64(base), big.NewInt(0).SetUint64(exp), big.NewInt(0).SetUint64(m))
	return result.Uint64()
}

// mulModUint64 computes (a*b) mod m without overflow, using the full
// 128-bit product of a*b.
func mulModUint64(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi%m, lo, m)
	return rem
}

// randUint64n returns a uniform value in [0, n). n may exceed math.MaxInt64
// (the clamped HostCount for an unbounded pool with >=64 host bits), so
// values that large are drawn via Uint64 and reduced mod n instead of
// through Int63n, which only accepts a positive int64.
func randUint64n(rng *mrand.Rand, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	if n <= uint64(math.MaxInt64) {
		return uint64(rng.Int63n(int64(n)))
	}
	return rng.Uint64() % n
}

// randomSeed draws a seed for math/rand from crypto/rand so that two
// Sequences constructed back-to-back produce different orderings with
// overwhelming probability.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return int64(binary.BigEndian.Uint64(buf[:]) & (1<<63 - 1))
}
