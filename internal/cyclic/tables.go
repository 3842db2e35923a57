package cyclic

// cyclicParams holds the precomputed multiplicative-group parameters used to
// permute a bounded host range: prime is the smallest prime strictly greater
// than 2^hostbits, root is a known primitive root of (Z/primeZ)*, and
// factors lists the prime factors of prime-1, used by the coprimality
// shortcut in newPrimitiveRoot.
type cyclicParams struct {
	prime  uint64
	root   uint64
	factors []uint64
}

// paramsByHostBits is indexed by host-bit count (2..32), i.e. max_prefixlen
// - prefix_len for the network in question, not by the raw prefix length.
// Keying by `prefixlen % 32` instead only happens to agree with this for
// IPv4 and silently mis-keys bounded-mode IPv6 subnets (prefix >= 96); this
// indexing is deliberate so IPv6 subnets with <=32 host bits also get a
// correct bounded permutation.
var paramsByHostBits = map[int]cyclicParams{
	2:  {5, 2, []uint64{2}},
	3:  {11, 2, []uint64{2, 5}},
	4:  {17, 3, []uint64{2}},
	5:  {37, 2, []uint64{2, 3}},
	6:  {67, 2, []uint64{2, 3, 11}},
	7:  {131, 2, []uint64{2, 5, 13}},
	8:  {257, 3, []uint64{2}},
	9:  {521, 3, []uint64{2, 5, 13}},
	10: {1031, 14, []uint64{2, 5, 103}},
	11: {2053, 2, []uint64{2, 3, 19}},
	12: {4099, 2, []uint64{2, 3, 683}},
	13: {8209, 7, []uint64{2, 3, 19}},
	14: {16411, 3, []uint64{2, 3, 5, 547}},
	15: {32771, 2, []uint64{2, 5, 29, 113}},
	16: {65537, 3, []uint64{2}},
	17: {131101, 17, []uint64{2, 3, 5, 19, 23}},
	18: {262147, 2, []uint64{2, 3, 43691}},
	19: {524309, 2, []uint64{2, 23, 41, 139}},
	20: {1048583, 5, []uint64{2, 29, 101, 179}},
	21: {2097169, 47, []uint64{2, 3, 43691}},
	22: {4194319, 3, []uint64{2, 3, 699053}},
	23: {8388617, 3, []uint64{2, 17, 61681}},
	24: {16777259, 2, []uint64{2, 23, 103, 3541}},
	25: {33554467, 2, []uint64{2, 3, 11, 56489}},
	26: {67108879, 3, []uint64{2, 3, 1242757}},
	27: {134217757, 5, []uint64{2, 3, 1242757}},
	28: {268435459, 2, []uint64{2, 3, 19, 87211}},
	29: {536870923, 3, []uint64{2, 3, 7, 23, 555767}},
	30: {1073741827, 2, []uint64{2, 3, 59, 3033169}},
	31: {2147483659, 2, []uint64{2, 3, 149, 2402107}},
	32: {4294967311, 3, []uint64{2, 3, 5, 131, 364289}},
}
