package levelhash

// HashProvider supplies the two independent 64-bit hash functions the core
// uses to compute a key's candidate bucket positions (spec.md §6). The core
// makes no assumption beyond uniform distribution and determinism across
// process lifetimes; hash-function selection itself is out of scope for the
// core and lives entirely behind this capability.
type HashProvider interface {
	// Hash1 and Hash2 must be deterministic and, taken together, should
	// behave as if independent: Hash1(k) and Hash2(k) colliding for two
	// distinct keys should not make Hash2 collide for the same pair too.
	Hash1(key []byte) uint64
	Hash2(key []byte) uint64
}

// candidateBucket returns h mod N for a level with N buckets. N is always a
// power of two in this package, but the mod is expressed generally since
// expansion sizes the interim level to an explicit bucket count rather than
// handing callers a mask.
func candidateBucket(h, bucketCount uint64) uint64 {
	return h % bucketCount
}
