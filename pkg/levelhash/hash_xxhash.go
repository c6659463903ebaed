package levelhash

import "github.com/cespare/xxhash/v2"

// xxHashProvider is the default HashProvider, built on a single well-tested
// hash primitive rather than inventing a second one. Hash2 is Hash1 applied
// to the key with a fixed salt appended, which is sufficient independence
// for bucket placement: the two hashes only need to avoid colliding in
// lockstep across keys, not to be cryptographically unrelated.
type xxHashProvider struct {
	salt []byte
}

// NewXXHashProvider returns a HashProvider built on github.com/cespare/xxhash/v2.
// Suitable as a default for tests, benchmarks, and callers with no
// preference on hash algorithm.
func NewXXHashProvider() HashProvider {
	return &xxHashProvider{salt: []byte("levelhash-h2-salt")}
}

func (p *xxHashProvider) Hash1(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (p *xxHashProvider) Hash2(key []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(key)
	_, _ = d.Write(p.salt)

	return d.Sum64()
}
