package levelhash

import "bytes"

// lookupResult identifies where an entry lives in the keymap, so mutate.go
// can clear the exact slot it found without a second scan.
type lookupResult struct {
	Addr   uint64
	Level  keymapLevel
	Bucket uint64
	Slot   uint8
	Found  bool
}

// lookup scans a key's candidate buckets in top, then interim (if present),
// then bottom order (spec.md §4.4's Lookup), each bucket's slots ascending,
// and returns the first match.
func (ix *Index) lookup(key []byte) (lookupResult, error) {
	h1, h2 := ix.hp.Hash1(key), ix.hp.Hash2(key)

	levels := make([]keymapLevel, 0, 3)
	levels = append(levels, levelTop)
	if ix.km.HasInterim() {
		levels = append(levels, levelInterim)
	}
	levels = append(levels, levelBottom)

	for _, lvl := range levels {
		b1, b2 := ix.km.CandidateBuckets(lvl, h1, h2)

		for _, b := range orderBuckets(b1, b2) {
			for s := uint8(0); s < ix.km.bucketSize; s++ {
				addr := ix.km.ReadSlot(lvl, b, s)
				if addr == 0 {
					continue
				}

				k, err := ix.values.ReadKey(addr)
				if err != nil {
					return lookupResult{}, err
				}

				if bytes.Equal(k, key) {
					return lookupResult{Addr: addr, Level: lvl, Bucket: b, Slot: s, Found: true}, nil
				}
			}
		}
	}

	return lookupResult{}, nil
}

func validateKeyValue(key, value []byte) error {
	if len(key) == 0 {
		return invalidInputf("key must not be empty")
	}

	if len(key) > maxKeySizeBytes {
		return invalidInputf("key length %d exceeds maximum %d", len(key), maxKeySizeBytes)
	}

	if len(value) > maxValueSizeBytes {
		return invalidInputf("value length %d exceeds maximum %d", len(value), maxValueSizeBytes)
	}

	return nil
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (ix *Index) Get(key []byte) ([]byte, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}

	if len(key) == 0 {
		return nil, invalidInputf("key must not be empty")
	}

	res, err := ix.lookup(key)
	if err != nil {
		return nil, ix.latch(err)
	}

	if !res.Found {
		return nil, ErrKeyNotFound
	}

	entry, err := ix.values.ReadEntry(res.Addr)
	if err != nil {
		return nil, ix.latch(err)
	}

	return entry.Value, nil
}

// Contains reports whether key is present, without reading its value.
func (ix *Index) Contains(key []byte) (bool, error) {
	if err := ix.checkOpen(); err != nil {
		return false, err
	}

	if len(key) == 0 {
		return false, invalidInputf("key must not be empty")
	}

	res, err := ix.lookup(key)
	if err != nil {
		return false, ix.latch(err)
	}

	return res.Found, nil
}
