package levelhash

// placement.go holds the slot-finding helpers shared by Insert (mutate.go)
// and the interim-draining pass of Expansion (expansion.go). Both need the
// same two primitives: "is either candidate bucket empty" and "can an
// existing occupant be moved aside to free one", they just move occupants to
// different destinations (cross-level for Insert, same-level for Expansion).

// tryPlaceEmpty looks for an empty slot in either candidate bucket, without
// disturbing any existing occupant.
func (ix *Index) tryPlaceEmpty(level keymapLevel, b1, b2 uint64) (bucket uint64, slot uint8, ok bool) {
	for _, b := range orderBuckets(b1, b2) {
		if s, found := ix.km.FindEmptySlot(level, b); found {
			return b, s, true
		}
	}

	return 0, 0, false
}

// tryCrossLevelStash is the Insert-path stash (spec.md §4.4 step 3): both top
// candidate buckets are full, so for each occupant of those buckets (in
// bucket-ascending, slot-ascending order) check whether the occupant itself
// has room in one of its own bottom-level candidate buckets. The first
// occupant that does is moved there, freeing its top slot for the new entry.
func (ix *Index) tryCrossLevelStash(topB1, topB2 uint64) (bucket uint64, slot uint8, ok bool, err error) {
	for _, tb := range orderBuckets(topB1, topB2) {
		for s := uint8(0); s < ix.km.bucketSize; s++ {
			occAddr := ix.km.ReadSlot(levelTop, tb, s)
			if occAddr == 0 {
				continue
			}

			occKey, rerr := ix.values.ReadKey(occAddr)
			if rerr != nil {
				return 0, 0, false, rerr
			}

			oh1, oh2 := ix.hp.Hash1(occKey), ix.hp.Hash2(occKey)
			ob1, ob2 := ix.km.CandidateBuckets(levelBottom, oh1, oh2)

			if destBucket, destSlot, found := ix.tryPlaceEmpty(levelBottom, ob1, ob2); found {
				ix.km.WriteSlot(levelBottom, destBucket, destSlot, occAddr)
				ix.km.ClearSlot(levelTop, tb, s)

				return tb, s, true, nil
			}
		}
	}

	return 0, 0, false, nil
}

// tryIntraLevelStash is the Expansion-path stash (spec.md §4.4 step 2): both
// interim candidate buckets are full, so for each occupant check whether its
// *other* candidate bucket within the same level has room. Unlike
// tryCrossLevelStash this never changes levels; it is the single-displacement
// two-choice move used while draining bottom into interim.
func (ix *Index) tryIntraLevelStash(level keymapLevel, b1, b2 uint64) (bucket uint64, slot uint8, ok bool, err error) {
	for _, b := range orderBuckets(b1, b2) {
		for s := uint8(0); s < ix.km.bucketSize; s++ {
			occAddr := ix.km.ReadSlot(level, b, s)
			if occAddr == 0 {
				continue
			}

			occKey, rerr := ix.values.ReadKey(occAddr)
			if rerr != nil {
				return 0, 0, false, rerr
			}

			oh1, oh2 := ix.hp.Hash1(occKey), ix.hp.Hash2(occKey)
			ob1, ob2 := ix.km.CandidateBuckets(level, oh1, oh2)

			alt := ob1
			if alt == b {
				alt = ob2
			}
			if alt == b {
				continue // both of the occupant's candidates are this bucket
			}

			if destSlot, found := ix.km.FindEmptySlot(level, alt); found {
				ix.km.WriteSlot(level, alt, destSlot, occAddr)
				ix.km.ClearSlot(level, b, s)

				return b, s, true, nil
			}
		}
	}

	return 0, 0, false, nil
}
