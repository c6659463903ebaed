package levelhash

import "fmt"

// expand runs the Expansion operation to completion (spec.md §4.4): allocate
// an interim level sized double the current top, drain every bottom entry
// into it (with bounded intra-level stashing), relabel interim as the new
// top and the old top as the new bottom, and discard the old bottom.
//
// expand always leaves the index in stateSteady before returning, win or
// lose — Expanding/Shrinking are never observed outside a single call, so a
// second expansion can never be requested while one is already running.
func (ix *Index) expand() error {
	if ix.state != stateSteady {
		return fmt.Errorf("%w: expansion already in progress", ErrExpansionFailed)
	}

	ix.state = stateExpanding
	defer func() { ix.state = stateSteady }()

	if !ix.km.HasInterim() {
		if err := ix.km.AllocateInterim(); err != nil {
			return err
		}
	}

	for round := 0; ; round++ {
		drained, err := ix.drainBottomIntoInterim()
		if err != nil {
			return err
		}

		if drained {
			break
		}

		if round >= maxDisplacementRounds {
			return fmt.Errorf("%w: exhausted %d displacement rounds draining bottom into interim", ErrExpansionFailed, maxDisplacementRounds)
		}

		if err := ix.growInterim(); err != nil {
			return err
		}
	}

	oldBottomSize := levelByteSize(levelBucketCount(ix.km.levelSize, 1), ix.km.bucketSize)
	deallocOff, deallocLen := ix.km.PromoteInterimToTop(oldBottomSize)

	if err := ix.keymapRegion.Deallocate(deallocOff, deallocLen); err != nil {
		return err
	}

	if err := ix.keymapRegion.Flush(0, uint64(ix.keymapRegion.Size())); err != nil {
		return err
	}

	ix.syncMetaGeometry()

	return ix.meta.Save()
}

// drainBottomIntoInterim moves every occupied bottom slot into the interim
// level, spending at most Options.DisplacementBudget stash attempts. It
// returns drained=true only if every bottom slot ends up empty; stragglers
// left behind (the budget ran out, or interim is structurally too small)
// mean the caller must grow the interim and try again.
func (ix *Index) drainBottomIntoInterim() (drained bool, err error) {
	bucketCount := ix.km.bucketCount(levelBottom)
	budget := ix.opts.DisplacementBudget
	allMoved := true

	for b := uint64(0); b < bucketCount; b++ {
		for s := uint8(0); s < ix.km.bucketSize; s++ {
			addr := ix.km.ReadSlot(levelBottom, b, s)
			if addr == 0 {
				continue
			}

			key, rerr := ix.values.ReadKey(addr)
			if rerr != nil {
				return false, rerr
			}

			h1, h2 := ix.hp.Hash1(key), ix.hp.Hash2(key)
			ib1, ib2 := ix.km.CandidateBuckets(levelInterim, h1, h2)

			if destBucket, destSlot, ok := ix.tryPlaceEmpty(levelInterim, ib1, ib2); ok {
				ix.km.WriteSlot(levelInterim, destBucket, destSlot, addr)
				ix.km.ClearSlot(levelBottom, b, s)

				continue
			}

			if budget > 0 {
				destBucket, destSlot, ok, serr := ix.tryIntraLevelStash(levelInterim, ib1, ib2)
				if serr != nil {
					return false, serr
				}

				budget--

				if ok {
					ix.km.WriteSlot(levelInterim, destBucket, destSlot, addr)
					ix.km.ClearSlot(levelBottom, b, s)

					continue
				}
			}

			allMoved = false
		}
	}

	return allMoved, nil
}

// growInterim doubles the interim level's own level_size (spec.md §4.4
// step 2's "double the interim further"). Every address currently placed in
// the old interim is re-seeded into the new, bigger one; draining then
// resumes against whatever bottom entries are still stragglers.
func (ix *Index) growInterim() error {
	oldAddr := ix.km.interimAddr
	oldL := ix.km.interimL
	oldBucketCount := levelBucketCount(oldL, 0)
	oldSize := levelByteSize(oldBucketCount, ix.km.bucketSize)

	addrs := make([]uint64, 0)
	for b := uint64(0); b < oldBucketCount; b++ {
		for s := uint8(0); s < ix.km.bucketSize; s++ {
			if a := ix.km.ReadSlot(levelInterim, b, s); a != 0 {
				addrs = append(addrs, a)
			}
		}
	}

	if err := ix.km.AllocateInterimAtLevel(oldL + 1); err != nil {
		return err
	}

	for _, addr := range addrs {
		key, err := ix.values.ReadKey(addr)
		if err != nil {
			return err
		}

		h1, h2 := ix.hp.Hash1(key), ix.hp.Hash2(key)
		ib1, ib2 := ix.km.CandidateBuckets(levelInterim, h1, h2)

		if bucket, slot, ok := ix.tryPlaceEmpty(levelInterim, ib1, ib2); ok {
			ix.km.WriteSlot(levelInterim, bucket, slot, addr)
			continue
		}

		if bucket, slot, ok, serr := ix.tryIntraLevelStash(levelInterim, ib1, ib2); serr != nil {
			return serr
		} else if ok {
			ix.km.WriteSlot(levelInterim, bucket, slot, addr)
			continue
		}

		return fmt.Errorf("%w: could not re-seed entry into doubled interim", ErrExpansionFailed)
	}

	return ix.keymapRegion.Deallocate(oldAddr, oldSize)
}

// shrink runs the optional Shrink operation (spec.md §4.4): migrate the
// current top level into a new, half-size interim; if every top entry
// relocates, relabel the old bottom as the new top and the shrink-interim as
// the new bottom, and discard the old top. Shrink is best-effort: if the
// smaller interim cannot hold every top entry it is abandoned and the index
// is left unchanged, rather than returning a hard failure to a Delete call.
func (ix *Index) shrink() error {
	if ix.state != stateSteady {
		return nil
	}

	newLevelSize := ix.km.levelSize - 1
	if newLevelSize < ix.opts.MinLevelSize {
		return nil
	}

	ix.state = stateShrinking
	defer func() { ix.state = stateSteady }()

	shrinkBucketCount := levelBucketCount(newLevelSize, 1)
	shrinkSize := levelByteSize(shrinkBucketCount, ix.km.bucketSize)

	shrinkBase := uint64(ix.keymapRegion.Size())
	if err := ix.keymapRegion.Resize(int64(shrinkBase + shrinkSize)); err != nil {
		return err
	}
	ix.keymapRegion.Zero(shrinkBase, shrinkSize)

	topBucketCount := ix.km.bucketCount(levelTop)

	ok := func() bool {
		for b := uint64(0); b < topBucketCount; b++ {
			for s := uint8(0); s < ix.km.bucketSize; s++ {
				addr := ix.km.ReadSlot(levelTop, b, s)
				if addr == 0 {
					continue
				}

				key, err := ix.values.ReadKey(addr)
				if err != nil {
					return false
				}

				h1, h2 := ix.hp.Hash1(key), ix.hp.Hash2(key)
				n := shrinkBucketCount
				sb1, sb2 := candidateBucket(h1, n), candidateBucket(h2, n)

				destBucket, destSlot, found := findEmptySlotIn(ix.keymapRegion, shrinkBase, ix.km.bucketSize, sb1, sb2)
				if !found {
					destBucket, destSlot, found = stashIn(ix, shrinkBase, shrinkBucketCount, sb1, sb2)
				}

				if !found {
					return false
				}

				writeSlotIn(ix.keymapRegion, shrinkBase, ix.km.bucketSize, destBucket, destSlot, addr)
			}
		}

		return true
	}()

	if !ok {
		return ix.keymapRegion.Resize(int64(shrinkBase))
	}

	oldTopSize := levelByteSize(topBucketCount, ix.km.bucketSize)
	deallocOff, deallocLen := ix.km.ShrinkRelabel(shrinkBase, oldTopSize)

	if err := ix.keymapRegion.Deallocate(deallocOff, deallocLen); err != nil {
		return err
	}

	if err := ix.keymapRegion.Flush(0, uint64(ix.keymapRegion.Size())); err != nil {
		return err
	}

	ix.syncMetaGeometry()

	return ix.meta.Save()
}

// findEmptySlotIn/stashIn/writeSlotIn operate on the shrink-interim directly
// by byte offset rather than through *keymap, since the shrink-interim isn't
// registered as k.interimAddr (there is no third "level" concept for a
// shrink target — it becomes the new bottom wholesale, not an interim that
// Lookup or Insert ever see).
func findEmptySlotIn(r *region, base uint64, bucketSize uint8, b1, b2 uint64) (bucket uint64, slot uint8, ok bool) {
	for _, b := range orderBuckets(b1, b2) {
		for s := uint8(0); s < bucketSize; s++ {
			if r.ReadU64(slotByteOffset(base, b, s, bucketSize)) == 0 {
				return b, s, true
			}
		}
	}

	return 0, 0, false
}

func writeSlotIn(r *region, base uint64, bucketSize uint8, bucket uint64, slot uint8, addr uint64) {
	r.WriteU64(slotByteOffset(base, bucket, slot, bucketSize), addr)
}

// stashIn performs the same single-displacement move as
// Index.tryIntraLevelStash, but against the not-yet-adopted shrink-interim
// array addressed by (base, bucketCount) instead of a *keymap level.
func stashIn(ix *Index, base uint64, bucketCount uint64, b1, b2 uint64) (bucket uint64, slot uint8, ok bool) {
	bucketSize := ix.km.bucketSize

	for _, b := range orderBuckets(b1, b2) {
		for s := uint8(0); s < bucketSize; s++ {
			occAddr := ix.keymapRegion.ReadU64(slotByteOffset(base, b, s, bucketSize))
			if occAddr == 0 {
				continue
			}

			occKey, err := ix.values.ReadKey(occAddr)
			if err != nil {
				continue
			}

			oh1, oh2 := ix.hp.Hash1(occKey), ix.hp.Hash2(occKey)
			ob1, ob2 := candidateBucket(oh1, bucketCount), candidateBucket(oh2, bucketCount)

			alt := ob1
			if alt == b {
				alt = ob2
			}
			if alt == b {
				continue
			}

			moved := false
			for as := uint8(0); as < bucketSize; as++ {
				if ix.keymapRegion.ReadU64(slotByteOffset(base, alt, as, bucketSize)) == 0 {
					writeSlotIn(ix.keymapRegion, base, bucketSize, alt, as, occAddr)
					moved = true
					break
				}
			}

			if moved {
				return b, s, true
			}
		}
	}

	return 0, 0, false
}
