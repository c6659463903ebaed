package levelhash

import "fmt"

// Insert adds (key, value). It returns ErrKeyExists if key is already
// present; Insert never overwrites (spec.md §4.4, use Update for that).
func (ix *Index) Insert(key, value []byte) error {
	if err := ix.checkOpen(); err != nil {
		return err
	}

	if err := validateKeyValue(key, value); err != nil {
		return err
	}

	res, err := ix.lookup(key)
	if err != nil {
		return ix.latch(err)
	}

	if res.Found {
		return ErrKeyExists
	}

	return ix.insertNew(key, value)
}

// insertNew runs the placement algorithm (spec.md §4.4 steps 1-5): direct top
// placement, cross-level stash, direct bottom placement, and — if all three
// fail — one Expansion followed by a single retry.
func (ix *Index) insertNew(key, value []byte) error {
	for attempt := 0; attempt < 2; attempt++ {
		h1, h2 := ix.hp.Hash1(key), ix.hp.Hash2(key)

		tb1, tb2 := ix.km.CandidateBuckets(levelTop, h1, h2)

		if bucket, slot, ok := ix.tryPlaceEmpty(levelTop, tb1, tb2); ok {
			return ix.commitInsert(levelTop, bucket, slot, key, value)
		}

		if bucket, slot, ok, err := ix.tryCrossLevelStash(tb1, tb2); err != nil {
			return ix.latch(err)
		} else if ok {
			return ix.commitInsert(levelTop, bucket, slot, key, value)
		}

		bb1, bb2 := ix.km.CandidateBuckets(levelBottom, h1, h2)

		if bucket, slot, ok := ix.tryPlaceEmpty(levelBottom, bb1, bb2); ok {
			return ix.commitInsert(levelBottom, bucket, slot, key, value)
		}

		if attempt > 0 {
			break
		}

		if err := ix.expand(); err != nil {
			return ix.latch(err)
		}
	}

	return fmt.Errorf("%w: no free slot available even after expansion", ErrExpansionFailed)
}

// commitInsert performs the actual write: append to the Values Store first,
// flush it, then write the Keymap slot and flush that too (spec.md §5's
// ordering guarantee — Values before Keymap before Metadata), then update
// Metadata's head/tail/file-size bookkeeping and save it last.
func (ix *Index) commitInsert(level keymapLevel, bucket uint64, slot uint8, key, value []byte) error {
	m := ix.meta.Get()

	addr, newSize, err := ix.values.Append(key, value, m.ValuesTailEntry)
	if err != nil {
		return err
	}

	if err := ix.valuesRegion.Flush(0, uint64(ix.valuesRegion.Size())); err != nil {
		return err
	}

	ix.km.WriteSlot(level, bucket, slot, addr)

	if err := ix.keymapRegion.Flush(0, uint64(ix.keymapRegion.Size())); err != nil {
		return err
	}

	if m.ValuesHeadEntry == 0 {
		m.ValuesHeadEntry = addr
	}
	m.ValuesTailEntry = addr
	m.ValuesFileSizeBytes = newSize
	ix.meta.Set(m)

	ix.deleteStreak = 0

	return ix.meta.Save()
}

// Update replaces the value stored for key and returns the value it
// replaced. If the new value is the same length as the old one, it is
// rewritten in place; otherwise the entry is removed and reinserted
// (spec.md §4.4).
func (ix *Index) Update(key, value []byte) ([]byte, error) {
	if err := ix.checkOpen(); err != nil {
		return nil, err
	}

	if err := validateKeyValue(key, value); err != nil {
		return nil, err
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

	if len(value) == len(entry.Value) {
		if err := ix.values.UpdateValueInPlace(res.Addr, value); err != nil {
			return nil, ix.latch(err)
		}

		if err := ix.valuesRegion.Flush(0, uint64(ix.valuesRegion.Size())); err != nil {
			return nil, ix.latch(err)
		}

		return entry.Value, nil
	}

	if err := ix.removeAt(res); err != nil {
		return nil, ix.latch(err)
	}

	if err := ix.insertNew(key, value); err != nil {
		return nil, ix.latch(err)
	}

	return entry.Value, nil
}

// Delete removes key and returns the value it held, or ErrKeyNotFound.
func (ix *Index) Delete(key []byte) ([]byte, error) {
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

	value := entry.Value

	if err := ix.removeAt(res); err != nil {
		return nil, ix.latch(err)
	}

	ix.considerShrink()

	return value, nil
}

// removeAt unlinks and hole-punches the entry a lookup already located,
// clears its Keymap slot, and patches Metadata's head/tail if the removed
// entry was either endpoint.
func (ix *Index) removeAt(res lookupResult) error {
	_, _, prev, next, err := ix.values.Remove(res.Addr)
	if err != nil {
		return err
	}

	if err := ix.valuesRegion.Flush(0, uint64(ix.valuesRegion.Size())); err != nil {
		return err
	}

	ix.km.ClearSlot(res.Level, res.Bucket, res.Slot)

	if err := ix.keymapRegion.Flush(0, uint64(ix.keymapRegion.Size())); err != nil {
		return err
	}

	m := ix.meta.Get()
	if m.ValuesHeadEntry == res.Addr {
		m.ValuesHeadEntry = next
	}
	if m.ValuesTailEntry == res.Addr {
		m.ValuesTailEntry = prev
	}
	ix.meta.Set(m)

	return ix.meta.Save()
}

// considerShrink tracks the hysteresis counter for the optional Shrink
// operation (spec.md §4.4, Options.ShrinkHysteresis) and triggers it once the
// load factor has stayed under the threshold for long enough. Shrink is
// best-effort: a failure here never surfaces to Delete's caller, since
// shrinking is an optimization, not a correctness requirement.
func (ix *Index) considerShrink() {
	if !ix.opts.ShrinkEnabled || ix.km.levelSize <= ix.opts.MinLevelSize {
		ix.deleteStreak = 0
		return
	}

	if ix.loadFactor() >= ix.opts.ShrinkLoadFactor {
		ix.deleteStreak = 0
		return
	}

	ix.deleteStreak++
	if ix.deleteStreak < ix.opts.ShrinkHysteresis {
		return
	}

	ix.deleteStreak = 0
	_ = ix.shrink()
}
