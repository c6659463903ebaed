package levelhash

import (
	"errors"
	"fmt"
	"path/filepath"
)

// indexState is the state machine of the index (spec.md §4.4): {Steady,
// Expanding, Shrinking}. Expanding/Shrinking are always left in the same
// call that entered them — Insert/Delete drive the transition and run the
// migration to completion before returning — so an Index is never observed
// mid-transition by another call in this process.
type indexState int

const (
	stateSteady indexState = iota
	stateExpanding
	stateShrinking
)

// Index is a Level Hash handle: the Level Hash Core plus its two File-Backed
// Regions (Values and Keymap) and its Metadata file. It owns the hash provider, the Keymap, and the
// Values Store (spec.md §2). An Index is not safe for concurrent use by
// multiple goroutines; see [Guard] for cross-process serialization.
type Index struct {
	dir  string
	name string

	valuesRegion *region
	keymapRegion *region

	values *valuesStore
	km     *keymap
	meta   *metadataStore

	hp   HashProvider
	opts Options

	state indexState

	deleteStreak int // consecutive Deletes observed under the shrink threshold

	closed     bool
	latchedErr error // set by ErrBadMagic/ErrCorruptEntry; sticky once non-nil

	guard *Guard
}

func filePaths(dir, name string) (metaPath, keymapPath, valuesPath string) {
	base := filepath.Join(dir, name+".index")
	return base + "._meta", base + "._keymap", base
}

// checkOpen returns the latched error if one is set, ErrClosed if the
// handle was closed, or nil if the handle is usable.
func (ix *Index) checkOpen() error {
	if ix.closed {
		return ErrClosed
	}

	if ix.latchedErr != nil {
		return ix.latchedErr
	}

	return nil
}

// latch records err as the handle's sticky error if err is ErrBadMagic or
// ErrCorruptEntry (spec.md §7: both are fatal to the handle). Returns err
// unchanged so callers can write `return ix.latch(err)`.
func (ix *Index) latch(err error) error {
	if err == nil {
		return nil
	}

	if (errors.Is(err, ErrBadMagic) || errors.Is(err, ErrCorruptEntry)) && ix.latchedErr == nil {
		ix.latchedErr = err
	}

	return err
}

// Close flushes the Values and Keymap regions, saves Metadata last (spec.md
// §5's resource discipline), unmaps both regions, releases the
// optional Guard, and frees the in-process registry entry. Close is
// idempotent.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}

	ix.closed = true

	var errs []error

	if err := ix.valuesRegion.Flush(0, uint64(ix.valuesRegion.Size())); err != nil {
		errs = append(errs, err)
	}

	if err := ix.keymapRegion.Flush(0, uint64(ix.keymapRegion.Size())); err != nil {
		errs = append(errs, err)
	}

	if err := ix.meta.Save(); err != nil {
		errs = append(errs, err)
	}

	if err := ix.valuesRegion.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := ix.keymapRegion.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := ix.guard.Release(); err != nil {
		errs = append(errs, err)
	}

	unregisterHandle(ix.dir, ix.name)

	return errors.Join(errs...)
}

// Len returns the number of entries currently in the index, computed from
// the Values Store's head/tail-tracked list rather than cached separately.
func (ix *Index) Len() uint64 {
	if ix.checkOpen() != nil {
		return 0
	}

	var n uint64

	m := ix.meta.Get()
	_ = ix.values.Iter(m.ValuesHeadEntry, maxIterSteps(ix), func([]byte, []byte) bool {
		n++
		return true
	})

	return n
}

// maxIterSteps bounds the cycle guard in valuesStore.Iter. It is generous on
// purpose: it only needs to be larger than any legitimate entry count for a
// file of this size, not an exact count.
func maxIterSteps(ix *Index) uint64 {
	size := uint64(ix.valuesRegion.Size())
	if size < entryHeaderSize {
		return 0
	}

	return size / entryHeaderSize
}

// totalSlotCount returns total_slot_count across whatever levels currently
// exist, for load-factor accounting (spec.md §4.4).
func (ix *Index) totalSlotCount() uint64 {
	n := (levelBucketCount(ix.km.levelSize, 0) + levelBucketCount(ix.km.levelSize, 1)) * uint64(ix.km.bucketSize)
	if ix.km.HasInterim() {
		n += levelBucketCount(ix.km.interimL, 0) * uint64(ix.km.bucketSize)
	}

	return n
}

// occupiedSlotCount counts non-zero slots across whatever levels currently
// exist. It is O(total_slot_count); callers only need it around Expansion/
// Shrink decisions, not on the hot insert/lookup path (spec.md §4.4: "insertion
// paths do not consult [load factor]").
func (ix *Index) occupiedSlotCount() uint64 {
	var n uint64

	countLevel := func(level keymapLevel) {
		bc := ix.km.bucketCount(level)
		for b := uint64(0); b < bc; b++ {
			for s := uint8(0); s < ix.km.bucketSize; s++ {
				if ix.km.ReadSlot(level, b, s) != 0 {
					n++
				}
			}
		}
	}

	countLevel(levelTop)
	countLevel(levelBottom)
	if ix.km.HasInterim() {
		countLevel(levelInterim)
	}

	return n
}

func (ix *Index) loadFactor() float64 {
	total := ix.totalSlotCount()
	if total == 0 {
		return 0
	}

	return float64(ix.occupiedSlotCount()) / float64(total)
}

// syncMetaGeometry copies the keymap's current geometry into the in-memory
// Metadata record. Callers still need to call meta.Save() to persist it.
func (ix *Index) syncMetaGeometry() {
	m := ix.meta.Get()
	m.KmLevelSize = ix.km.levelSize
	m.KmBucketSize = ix.km.bucketSize
	m.KmL0Addr = ix.km.topAddr
	m.KmL1Addr = ix.km.bottomAddr
	ix.meta.Set(m)
}

func invalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}
