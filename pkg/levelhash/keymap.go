package levelhash

import "fmt"

// keymapLevel identifies which of the (up to three) slot arrays a bucket
// index refers to.
type keymapLevel int

const (
	levelTop keymapLevel = iota
	levelBottom
	levelInterim
)

// keymap is the Keymap (spec.md §4.3): up to three arrays of fixed-size
// buckets over one File-Backed Region. Each slot holds a 1-based address
// into the Values Store, or 0 if empty.
type keymap struct {
	r *region

	levelSize  uint8 // L
	bucketSize uint8 // B

	topAddr     uint64
	bottomAddr  uint64
	interimAddr uint64 // 0 when no interim level is present
	interimL    uint8  // level_size the interim level was sized for (L+1), valid only when interimAddr != 0
}

func openKeymap(r *region, levelSize, bucketSize uint8, topAddr, bottomAddr uint64) *keymap {
	return &keymap{r: r, levelSize: levelSize, bucketSize: bucketSize, topAddr: topAddr, bottomAddr: bottomAddr}
}

// baseAddr and bucketCount return the byte offset and bucket count for a
// level, given the keymap's current geometry.
func (k *keymap) baseAddr(level keymapLevel) uint64 {
	switch level {
	case levelTop:
		return k.topAddr
	case levelBottom:
		return k.bottomAddr
	default:
		return k.interimAddr
	}
}

func (k *keymap) bucketCount(level keymapLevel) uint64 {
	switch level {
	case levelTop:
		return levelBucketCount(k.levelSize, 0)
	case levelBottom:
		return levelBucketCount(k.levelSize, 1)
	default:
		if k.interimAddr == 0 {
			return 0
		}
		return levelBucketCount(k.interimL, 0)
	}
}

// HasInterim reports whether an interim level is currently present.
func (k *keymap) HasInterim() bool { return k.interimAddr != 0 }

// ReadSlot returns the address stored in (level, bucket, slotIndex).
func (k *keymap) ReadSlot(level keymapLevel, bucket uint64, slotIndex uint8) uint64 {
	off := slotByteOffset(k.baseAddr(level), bucket, slotIndex, k.bucketSize)
	return k.r.ReadU64(off)
}

// WriteSlot stores addr in (level, bucket, slotIndex).
func (k *keymap) WriteSlot(level keymapLevel, bucket uint64, slotIndex uint8, addr uint64) {
	off := slotByteOffset(k.baseAddr(level), bucket, slotIndex, k.bucketSize)
	k.r.WriteU64(off, addr)
}

// ClearSlot zeroes (level, bucket, slotIndex).
func (k *keymap) ClearSlot(level keymapLevel, bucket uint64, slotIndex uint8) {
	k.WriteSlot(level, bucket, slotIndex, 0)
}

// FindEmptySlot returns the index of the first empty slot in (level, bucket),
// or (0, false) if the bucket is full.
func (k *keymap) FindEmptySlot(level keymapLevel, bucket uint64) (uint8, bool) {
	for i := uint8(0); i < k.bucketSize; i++ {
		if k.ReadSlot(level, bucket, i) == 0 {
			return i, true
		}
	}

	return 0, false
}

// CandidateBuckets returns the two candidate bucket indices for a key's pair
// of hashes against a level (spec.md §4.4).
func (k *keymap) CandidateBuckets(level keymapLevel, h1, h2 uint64) (uint64, uint64) {
	n := k.bucketCount(level)
	return candidateBucket(h1, n), candidateBucket(h2, n)
}

// AllocateInterim grows the region (if needed) and installs an interim level
// sized 2^(L+1) buckets, placed immediately after the current end of the
// allocated keymap content (so that on reopen its presence/absence can be
// recovered purely from file size, per spec.md §5's crash-recovery note).
func (k *keymap) AllocateInterim() error {
	return k.AllocateInterimAtLevel(k.levelSize + 1)
}

// AllocateInterimAtLevel is AllocateInterim generalized to an explicit target
// level_size, used when a first-pass interim proves too small and expansion
// needs to grow it further (spec.md §4.4 step 2's "double the interim
// further").
func (k *keymap) AllocateInterimAtLevel(targetLevelSize uint8) error {
	bucketCount := levelBucketCount(targetLevelSize, 0)
	size := levelByteSize(bucketCount, k.bucketSize)

	base := uint64(k.r.Size())
	if err := k.r.Resize(int64(base + size)); err != nil {
		return err
	}

	k.r.Zero(base, size)

	k.interimAddr = base
	k.interimL = targetLevelSize

	return nil
}

// DiscardInterim forgets the interim level without shrinking the region; the
// bytes are reclaimed lazily the next time an interim is allocated at a
// fresh offset, or explicitly by the caller via Region.Deallocate.
func (k *keymap) DiscardInterim() {
	k.interimAddr = 0
	k.interimL = 0
}

// PromoteInterimToTop relabels the keymap after an expansion completes
// (spec.md §4.4 step 3): the old bottom is discarded, the old top becomes
// the new bottom, and the interim becomes the new top.
func (k *keymap) PromoteInterimToTop(oldBottomByteSize uint64) (deallocOffset, deallocLength uint64) {
	deallocOffset = k.bottomAddr
	deallocLength = oldBottomByteSize

	k.bottomAddr = k.topAddr
	k.topAddr = k.interimAddr
	k.levelSize++
	k.interimAddr = 0
	k.interimL = 0

	return deallocOffset, deallocLength
}

// ShrinkRelabel relabels the keymap after a Shrink completes: the old top is
// discarded, the old bottom becomes the new top, and the shrink-interim
// (already fully populated by the caller) becomes the new bottom. Symmetric
// to PromoteInterimToTop.
func (k *keymap) ShrinkRelabel(shrinkInterimAddr uint64, oldTopByteSize uint64) (deallocOffset, deallocLength uint64) {
	deallocOffset = k.topAddr
	deallocLength = oldTopByteSize

	k.topAddr = k.bottomAddr
	k.bottomAddr = shrinkInterimAddr
	k.levelSize--
	k.interimAddr = 0
	k.interimL = 0

	return deallocOffset, deallocLength
}

// orderBuckets returns the (one or two) distinct bucket indices from a
// candidate pair in ascending order, matching spec.md §4.4's "bucket index
// ascending" scan order for both Insert's direct placement and the stashing
// passes.
func orderBuckets(b1, b2 uint64) []uint64 {
	if b1 == b2 {
		return []uint64{b1}
	}

	if b1 < b2 {
		return []uint64{b1, b2}
	}

	return []uint64{b2, b1}
}

// detectInterim recovers whether an interim level was left behind by a
// half-completed expansion, purely from the keymap file's size (spec.md §5:
// "any additional level present beyond those two is the interim"). It
// returns present=false in the steady-state case where the file ends exactly
// at the end of the top/bottom arrays, and an error if the file size matches
// neither the steady state nor the "one interim appended" state.
func detectInterim(fileSize uint64, levelSize, bucketSize uint8, topAddr, bottomAddr uint64) (interimAddr uint64, interimL uint8, present bool, err error) {
	topEnd := topAddr + levelByteSize(levelBucketCount(levelSize, 0), bucketSize)
	bottomEnd := bottomAddr + levelByteSize(levelBucketCount(levelSize, 1), bucketSize)

	usedEnd := topEnd
	if bottomEnd > usedEnd {
		usedEnd = bottomEnd
	}

	if fileSize == usedEnd {
		return 0, 0, false, nil
	}

	candidateL := levelSize + 1
	wantSize := usedEnd + levelByteSize(levelBucketCount(candidateL, 0), bucketSize)

	if fileSize == wantSize {
		return usedEnd, candidateL, true, nil
	}

	return 0, 0, false, fmt.Errorf("%w: keymap file size %d matches neither steady state (%d) nor a pending expansion (%d)", ErrCorruptEntry, fileSize, usedEnd, wantSize)
}
