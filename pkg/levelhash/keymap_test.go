package levelhash

import (
	"path/filepath"
	"testing"
)

func newTestKeymap(t *testing.T, levelSize, bucketSize uint8) *keymap {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keymap.bin")

	topAddr := uint64(keymapHeaderSize)
	topSize := levelByteSize(levelBucketCount(levelSize, 0), bucketSize)
	bottomAddr := topAddr + topSize
	bottomSize := levelByteSize(levelBucketCount(levelSize, 1), bucketSize)

	r, err := openRegion(path, int64(bottomAddr+bottomSize))
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	r.WriteU64(0, keymapMagic)

	return openKeymap(r, levelSize, bucketSize, topAddr, bottomAddr)
}

func TestKeymap_WriteReadClearSlot(t *testing.T) {
	t.Parallel()

	km := newTestKeymap(t, 3, 4)

	km.WriteSlot(levelTop, 2, 1, 999)
	if got := km.ReadSlot(levelTop, 2, 1); got != 999 {
		t.Fatalf("ReadSlot = %d, want 999", got)
	}

	km.ClearSlot(levelTop, 2, 1)
	if got := km.ReadSlot(levelTop, 2, 1); got != 0 {
		t.Fatalf("ReadSlot after clear = %d, want 0", got)
	}
}

func TestKeymap_FindEmptySlot(t *testing.T) {
	t.Parallel()

	km := newTestKeymap(t, 2, 2)

	slot, ok := km.FindEmptySlot(levelTop, 0)
	if !ok || slot != 0 {
		t.Fatalf("FindEmptySlot on fresh bucket = (%d, %v), want (0, true)", slot, ok)
	}

	km.WriteSlot(levelTop, 0, 0, 1)

	slot, ok = km.FindEmptySlot(levelTop, 0)
	if !ok || slot != 1 {
		t.Fatalf("FindEmptySlot after one write = (%d, %v), want (1, true)", slot, ok)
	}

	km.WriteSlot(levelTop, 0, 1, 2)

	_, ok = km.FindEmptySlot(levelTop, 0)
	if ok {
		t.Fatalf("FindEmptySlot on full bucket = true, want false")
	}
}

func TestKeymap_AllocateAndPromoteInterim(t *testing.T) {
	t.Parallel()

	km := newTestKeymap(t, 2, 4)

	if km.HasInterim() {
		t.Fatalf("HasInterim before allocate = true, want false")
	}

	if err := km.AllocateInterim(); err != nil {
		t.Fatalf("AllocateInterim: %v", err)
	}
	if !km.HasInterim() {
		t.Fatalf("HasInterim after allocate = false, want true")
	}

	oldTopAddr := km.topAddr
	interimAddr := km.interimAddr

	oldBottomSize := levelByteSize(levelBucketCount(km.levelSize, 1), km.bucketSize)
	km.PromoteInterimToTop(oldBottomSize)

	if km.levelSize != 3 {
		t.Fatalf("levelSize after promote = %d, want 3", km.levelSize)
	}
	if km.topAddr != interimAddr {
		t.Fatalf("topAddr after promote = %d, want %d", km.topAddr, interimAddr)
	}
	if km.bottomAddr != oldTopAddr {
		t.Fatalf("bottomAddr after promote = %d, want %d", km.bottomAddr, oldTopAddr)
	}
	if km.HasInterim() {
		t.Fatalf("HasInterim after promote = true, want false")
	}
}

func TestDetectInterim_SteadyState(t *testing.T) {
	t.Parallel()

	levelSize, bucketSize := uint8(3), uint8(4)
	topAddr := uint64(keymapHeaderSize)
	bottomAddr := topAddr + levelByteSize(levelBucketCount(levelSize, 0), bucketSize)
	fileSize := bottomAddr + levelByteSize(levelBucketCount(levelSize, 1), bucketSize)

	_, _, present, err := detectInterim(fileSize, levelSize, bucketSize, topAddr, bottomAddr)
	if err != nil {
		t.Fatalf("detectInterim: %v", err)
	}
	if present {
		t.Fatalf("present = true, want false for a file sized exactly to top+bottom")
	}
}

func TestDetectInterim_PendingExpansion(t *testing.T) {
	t.Parallel()

	levelSize, bucketSize := uint8(3), uint8(4)
	topAddr := uint64(keymapHeaderSize)
	bottomAddr := topAddr + levelByteSize(levelBucketCount(levelSize, 0), bucketSize)
	usedEnd := bottomAddr + levelByteSize(levelBucketCount(levelSize, 1), bucketSize)

	interimSize := levelByteSize(levelBucketCount(levelSize+1, 0), bucketSize)
	fileSize := usedEnd + interimSize

	addr, l, present, err := detectInterim(fileSize, levelSize, bucketSize, topAddr, bottomAddr)
	if err != nil {
		t.Fatalf("detectInterim: %v", err)
	}
	if !present {
		t.Fatalf("present = false, want true")
	}
	if addr != usedEnd {
		t.Fatalf("addr = %d, want %d", addr, usedEnd)
	}
	if l != levelSize+1 {
		t.Fatalf("interim level_size = %d, want %d", l, levelSize+1)
	}
}

func TestDetectInterim_UnrecognizedSizeIsCorrupt(t *testing.T) {
	t.Parallel()

	levelSize, bucketSize := uint8(3), uint8(4)
	topAddr := uint64(keymapHeaderSize)
	bottomAddr := topAddr + levelByteSize(levelBucketCount(levelSize, 0), bucketSize)
	usedEnd := bottomAddr + levelByteSize(levelBucketCount(levelSize, 1), bucketSize)

	_, _, _, err := detectInterim(usedEnd+17, levelSize, bucketSize, topAddr, bottomAddr)
	if err == nil {
		t.Fatalf("detectInterim with an unrecognized trailing size: want error, got nil")
	}
}

func TestOrderBuckets(t *testing.T) {
	t.Parallel()

	if got := orderBuckets(5, 2); len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Fatalf("orderBuckets(5, 2) = %v, want [2 5]", got)
	}

	if got := orderBuckets(3, 3); len(got) != 1 || got[0] != 3 {
		t.Fatalf("orderBuckets(3, 3) = %v, want [3]", got)
	}
}
