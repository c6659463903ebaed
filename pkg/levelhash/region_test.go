package levelhash

import (
	"path/filepath"
	"testing"
)

func TestRegion_WriteReadU64RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.bin")

	r, err := openRegion(path, 64)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	defer r.Close()

	r.WriteU64(0, 0xdeadbeefcafef00d)
	if got := r.ReadU64(0); got != 0xdeadbeefcafef00d {
		t.Fatalf("ReadU64 = %x, want %x", got, uint64(0xdeadbeefcafef00d))
	}
}

func TestRegion_GrowToFitDoublesUntilItFits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.bin")

	r, err := openRegion(path, 16)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	defer r.Close()

	if err := r.GrowToFit(100); err != nil {
		t.Fatalf("GrowToFit: %v", err)
	}

	if r.Size() < 100 {
		t.Fatalf("Size() = %d, want >= 100", r.Size())
	}

	// Doubling from a power-of-two base should land on a power of two.
	if r.Size()&(r.Size()-1) != 0 {
		t.Fatalf("Size() = %d, want a power of two", r.Size())
	}
}

func TestRegion_GrowToFitPreservesExistingBytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.bin")

	r, err := openRegion(path, 16)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	defer r.Close()

	r.WriteU64(0, 123)

	if err := r.GrowToFit(4096); err != nil {
		t.Fatalf("GrowToFit: %v", err)
	}

	if got := r.ReadU64(0); got != 123 {
		t.Fatalf("ReadU64 after grow = %d, want 123", got)
	}
}

func TestRegion_DeallocateZeroesRange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.bin")

	r, err := openRegion(path, 64)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	defer r.Close()

	r.WriteU64(8, 0xff)

	if err := r.Deallocate(8, 8); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	if got := r.ReadU64(8); got != 0 {
		t.Fatalf("ReadU64 after Deallocate = %d, want 0", got)
	}
}

func TestRegion_ReopenSeesPersistedBytes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.bin")

	r, err := openRegion(path, 64)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}

	r.WriteU64(16, 77)

	if err := r.Flush(0, uint64(r.Size())); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := openRegion(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()

	if got := r2.ReadU64(16); got != 77 {
		t.Fatalf("ReadU64 after reopen = %d, want 77", got)
	}
}
