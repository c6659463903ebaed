package levelhash_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/levelhash/pkg/levelhash"
)

func TestOpen_CreatesFreshIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	ix, err := levelhash.Open(dir, "users", 2, 4, levelhash.NewXXHashProvider())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	if got := ix.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestOpen_RefusesSecondHandleInProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	ix, err := levelhash.Open(dir, "users", 2, 4, levelhash.NewXXHashProvider())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()

	_, err = levelhash.Open(dir, "users", 2, 4, levelhash.NewXXHashProvider())
	if !errors.Is(err, levelhash.ErrBusy) {
		t.Fatalf("second Open err = %v, want ErrBusy", err)
	}
}

func TestOpen_ReopenPreservesContents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hp := levelhash.NewXXHashProvider()

	ix, err := levelhash.Open(dir, "db", 2, 4, hp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := map[string]string{
		"alice": "admin",
		"bob":   "user",
		"carol": "user",
	}

	for k, v := range want {
		if err := ix.Insert([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := levelhash.Open(dir, "db", 2, 4, hp)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	if got := ix2.Len(); got != uint64(len(want)) {
		t.Fatalf("Len() after reopen = %d, want %d", got, len(want))
	}

	for k, v := range want {
		got, err := ix2.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q) after reopen: %v", k, err)
		}

		if diff := cmp.Diff(v, string(got)); diff != "" {
			t.Fatalf("Get(%q) mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestOpen_InvalidGeometryRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	if _, err := levelhash.Open(dir, "x", 0, 4, levelhash.NewXXHashProvider()); !errors.Is(err, levelhash.ErrInvalidInput) {
		t.Fatalf("level_size=0 err = %v, want ErrInvalidInput", err)
	}

	if _, err := levelhash.Open(dir, "x", 2, 0, levelhash.NewXXHashProvider()); !errors.Is(err, levelhash.ErrInvalidInput) {
		t.Fatalf("bucket_size=0 err = %v, want ErrInvalidInput", err)
	}
}

func TestOpen_ExistingGeometryWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hp := levelhash.NewXXHashProvider()

	ix, err := levelhash.Open(dir, "db", 3, 4, hp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second Open with different l/b must still find the on-disk geometry,
	// not fail or silently reformat the files.
	ix2, err := levelhash.Open(dir, "db", 5, 8, hp)
	if err != nil {
		t.Fatalf("reopen with different geometry: %v", err)
	}
	defer ix2.Close()

	if err := ix2.Insert([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Insert after reopen: %v", err)
	}
}
