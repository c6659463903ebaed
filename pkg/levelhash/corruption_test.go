// Corruption detection tests: write a valid file, flip bytes directly, then
// exercise an operation that must surface the sentinel error.
//
// Oracle: ErrCorruptEntry / ErrBadMagic
// Technique: direct file mutation + operation that reads the corrupted region

package levelhash_test

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/levelhash/pkg/levelhash"
)

// S6: flipping a values-entry header field so entry_size no longer equals
// 40+key_size+value_size must surface ErrCorruptEntry, and latch the handle.
func Test_Get_Returns_ErrCorruptEntry_When_Entry_Size_Field_Is_Wrong(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hp := levelhash.NewXXHashProvider()

	ix, err := levelhash.Open(dir, "c", 2, 4, hp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := ix.Insert([]byte("alice"), []byte("admin")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	valuesPath := filepath.Join(dir, "c.index")
	corruptEntrySizeField(t, valuesPath)

	ix2, err := levelhash.Open(dir, "c", 2, 4, hp)
	if err != nil {
		t.Fatalf("reopen after corruption: %v", err)
	}
	defer ix2.Close()

	_, err = ix2.Get([]byte("alice"))
	if !errors.Is(err, levelhash.ErrCorruptEntry) {
		t.Fatalf("Get after corruption err = %v, want ErrCorruptEntry", err)
	}

	// The handle is latched: a second, unrelated call also fails.
	_, err = ix2.Get([]byte("anything"))
	if !errors.Is(err, levelhash.ErrCorruptEntry) {
		t.Fatalf("Get on latched handle err = %v, want ErrCorruptEntry", err)
	}
}

// corruptEntrySizeField overwrites the first entry's entry_size field (the
// first 8 bytes after the 8-byte file magic) with a value inconsistent with
// its key_size/value_size.
func corruptEntrySizeField(t *testing.T, path string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open values file for corruption: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 999999)

	const valuesHeaderSize = 8
	if _, err := f.WriteAt(buf, valuesHeaderSize); err != nil {
		t.Fatalf("write corrupted entry_size: %v", err)
	}
}

func Test_Open_Returns_ErrBadMagic_When_Keymap_Magic_Is_Wrong(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hp := levelhash.NewXXHashProvider()

	ix, err := levelhash.Open(dir, "c", 2, 4, hp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	keymapPath := filepath.Join(dir, "c.index._keymap")
	corruptMagic(t, keymapPath)

	_, err = levelhash.Open(dir, "c", 2, 4, hp)
	if !errors.Is(err, levelhash.ErrBadMagic) {
		t.Fatalf("Open after magic corruption err = %v, want ErrBadMagic", err)
	}
}

func corruptMagic(t *testing.T, path string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open file for magic corruption: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 0)

	if _, err := f.WriteAt(buf, 0); err != nil {
		t.Fatalf("write corrupted magic: %v", err)
	}
}
