package levelhash

import (
	"path/filepath"
	"testing"
)

func newTestValuesStore(t *testing.T) *valuesStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "values.bin")

	r, err := openRegion(path, valuesHeaderSize)
	if err != nil {
		t.Fatalf("openRegion: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	r.WriteU64(0, valuesMagic)

	return openValuesStore(r)
}

func TestValuesStore_AppendAndReadEntry(t *testing.T) {
	t.Parallel()

	vs := newTestValuesStore(t)

	addr, _, err := vs.Append([]byte("hello"), []byte("world"), 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	entry, err := vs.ReadEntry(addr)
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}

	if string(entry.Key) != "hello" || string(entry.Value) != "world" {
		t.Fatalf("ReadEntry = %+v, want key=hello value=world", entry)
	}

	if entry.Prev != 0 || entry.Next != 0 {
		t.Fatalf("first entry Prev/Next = %d/%d, want 0/0", entry.Prev, entry.Next)
	}
}

func TestValuesStore_AppendLinksPrevTail(t *testing.T) {
	t.Parallel()

	vs := newTestValuesStore(t)

	addr1, _, err := vs.Append([]byte("k1"), []byte("v1"), 0)
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}

	addr2, _, err := vs.Append([]byte("k2"), []byte("v2"), addr1)
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	e1, err := vs.ReadEntry(addr1)
	if err != nil {
		t.Fatalf("ReadEntry(addr1): %v", err)
	}

	if e1.Next != addr2 {
		t.Fatalf("entry 1 Next = %d, want %d", e1.Next, addr2)
	}

	e2, err := vs.ReadEntry(addr2)
	if err != nil {
		t.Fatalf("ReadEntry(addr2): %v", err)
	}

	if e2.Prev != addr1 {
		t.Fatalf("entry 2 Prev = %d, want %d", e2.Prev, addr1)
	}
}

func TestValuesStore_UpdateValueInPlaceRequiresSameLength(t *testing.T) {
	t.Parallel()

	vs := newTestValuesStore(t)

	addr, _, err := vs.Append([]byte("k"), []byte("abc"), 0)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := vs.UpdateValueInPlace(addr, []byte("xyz")); err != nil {
		t.Fatalf("UpdateValueInPlace same length: %v", err)
	}

	entry, err := vs.ReadEntry(addr)
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(entry.Value) != "xyz" {
		t.Fatalf("Value = %q, want xyz", entry.Value)
	}

	if err := vs.UpdateValueInPlace(addr, []byte("toolong")); err == nil {
		t.Fatalf("UpdateValueInPlace with different length: want error, got nil")
	}
}

func TestValuesStore_RemoveUnlinksNeighbors(t *testing.T) {
	t.Parallel()

	vs := newTestValuesStore(t)

	addr1, _, err := vs.Append([]byte("k1"), []byte("v1"), 0)
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	addr2, _, err := vs.Append([]byte("k2"), []byte("v2"), addr1)
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	addr3, _, err := vs.Append([]byte("k3"), []byte("v3"), addr2)
	if err != nil {
		t.Fatalf("Append 3: %v", err)
	}

	_, _, prev, next, err := vs.Remove(addr2)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if prev != addr1 || next != addr3 {
		t.Fatalf("Remove returned prev=%d next=%d, want %d/%d", prev, next, addr1, addr3)
	}

	e1, err := vs.ReadEntry(addr1)
	if err != nil {
		t.Fatalf("ReadEntry(addr1): %v", err)
	}
	if e1.Next != addr3 {
		t.Fatalf("entry 1 Next after removal = %d, want %d", e1.Next, addr3)
	}

	e3, err := vs.ReadEntry(addr3)
	if err != nil {
		t.Fatalf("ReadEntry(addr3): %v", err)
	}
	if e3.Prev != addr1 {
		t.Fatalf("entry 3 Prev after removal = %d, want %d", e3.Prev, addr1)
	}
}

func TestValuesStore_IterWalksInsertionOrder(t *testing.T) {
	t.Parallel()

	vs := newTestValuesStore(t)

	keys := []string{"a", "b", "c"}
	var head, tail uint64

	for _, k := range keys {
		addr, _, err := vs.Append([]byte(k), []byte("v-"+k), tail)
		if err != nil {
			t.Fatalf("Append(%q): %v", k, err)
		}
		if head == 0 {
			head = addr
		}
		tail = addr
	}

	var got []string
	err := vs.Iter(head, 10, func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}

	if len(got) != len(keys) {
		t.Fatalf("Iter visited %d entries, want %d", len(got), len(keys))
	}
	for i, k := range keys {
		if got[i] != k {
			t.Fatalf("Iter[%d] = %q, want %q", i, got[i], k)
		}
	}
}
