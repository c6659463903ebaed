package levelhash

import "fmt"

// valuesStore is the Values Store (spec.md §4.2): a doubly-linked list of
// variable-length entries packed into one File-Backed Region, addressed with
// the 1-based convention (address a refers to byte offset a-1; 0 means
// none).
type valuesStore struct {
	r *region
}

func openValuesStore(r *region) *valuesStore {
	return &valuesStore{r: r}
}

// decodedEntry is a read_entry result: the linked-list pointers plus owned
// copies of the key and value bytes.
type decodedEntry struct {
	Prev  uint64
	Next  uint64
	Key   []byte
	Value []byte
}

// readHeaderAt decodes the fixed 40-byte header at the given 1-based
// address, validating bounds and the entry_size invariant. Returns
// ErrCorruptEntry on any structural violation.
func (v *valuesStore) readHeaderAt(addr uint64) (entryHeader, uint64, error) {
	if addr == 0 {
		return entryHeader{}, 0, fmt.Errorf("%w: address 0 is not a valid entry", ErrCorruptEntry)
	}

	off := addr - 1
	if off+entryHeaderSize > uint64(v.r.Size()) {
		return entryHeader{}, 0, fmt.Errorf("%w: entry header at %d exceeds file size %d", ErrCorruptEntry, addr, v.r.Size())
	}

	h := decodeEntryHeader(v.r.ReadBytes(off, entryHeaderSize))
	if !validateEntryHeader(h) {
		return entryHeader{}, 0, fmt.Errorf("%w: entry_size %d != 40+key_size(%d)+value_size(%d)", ErrCorruptEntry, h.EntrySize, h.KeySize, h.ValueSize)
	}

	if off+h.EntrySize > uint64(v.r.Size()) {
		return entryHeader{}, 0, fmt.Errorf("%w: entry at %d (size %d) exceeds file size %d", ErrCorruptEntry, addr, h.EntrySize, v.r.Size())
	}

	return h, off, nil
}

// ReadEntry reads the full entry (pointers, key, value) at addr.
func (v *valuesStore) ReadEntry(addr uint64) (decodedEntry, error) {
	h, off, err := v.readHeaderAt(addr)
	if err != nil {
		return decodedEntry{}, err
	}

	keyOff := off + entryOffKeyStart
	valOff := keyOff + uint64(h.KeySize)

	key := append([]byte(nil), v.r.ReadBytes(keyOff, uint64(h.KeySize))...)
	val := append([]byte(nil), v.r.ReadBytes(valOff, uint64(h.ValueSize))...)

	return decodedEntry{Prev: h.Prev, Next: h.Next, Key: key, Value: val}, nil
}

// ReadKey reads only the key bytes at addr, for the Lookup comparison path.
func (v *valuesStore) ReadKey(addr uint64) ([]byte, error) {
	h, off, err := v.readHeaderAt(addr)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), v.r.ReadBytes(off+entryOffKeyStart, uint64(h.KeySize))...), nil
}

// ValueSize reads value_size at addr without copying the key or value bytes.
func (v *valuesStore) ValueSize(addr uint64) (uint32, error) {
	h, _, err := v.readHeaderAt(addr)
	if err != nil {
		return 0, err
	}

	return h.ValueSize, nil
}

// Append appends a new entry at the end of the region, links it after the
// current tail (head/tail supplied by the caller, which owns Metadata), and
// returns the new entry's 1-based address plus the region's logical size
// after the append. It does not itself touch Metadata; the caller
// (mutate.go) updates values_head_entry/values_tail_entry/
// values_file_size_bytes after Append succeeds, preserving the
// Values-then-Keymap-then-Metadata ordering spec.md §5 requires.
func (v *valuesStore) Append(key, value []byte, prevTail uint64) (addr uint64, newFileSize uint64, err error) {
	entrySize := entryOnDiskSize(uint32(len(key)), uint32(len(value)))

	writeOff := uint64(v.r.Size())
	if writeOff == 0 {
		writeOff = valuesHeaderSize
	}

	// Grow to exactly the new end, so the region size stays equal to the
	// logical end that Metadata records as values_file_size_bytes.
	needed := int64(writeOff + entrySize)
	if err := v.r.Resize(needed); err != nil {
		return 0, 0, err
	}

	h := entryHeader{
		EntrySize: entrySize,
		Prev:      prevTail,
		Next:      0,
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
	}

	buf := make([]byte, entryHeaderSize)
	encodeEntryHeader(buf, h)
	v.r.WriteBytes(writeOff, buf)
	v.r.WriteBytes(writeOff+entryOffKeyStart, key)
	v.r.WriteBytes(writeOff+entryOffKeyStart+uint64(len(key)), value)

	addr = writeOff + 1

	if prevTail != 0 {
		if err := v.patchNext(prevTail, addr); err != nil {
			return 0, 0, err
		}
	}

	return addr, writeOff + entrySize, nil
}

// patchNext rewrites only the next_entry field of the entry at addr.
func (v *valuesStore) patchNext(addr, next uint64) error {
	_, off, err := v.readHeaderAt(addr)
	if err != nil {
		return err
	}

	v.r.WriteU64(off+entryOffNextEntry, next)

	return nil
}

// patchPrev rewrites only the prev_entry field of the entry at addr.
func (v *valuesStore) patchPrev(addr, prev uint64) error {
	_, off, err := v.readHeaderAt(addr)
	if err != nil {
		return err
	}

	v.r.WriteU64(off+entryOffPrevEntry, prev)

	return nil
}

// UpdateValueInPlace overwrites the value bytes at addr. It returns
// ErrInvalidInput if len(newValue) differs from the entry's value_size
// (spec.md §4.2); mutate.go only calls it after checking that the lengths
// match.
func (v *valuesStore) UpdateValueInPlace(addr uint64, newValue []byte) error {
	h, off, err := v.readHeaderAt(addr)
	if err != nil {
		return err
	}

	if uint32(len(newValue)) != h.ValueSize {
		return fmt.Errorf("%w: update_value_inplace length %d != value_size %d", ErrInvalidInput, len(newValue), h.ValueSize)
	}

	valOff := off + entryOffKeyStart + uint64(h.KeySize)
	v.r.WriteBytes(valOff, newValue)

	return nil
}

// Remove unlinks the entry at addr from the doubly-linked list, patching the
// neighbors' prev/next pointers (the caller patches Metadata's head/tail
// when addr is itself an endpoint, since Remove has no access to Metadata),
// and hole-punches the entry's byte range.
func (v *valuesStore) Remove(addr uint64) (removedKey, removedValue []byte, prev, next uint64, err error) {
	h, off, err := v.readHeaderAt(addr)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	entry, err := v.ReadEntry(addr)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	if h.Prev != 0 {
		if err := v.patchNext(h.Prev, h.Next); err != nil {
			return nil, nil, 0, 0, err
		}
	}

	if h.Next != 0 {
		if err := v.patchPrev(h.Next, h.Prev); err != nil {
			return nil, nil, 0, 0, err
		}
	}

	if err := v.r.Deallocate(off, h.EntrySize); err != nil {
		return nil, nil, 0, 0, err
	}

	return entry.Key, entry.Value, h.Prev, h.Next, nil
}

// Iter walks the list from head to tail in insertion order, yielding
// (key, value) pairs. It stops early if yield returns false, and treats a
// cycle (more steps than addresses could possibly exist) as ErrCorruptEntry
// rather than looping forever — spec.md §9's cyclic-list risk.
func (v *valuesStore) Iter(head uint64, maxSteps uint64, yield func(key, value []byte) bool) error {
	addr := head
	steps := uint64(0)

	for addr != 0 {
		steps++
		if steps > maxSteps+1 {
			return fmt.Errorf("%w: values list cycle detected after %d entries", ErrCorruptEntry, maxSteps)
		}

		entry, err := v.ReadEntry(addr)
		if err != nil {
			return err
		}

		if !yield(entry.Key, entry.Value) {
			return nil
		}

		addr = entry.Next
	}

	return nil
}
