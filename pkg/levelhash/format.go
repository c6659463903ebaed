package levelhash

import "encoding/binary"

// On-disk format constants for the three files backing one Level Hash.
//
// All integers are little-endian. There is no CRC over any of these
// layouts: the Values Store's entry_size/key_size/value_size relationship
// and the doubly-linked list's head/tail bounds are the structural checks
// that stand in for one (see validateEntryHeader, ErrCorruptEntry).

// Magic numbers, one per file kind. BadMagic on mismatch.
const (
	keymapMagic uint64 = 0x4C48324B4D41504B // "LH2KMAPK"
	valuesMagic uint64 = 0x4C4832564C554553 // "LH2VLUES"
)

// valuesVersion/keymapVersion are the only versions this package writes.
// A mismatch on open is ErrVersionMismatch, not ErrBadMagic.
const (
	valuesVersion uint32 = 1
	keymapVersion uint32 = 1
)

// Values file layout: [u64 magic][entry...]
const valuesHeaderSize = 8

// Values entry layout. The fixed header is 40 bytes:
//
//	u64 entry_size   (total bytes, inclusive, == entryHeaderSize+key_size+value_size)
//	u64 prev_entry   (1-based address, 0 = none)
//	u64 next_entry   (1-based address, 0 = none)
//	u32 key_size
//	u32 value_size
//	u64 reserved     (zero; pads the header to an 8-byte-aligned 40 bytes)
//	u8  key[key_size]
//	u8  value[value_size]
const (
	entryOffEntrySize  = 0
	entryOffPrevEntry  = 8
	entryOffNextEntry  = 16
	entryOffKeySize    = 24
	entryOffValueSize  = 28
	entryOffReserved   = 32
	entryHeaderSize    = 40
	entryOffKeyStart   = entryHeaderSize
)

// entryOnDiskSize returns entry_size for a key/value pair of the given
// lengths, per the spec.md §3 formula entry_size == 40 + key_size + value_size.
func entryOnDiskSize(keySize, valueSize uint32) uint64 {
	return entryHeaderSize + uint64(keySize) + uint64(valueSize)
}

// entryHeader is the decoded fixed portion of a values entry.
type entryHeader struct {
	EntrySize uint64
	Prev      uint64
	Next      uint64
	KeySize   uint32
	ValueSize uint32
}

func encodeEntryHeader(buf []byte, h entryHeader) {
	binary.LittleEndian.PutUint64(buf[entryOffEntrySize:], h.EntrySize)
	binary.LittleEndian.PutUint64(buf[entryOffPrevEntry:], h.Prev)
	binary.LittleEndian.PutUint64(buf[entryOffNextEntry:], h.Next)
	binary.LittleEndian.PutUint32(buf[entryOffKeySize:], h.KeySize)
	binary.LittleEndian.PutUint32(buf[entryOffValueSize:], h.ValueSize)
	binary.LittleEndian.PutUint64(buf[entryOffReserved:], 0)
}

func decodeEntryHeader(buf []byte) entryHeader {
	return entryHeader{
		EntrySize: binary.LittleEndian.Uint64(buf[entryOffEntrySize:]),
		Prev:      binary.LittleEndian.Uint64(buf[entryOffPrevEntry:]),
		Next:      binary.LittleEndian.Uint64(buf[entryOffNextEntry:]),
		KeySize:   binary.LittleEndian.Uint32(buf[entryOffKeySize:]),
		ValueSize: binary.LittleEndian.Uint32(buf[entryOffValueSize:]),
	}
}

// validateEntryHeader checks the structural invariant from spec.md §3.1:
// entry_size must equal 40 + key_size + value_size.
func validateEntryHeader(h entryHeader) bool {
	return h.EntrySize == entryOnDiskSize(h.KeySize, h.ValueSize)
}

// Keymap file layout: [u64 magic][level arrays...]. Level array offsets are
// recorded in Metadata (km_l0_addr, km_l1_addr), not in the keymap file
// itself. Each level has 2^(L-level_idx) buckets of B slots of one u64 each.
const keymapHeaderSize = 8

// slotByteOffset computes the byte offset of slot (bucket, slotIndex) within
// a level array that starts at levelBase, per spec.md §4.3:
//
//	level_base_addr(level) + bucket*B*8 + slot_index*8
func slotByteOffset(levelBase uint64, bucket uint64, slotIndex uint8, bucketSize uint8) uint64 {
	return levelBase + bucket*uint64(bucketSize)*8 + uint64(slotIndex)*8
}

// levelBucketCount returns 2^(L-levelIdx), the bucket count of a level that
// is levelIdx steps below the top of an index with level_size L. levelIdx 0
// is top, 1 is bottom.
func levelBucketCount(levelSize uint8, levelIdx int) uint64 {
	return uint64(1) << (int(levelSize) - levelIdx)
}

// levelByteSize returns the byte size of a level array with the given
// bucket count and bucket size.
func levelByteSize(bucketCount uint64, bucketSize uint8) uint64 {
	return bucketCount * uint64(bucketSize) * 8
}

// Metadata file layout (packed, no padding — File-Backed Region reads/writes
// place no alignment requirement on the caller):
//
//	u32 values_version
//	u32 keymap_version
//	u64 values_head_entry
//	u64 values_tail_entry
//	u64 values_file_size_bytes
//	u8  km_level_size
//	u8  km_bucket_size
//	u64 km_l0_addr
//	u64 km_l1_addr
//
// There is deliberately no magic number here: spec.md §6 lists a magic
// field for the Keymap and Values files but not for Metadata. BadMagic is
// therefore only possible on the Keymap and Values files; a malformed
// Metadata file instead surfaces as ErrCorruptEntry (size/geometry checks)
// or ErrVersionMismatch (version fields).
const (
	metaOffValuesVersion       = 0
	metaOffKeymapVersion       = 4
	metaOffValuesHeadEntry     = 8
	metaOffValuesTailEntry     = 16
	metaOffValuesFileSizeBytes = 24
	metaOffKmLevelSize         = 32
	metaOffKmBucketSize        = 33
	metaOffKmL0Addr            = 34
	metaOffKmL1Addr            = 42
	metadataSize               = 50
)

// metadata is the decoded contents of the Metadata Store.
type metadata struct {
	ValuesVersion       uint32
	KeymapVersion       uint32
	ValuesHeadEntry     uint64
	ValuesTailEntry     uint64
	ValuesFileSizeBytes uint64
	KmLevelSize         uint8
	KmBucketSize        uint8
	KmL0Addr            uint64
	KmL1Addr            uint64
}

func encodeMetadata(buf []byte, m metadata) {
	binary.LittleEndian.PutUint32(buf[metaOffValuesVersion:], m.ValuesVersion)
	binary.LittleEndian.PutUint32(buf[metaOffKeymapVersion:], m.KeymapVersion)
	binary.LittleEndian.PutUint64(buf[metaOffValuesHeadEntry:], m.ValuesHeadEntry)
	binary.LittleEndian.PutUint64(buf[metaOffValuesTailEntry:], m.ValuesTailEntry)
	binary.LittleEndian.PutUint64(buf[metaOffValuesFileSizeBytes:], m.ValuesFileSizeBytes)
	buf[metaOffKmLevelSize] = m.KmLevelSize
	buf[metaOffKmBucketSize] = m.KmBucketSize
	binary.LittleEndian.PutUint64(buf[metaOffKmL0Addr:], m.KmL0Addr)
	binary.LittleEndian.PutUint64(buf[metaOffKmL1Addr:], m.KmL1Addr)
}

func decodeMetadata(buf []byte) metadata {
	return metadata{
		ValuesVersion:       binary.LittleEndian.Uint32(buf[metaOffValuesVersion:]),
		KeymapVersion:       binary.LittleEndian.Uint32(buf[metaOffKeymapVersion:]),
		ValuesHeadEntry:     binary.LittleEndian.Uint64(buf[metaOffValuesHeadEntry:]),
		ValuesTailEntry:     binary.LittleEndian.Uint64(buf[metaOffValuesTailEntry:]),
		ValuesFileSizeBytes: binary.LittleEndian.Uint64(buf[metaOffValuesFileSizeBytes:]),
		KmLevelSize:         buf[metaOffKmLevelSize],
		KmBucketSize:        buf[metaOffKmBucketSize],
		KmL0Addr:            binary.LittleEndian.Uint64(buf[metaOffKmL0Addr:]),
		KmL1Addr:            binary.LittleEndian.Uint64(buf[metaOffKmL1Addr:]),
	}
}
