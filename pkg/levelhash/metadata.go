package levelhash

import (
	"bytes"
	"fmt"
	"os"

	"github.com/calvinalkan/levelhash/pkg/fs"
)

var metadataWriter = fs.NewAtomicWriter(fs.NewReal())

// metadataStore is the Metadata Store (spec.md §4.5): a small fixed-layout
// header file. Unlike the Keymap and Values Store, it is not memory-mapped —
// it is short enough that rewriting it wholesale on every mutation is
// cheaper and simpler than patching a mapped region in place, so every
// Save does a full atomic rewrite (temp file, fsync, rename, dir fsync).
type metadataStore struct {
	path string
	cur  metadata
}

// createMetadataStore writes a brand-new Metadata file for a freshly created
// index.
func createMetadataStore(path string, levelSize, bucketSize uint8, l0Addr, l1Addr uint64) (*metadataStore, error) {
	m := metadata{
		ValuesVersion:       valuesVersion,
		KeymapVersion:       keymapVersion,
		ValuesHeadEntry:     0,
		ValuesTailEntry:     0,
		ValuesFileSizeBytes: valuesHeaderSize,
		KmLevelSize:         levelSize,
		KmBucketSize:        bucketSize,
		KmL0Addr:            l0Addr,
		KmL1Addr:            l1Addr,
	}

	ms := &metadataStore{path: path, cur: m}
	if err := ms.Save(); err != nil {
		return nil, err
	}

	return ms, nil
}

// openMetadataStore reads and validates an existing Metadata file.
func openMetadataStore(path string) (*metadataStore, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata %q: %w", path, wrapIOErr(err))
	}

	if len(buf) != metadataSize {
		return nil, fmt.Errorf("%w: metadata file %q is %d bytes, want %d", ErrCorruptEntry, path, len(buf), metadataSize)
	}

	m := decodeMetadata(buf)

	if m.ValuesVersion != valuesVersion {
		return nil, fmt.Errorf("%w: values_version %d, want %d", ErrVersionMismatch, m.ValuesVersion, valuesVersion)
	}

	if m.KeymapVersion != keymapVersion {
		return nil, fmt.Errorf("%w: keymap_version %d, want %d", ErrVersionMismatch, m.KeymapVersion, keymapVersion)
	}

	if m.KmBucketSize < minBucketSize {
		return nil, fmt.Errorf("%w: km_bucket_size %d is invalid", ErrCorruptEntry, m.KmBucketSize)
	}

	if m.KmLevelSize < minLevelSize || m.KmLevelSize > maxLevelSize {
		return nil, fmt.Errorf("%w: km_level_size %d is invalid", ErrCorruptEntry, m.KmLevelSize)
	}

	return &metadataStore{path: path, cur: m}, nil
}

// Save rewrites the Metadata file wholesale and durably.
func (ms *metadataStore) Save() error {
	buf := make([]byte, metadataSize)
	encodeMetadata(buf, ms.cur)

	if err := metadataWriter.Write(ms.path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("write metadata %q: %w", ms.path, wrapIOErr(err))
	}

	return nil
}

func (ms *metadataStore) Get() metadata { return ms.cur }

func (ms *metadataStore) Set(m metadata) { ms.cur = m }
