package levelhash

import "fmt"

// Open opens an existing Level Hash at dir/name, or creates one if no
// Metadata file exists yet. l and b are the initial top-level level_size and
// bucket_size (spec.md §2); they are only used for a fresh index — if one
// already exists, the on-disk km_level_size/km_bucket_size win, per spec.md
// §4.5, even if the caller passes different values.
//
// Open registers the (dir, name) pair in the in-process handle registry and
// returns ErrBusy if another live handle already owns it. If opts requests a
// Guard, Open also acquires the cross-process advisory lock before touching
// any files.
func Open(dir, name string, l, b uint8, hp HashProvider, opts ...OptionFunc) (*Index, error) {
	if hp == nil {
		return nil, invalidInputf("hash provider must not be nil")
	}

	if l < minLevelSize || l > maxLevelSize {
		return nil, invalidInputf("level_size %d out of range [%d, %d]", l, minLevelSize, maxLevelSize)
	}

	if b < minBucketSize || b > maxBucketSize {
		return nil, invalidInputf("bucket_size %d out of range [%d, %d]", b, minBucketSize, maxBucketSize)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if err := registerHandle(dir, name); err != nil {
		return nil, err
	}

	ix, err := open(dir, name, l, b, hp, options)
	if err != nil {
		unregisterHandle(dir, name)
		return nil, err
	}

	return ix, nil
}

func open(dir, name string, l, b uint8, hp HashProvider, options Options) (ix *Index, err error) {
	var guard *Guard
	if options.Guard {
		guard, err = AcquireGuard(dir, name)
		if err != nil {
			return nil, err
		}
	}

	defer func() {
		if err != nil {
			_ = guard.Release()
		}
	}()

	metaPath, keymapPath, valuesPath := filePaths(dir, name)

	exists, err := fileExists(metaPath)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", metaPath, wrapIOErr(err))
	}

	var (
		meta         *metadataStore
		keymapRegion *region
		valuesRegion *region
		km           *keymap
	)

	if !exists {
		meta, keymapRegion, valuesRegion, km, err = create(metaPath, keymapPath, valuesPath, l, b)
	} else {
		meta, keymapRegion, valuesRegion, km, err = openExisting(metaPath, keymapPath, valuesPath)
	}
	if err != nil {
		return nil, err
	}

	ix = &Index{
		dir:          dir,
		name:         name,
		valuesRegion: valuesRegion,
		keymapRegion: keymapRegion,
		values:       openValuesStore(valuesRegion),
		km:           km,
		meta:         meta,
		hp:           hp,
		opts:         options,
		state:        stateSteady,
		guard:        guard,
	}

	if km.HasInterim() {
		if err := ix.expand(); err != nil {
			_ = ix.valuesRegion.Close()
			_ = ix.keymapRegion.Close()
			return nil, err
		}
	}

	return ix, nil
}

// create lays out brand-new Metadata, Keymap, and Values files for a
// top-level of level_size l and bucket_size b.
func create(metaPath, keymapPath, valuesPath string, l, b uint8) (*metadataStore, *region, *region, *keymap, error) {
	topAddr := uint64(keymapHeaderSize)
	topSize := levelByteSize(levelBucketCount(l, 0), b)
	bottomAddr := topAddr + topSize
	bottomSize := levelByteSize(levelBucketCount(l, 1), b)
	keymapFileSize := bottomAddr + bottomSize

	keymapRegion, err := openRegion(keymapPath, int64(keymapFileSize))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keymapRegion.WriteU64(0, keymapMagic)

	valuesRegion, err := openRegion(valuesPath, valuesHeaderSize)
	if err != nil {
		_ = keymapRegion.Close()
		return nil, nil, nil, nil, err
	}
	valuesRegion.WriteU64(0, valuesMagic)

	meta, err := createMetadataStore(metaPath, l, b, topAddr, bottomAddr)
	if err != nil {
		_ = keymapRegion.Close()
		_ = valuesRegion.Close()
		return nil, nil, nil, nil, err
	}

	km := openKeymap(keymapRegion, l, b, topAddr, bottomAddr)

	return meta, keymapRegion, valuesRegion, km, nil
}

// openExisting opens and validates the three files of an already-created
// index, then recovers any half-completed expansion left behind by a crash
// (spec.md §5).
func openExisting(metaPath, keymapPath, valuesPath string) (*metadataStore, *region, *region, *keymap, error) {
	meta, err := openMetadataStore(metaPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	m := meta.Get()

	keymapRegion, err := openRegion(keymapPath, 0)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if got := keymapRegion.ReadU64(0); got != keymapMagic {
		_ = keymapRegion.Close()
		return nil, nil, nil, nil, fmt.Errorf("%w: keymap file %q", ErrBadMagic, keymapPath)
	}

	valuesRegion, err := openRegion(valuesPath, 0)
	if err != nil {
		_ = keymapRegion.Close()
		return nil, nil, nil, nil, err
	}

	if got := valuesRegion.ReadU64(0); got != valuesMagic {
		_ = keymapRegion.Close()
		_ = valuesRegion.Close()
		return nil, nil, nil, nil, fmt.Errorf("%w: values file %q", ErrBadMagic, valuesPath)
	}

	if uint64(valuesRegion.Size()) != m.ValuesFileSizeBytes {
		_ = keymapRegion.Close()
		_ = valuesRegion.Close()
		return nil, nil, nil, nil, fmt.Errorf("%w: values file %q is %d bytes, metadata records %d", ErrCorruptEntry, valuesPath, valuesRegion.Size(), m.ValuesFileSizeBytes)
	}

	km := openKeymap(keymapRegion, m.KmLevelSize, m.KmBucketSize, m.KmL0Addr, m.KmL1Addr)

	interimAddr, interimL, present, err := detectInterim(uint64(keymapRegion.Size()), m.KmLevelSize, m.KmBucketSize, m.KmL0Addr, m.KmL1Addr)
	if err != nil {
		_ = keymapRegion.Close()
		_ = valuesRegion.Close()
		return nil, nil, nil, nil, err
	}

	if present {
		km.interimAddr = interimAddr
		km.interimL = interimL
	}

	return meta, keymapRegion, valuesRegion, km, nil
}
