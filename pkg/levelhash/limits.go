package levelhash

// Hardcoded implementation limits.
//
// These exist to keep bucket/region arithmetic away from overflow
// boundaries and to bound resource usage for configurations nobody
// fuzzes or tests. Violations are reported as ErrInvalidInput.
const (
	// minLevelSize/maxLevelSize bound L (log2 of the top level's bucket
	// count). maxLevelSize keeps 2^(L+1)*B*8 (the interim level during
	// expansion) well inside int64 range on a 64-bit platform.
	minLevelSize = 1
	maxLevelSize = 40

	// minBucketSize/maxBucketSize bound B. km_bucket_size is a single byte
	// on disk (see format.go), so 255 is a hard ceiling, not just a guardrail.
	minBucketSize = 1
	maxBucketSize = 255

	// maxKeySizeBytes/maxValueSizeBytes bound key_size/value_size, both u32
	// fields on disk. The limits here are far below 2^32 to keep a single
	// entry from dominating the values file.
	maxKeySizeBytes   = 1 << 16 // 64 KiB
	maxValueSizeBytes = 1 << 24 // 16 MiB

	// defaultDisplacementBudget bounds the number of stash attempts a single
	// expansion pass makes against the interim level before it doubles the
	// interim further and retries (spec.md §4.4 step 2).
	defaultDisplacementBudget = 64

	// maxDisplacementRounds bounds how many times expansion is allowed to
	// double an already-oversized interim level before giving up with
	// ErrExpansionFailed. This exists only to guarantee termination; it is
	// not expected to be hit by a correctly functioning hash provider.
	maxDisplacementRounds = 8

	// defaultShrinkLoadFactor and defaultShrinkHysteresis answer spec.md §9's
	// open question on shrink trigger policy: shrink becomes eligible once
	// occupied_slots/total_slots drops below defaultShrinkLoadFactor, and
	// stays eligible only once it has stayed below that line for
	// defaultShrinkHysteresis consecutive Delete calls, to avoid flapping
	// expand/shrink cycles around the threshold.
	defaultShrinkLoadFactor = 0.40
	defaultShrinkHysteresis = 16

	// minLevelSizeForShrink is L_min from spec.md §4.4: shrink never takes L
	// below this, since a level_size of 1 already has only two top buckets.
	minLevelSizeForShrink = minLevelSize
)
