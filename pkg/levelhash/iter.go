package levelhash

import "iter"

// Iter returns a lazy, finite sequence over all (key, value) pairs in
// insertion order, following the Values Store's head/tail list directly
// rather than scanning the Keymap (spec.md §4.2). It stops early if the
// consumer stops ranging, and stops (without a visible error — iter.Seq2 has
// no error channel) if it detects corruption mid-walk.
func (ix *Index) Iter() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		if ix.checkOpen() != nil {
			return
		}

		m := ix.meta.Get()

		if err := ix.values.Iter(m.ValuesHeadEntry, maxIterSteps(ix), yield); err != nil {
			ix.latch(err)
		}
	}
}
