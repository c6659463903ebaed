// Package levelhash implements a write-optimized, persistent key-value index
// backed by memory-mapped files.
//
// A Level Hash holds two (transiently three) levels of fixed-size buckets.
// The top level always has twice as many buckets as the bottom level. A key
// is looked up by computing two independent hashes and checking at most two
// candidate buckets per level; insertion prefers the top level and falls
// back to a single bounded "stash" move into the bottom level before it
// resorts to doubling the top level (expansion).
//
// # Basic usage
//
//	ix, err := levelhash.Open("/var/lib/myapp", "users", 4, 4, levelhash.NewXXHashProvider())
//	if err != nil {
//	    // handle ErrBadMagic/ErrVersionMismatch/ErrCorruptEntry by recreating the index
//	}
//	defer ix.Close()
//
//	if err := ix.Insert([]byte("alice"), []byte("admin")); err != nil {
//	    // ErrKeyExists, ErrOutOfSpace, ErrExpansionFailed, ErrIO
//	}
//
//	v, err := ix.Get([]byte("alice"))
//
// # Concurrency
//
// A Level Hash is a single-writer structure: the core does not support
// concurrent mutation, and concurrent readers are an external concern. The
// optional [Guard] collaborator serializes writers across processes using
// advisory file locking; within one process, [Open] refuses to hand out a
// second live handle for the same directory and name.
//
// # Error handling
//
// Errors are plain sentinel values, checked with [errors.Is]. ErrBadMagic
// and ErrCorruptEntry latch the handle: once returned, every later Get,
// Contains, Insert, Update and Delete on that handle returns the same
// latched error without touching the mapped regions again, Len reports 0,
// and Iter yields nothing.
package levelhash
