// Package fs provides the narrow filesystem surface the Metadata Store's
// atomic rewrite needs: open/create a file, rename it over another, remove
// it, all as an [FS] interface so the durability logic in [AtomicWriter]
// doesn't talk to [os] directly.
//
// The main types are:
//   - [FS]: the operations [AtomicWriter] needs
//   - [File]: an open file, satisfied by [os.File]
//   - [Real]: the production implementation, backed by [os]
package fs

import (
	"io"
	"os"
)

// File is an OS-backed open file descriptor, satisfied by [os.File].
//
// It only covers what [AtomicWriter] does with a file: write to it, sync
// it, chmod it, close it.
type File interface {
	io.Writer
	io.Closer

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS is the filesystem surface [AtomicWriter] needs to write a file
// atomically: create a temp file, rename it into place, clean it up on
// failure.
type FS interface {
	// Open opens a file for reading. See [os.Open]. Used to open a
	// directory so its contents can be fsynced after a rename.
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile]. Used to create the temp file exclusively.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Remove deletes a file. See [os.Remove]. Used to clean up a temp file
	// after a failed write.
	Remove(path string) error

	// Rename moves/renames a file. See [os.Rename]. Atomic on the same
	// filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
