package levelhash

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// region is a File-Backed Region (spec.md §4.1): a contiguous, growable byte
// range mapped into the process address space, with fixed-width field
// access, append-friendly resize, hole-punching deallocate, and an explicit
// flush barrier.
//
// region is not safe for concurrent use; the single-writer model (spec.md
// §5) pushes that requirement up to Index.
type region struct {
	path string
	fd   int
	data []byte // mmap'd bytes, len(data) == size
	size int64
}

// openRegion opens or creates the file at path, ensures its length is at
// least initialSize, and maps it read/write. A freshly created file is
// zero-filled by the filesystem (sparse), matching the "empty slot == 0"
// and "empty byte == 0" conventions used throughout the format.
func openRegion(path string, initialSize int64) (*region, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, wrapIOErr(err))
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("fstat %q: %w", path, wrapIOErr(err))
	}

	size := st.Size
	if size < initialSize {
		if err := unix.Ftruncate(fd, initialSize); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate %q to %d: %w", path, initialSize, wrapIOErr(err))
		}
		size = initialSize
	}

	data, err := mmapRegion(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &region{path: path, fd: fd, data: data, size: size}, nil
}

func mmapRegion(fd int, size int64) ([]byte, error) {
	if size == 0 {
		// mmap of a zero-length file is undefined on Linux; callers that
		// need a region before its first resize should request a nonzero
		// initialSize.
		return []byte{}, nil
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", wrapIOErr(err))
	}

	return data, nil
}

func wrapIOErr(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %v", ErrIO, err)
}

// Size returns the region's current length in bytes.
func (r *region) Size() int64 { return r.size }

// ReadU32 reads a little-endian uint32 at offset with no alignment requirement.
func (r *region) ReadU32(offset uint64) uint32 {
	return binary.LittleEndian.Uint32(r.data[offset : offset+4])
}

// ReadU64 reads a little-endian uint64 at offset with no alignment requirement.
func (r *region) ReadU64(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(r.data[offset : offset+8])
}

// WriteU32 writes a little-endian uint32 at offset.
func (r *region) WriteU32(offset uint64, v uint32) {
	binary.LittleEndian.PutUint32(r.data[offset:offset+4], v)
}

// WriteU64 writes a little-endian uint64 at offset.
func (r *region) WriteU64(offset uint64, v uint64) {
	binary.LittleEndian.PutUint64(r.data[offset:offset+8], v)
}

// ReadBytes returns a read-only view of length bytes starting at offset.
// Callers that need to keep the bytes past the next mutation must copy.
func (r *region) ReadBytes(offset, length uint64) []byte {
	return r.data[offset : offset+length]
}

// WriteBytes copies b into the region at offset.
func (r *region) WriteBytes(offset uint64, b []byte) {
	copy(r.data[offset:offset+uint64(len(b))], b)
}

// Zero zeroes length bytes starting at offset, without deallocating backing
// pages (use Deallocate for that).
func (r *region) Zero(offset, length uint64) {
	clear(r.data[offset : offset+length])
}

// Resize grows or shrinks the file and remaps it. Growing zero-fills the new
// range (sparse on most filesystems); shrinking truncates and discards
// trailing bytes outright rather than hole-punching them.
func (r *region) Resize(newSize int64) error {
	if newSize == r.size {
		return nil
	}

	if len(r.data) > 0 {
		if err := unix.Munmap(r.data); err != nil {
			return fmt.Errorf("munmap %q: %w", r.path, wrapIOErr(err))
		}
		r.data = nil
	}

	if err := unix.Ftruncate(r.fd, newSize); err != nil {
		return fmt.Errorf("%w: ftruncate %q to %d: %v", ErrOutOfSpace, r.path, newSize, err)
	}

	data, err := mmapRegion(r.fd, newSize)
	if err != nil {
		return err
	}

	r.data = data
	r.size = newSize

	return nil
}

// GrowToFit doubles the region's size until it is at least minSize (a
// "double-until-fits" growth policy). Starts from the current size, or from
// 4096 bytes if the region is currently empty.
func (r *region) GrowToFit(minSize int64) error {
	if r.size >= minSize {
		return nil
	}

	newSize := r.size
	if newSize <= 0 {
		newSize = 4096
	}

	for newSize < minSize {
		newSize *= 2
	}

	return r.Resize(newSize)
}

// Deallocate punches a hole over [offset, offset+length) so subsequent reads
// return zero bytes and physical storage is released, without changing the
// file's logical size. Degrades to writing zeros when hole-punching is
// unavailable (e.g. the underlying filesystem doesn't support
// FALLOC_FL_PUNCH_HOLE); persistence semantics are unchanged either way.
func (r *region) Deallocate(offset, length uint64) error {
	if length == 0 {
		return nil
	}

	err := unix.Fallocate(r.fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, int64(offset), int64(length))
	if err == nil {
		r.Zero(offset, length)
		return nil
	}

	if err == unix.EOPNOTSUPP || err == unix.ENOSYS {
		r.Zero(offset, length)
		return nil
	}

	return fmt.Errorf("fallocate punch-hole %q: %w", r.path, wrapIOErr(err))
}

// Flush is a durability barrier over [offset, offset+length).
func (r *region) Flush(offset, length uint64) error {
	if length == 0 || len(r.data) == 0 {
		return nil
	}

	if err := unix.Msync(r.data[offset:offset+length], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %q: %w", r.path, wrapIOErr(err))
	}

	return nil
}

// Close unmaps and closes the underlying file descriptor. Safe to call once;
// a second call is a no-op returning nil.
func (r *region) Close() error {
	if r.fd < 0 {
		return nil
	}

	var err error
	if len(r.data) > 0 {
		if munErr := unix.Munmap(r.data); munErr != nil {
			err = fmt.Errorf("munmap %q: %w", r.path, wrapIOErr(munErr))
		}
		r.data = nil
	}

	if closeErr := unix.Close(r.fd); closeErr != nil && err == nil {
		err = fmt.Errorf("close %q: %w", r.path, wrapIOErr(closeErr))
	}
	r.fd = -1

	return err
}

// fileExists is a small helper used by the bootstrap path in open.go to
// decide between creating a fresh set of files and opening an existing one.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}
