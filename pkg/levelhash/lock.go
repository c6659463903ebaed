package levelhash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Guard is the optional external reader-writer collaborator spec.md §5
// mentions: a multi-process deployment uses it to hold the single-writer
// invariant across processes via advisory locking (flock(2)) on a dedicated
// "<name>.index.lock" file. Single-process callers may use Open directly
// without a Guard; the in-process registry below already refuses a second
// live handle for the same directory and name.
//
// Guard only ever needs an exclusive, non-reentrant lock on a file it owns
// the lifetime of, so unlike a general-purpose file locker it does not
// support shared/read locks, timeouts, or the inode-swap detection a locker
// over caller-supplied paths would need: the lock file is created here and
// never replaced out from under a held lock.
type Guard struct {
	mu   sync.Mutex
	file *os.File
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

// AcquireGuard takes the exclusive writer lock for (dir, name), blocking
// until it is available.
func AcquireGuard(dir, name string) (*Guard, error) {
	file, err := openLockFile(dir, name)
	if err != nil {
		return nil, fmt.Errorf("acquire guard: %w", err)
	}

	if err := flockRetryEINTR(int(file.Fd()), syscall.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("acquire guard: %w", err)
	}

	return &Guard{file: file}, nil
}

// TryAcquireGuard takes the exclusive writer lock for (dir, name) without
// blocking, returning ErrBusy if another process already holds it.
func TryAcquireGuard(dir, name string) (*Guard, error) {
	file, err := openLockFile(dir, name)
	if err != nil {
		return nil, fmt.Errorf("acquire guard: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrBusy
		}

		return nil, fmt.Errorf("acquire guard: %w", err)
	}

	return &Guard{file: file}, nil
}

// Release releases the guard. Safe to call once; a nil Guard is a no-op.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		return nil
	}

	fd := int(g.file.Fd())

	unlockErr := flockRetryEINTR(fd, syscall.LOCK_UN)
	closeErr := g.file.Close()
	g.file = nil

	if unlockErr != nil {
		return fmt.Errorf("release guard: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("release guard: %w", closeErr)
	}

	return nil
}

func openLockFile(dir, name string) (*os.File, error) {
	path := lockFilePath(dir, name)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return file, err
	}

	if err := os.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

func lockFilePath(dir, name string) string {
	return filepath.Join(dir, name+".index.lock")
}

// flockRetryEINTR wraps flock, retrying on EINTR: a signal interrupting the
// syscall before it completes, not a failure of the syscall itself.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = syscall.Flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}

// handleRegistry forbids aliasing two mutable Index handles to the same
// directory+name within one process (spec.md §9's "model as a single
// owning object" note). The cross-process Guard only protects against other
// processes; within one process, Go lets two goroutines call Open on the
// same path with no OS-level signal that they're sharing state, so a
// registry is needed here even though no concurrent readers are supported.
var handleRegistry sync.Map // map[string]struct{}, keyed by registryKey(dir, name)

func registryKey(dir, name string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	return filepath.Join(abs, name)
}

func registerHandle(dir, name string) error {
	key := registryKey(dir, name)

	_, loaded := handleRegistry.LoadOrStore(key, struct{}{})
	if loaded {
		return fmt.Errorf("%w: an Index for %q is already open in this process", ErrBusy, key)
	}

	return nil
}

func unregisterHandle(dir, name string) {
	handleRegistry.Delete(registryKey(dir, name))
}
