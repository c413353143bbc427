package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrWouldBlock is returned by TryLock when the lock is held by
	// another process, or by *WithTimeout when the acquisition timeout expires.
	ErrWouldBlock = errors.New("lock would block")

	// ErrInvalidTimeout is returned when a timeout is <= 0.
	ErrInvalidTimeout = errors.New("invalid lock timeout")

	// errInodeMismatch signals the lock file was replaced between open and
	// flock; callers retry against the path's current inode.
	errInodeMismatch = errors.New("inode mismatch")
)

// Locker provides exclusive, process-wide advisory locking over a single
// path, via flock(2) on a dedicated lock file. It backs a store's
// single-writer-per-file-pair guarantee: one process holds the lock for the
// lifetime of an open store, so two processes can never interleave writes to
// the same dump.scdb/search.iscdb pair.
//
// flock locks an inode, not a pathname, so Locker re-verifies the lock file's
// inode still matches path after acquiring, retrying if the file was
// replaced concurrently (see inodeMatchesPath).
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker returns a Locker that performs its file operations through fs.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs, flock: syscall.Flock}
}

// Lock represents a held file lock. Close releases it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes its file descriptor. Idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())
	unlockErr := flockRetryEINTR(lk.flock, fd, syscall.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock fd: %w", closeErr)
	}
	return nil
}

type lockType int

const (
	sharedLock    lockType = syscall.LOCK_SH
	exclusiveLock lockType = syscall.LOCK_EX
)

// Lock acquires an exclusive lock on path, blocking until available. The
// lock file and its parent directories are created if absent.
func (l *Locker) Lock(path string) (*Lock, error) {
	return l.lockBlocking(path, exclusiveLock)
}

// RLock acquires a shared lock on path, blocking until available.
func (l *Locker) RLock(path string) (*Lock, error) {
	return l.lockBlocking(path, sharedLock)
}

// LockWithTimeout attempts to acquire an exclusive lock, polling with
// exponential backoff (1ms up to 25ms) until timeout elapses. Returns
// ErrWouldBlock on timeout, ErrInvalidTimeout if timeout <= 0.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0", ErrInvalidTimeout)
	}
	return l.lockPolling(path, exclusiveLock, timeout)
}

// TryLock attempts to acquire an exclusive lock without blocking, returning
// ErrWouldBlock immediately if another process holds it.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.lockPolling(path, exclusiveLock, 0)
}

func (l *Locker) lockBlocking(path string, lt lockType) (*Lock, error) {
	openFlag := openFlagForLockType(lt)

	for {
		file, err := l.openLockFile(path, openFlag)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		if err := l.acquire(file, path, lt, false); err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		} else {
			_ = file.Close()
			if errors.Is(err, errInodeMismatch) {
				continue
			}
			return nil, err
		}
	}
}

func (l *Locker) lockPolling(path string, lt lockType, timeout time.Duration) (*Lock, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	backoff := time.Millisecond
	openFlag := openFlagForLockType(lt)

	for {
		file, err := l.openLockFile(path, openFlag)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, lt, true)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}
		_ = file.Close()

		retryable := errors.Is(err, ErrWouldBlock) || errors.Is(err, errInodeMismatch)
		if !retryable {
			return nil, err
		}

		if timeout == 0 {
			return nil, ErrWouldBlock
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}

// acquire flocks file and verifies its inode still matches path. On any
// failure the file is left unlocked but open; the caller closes it.
func (l *Locker) acquire(file File, path string, lt lockType, nonBlocking bool) error {
	fd := int(file.Fd())

	flags := int(lt)
	if nonBlocking {
		flags |= syscall.LOCK_NB
	}

	if err := flockRetryEINTR(l.flock, fd, flags); err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}
		return err
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(l.flock, fd, syscall.LOCK_UN)
		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}
		return fmt.Errorf("verifying inode match: %w", err)
	}
	if !match {
		_ = flockRetryEINTR(l.flock, fd, syscall.LOCK_UN)
		return errInodeMismatch
	}

	return nil
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

func (l *Locker) openLockFile(path string, flag int) (File, error) {
	f, err := l.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}
	return l.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
}

// inodeMatchesPath compares the (dev,ino) of the already-open descriptor f
// to what currently sits at path, catching the race where path was replaced
// between open and flock.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}
	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}
	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *syscall.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
}

func openFlagForLockType(lt lockType) int {
	if lt == sharedLock {
		return os.O_RDONLY
	}
	return os.O_RDWR
}

// flockRetryEINTR retries flock on EINTR, capped well above any plausible
// signal storm.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}
	return err
}
