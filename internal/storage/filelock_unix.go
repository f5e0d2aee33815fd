//go:build unix

package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock opens path and takes an exclusive flock on it without
// blocking. The lock dies with the process, so a crashed run never leaves
// the directory locked.
func acquireFileLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	switch err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); {
	case err == nil:
		return f, nil
	case errors.Is(err, unix.EWOULDBLOCK):
		_ = f.Close()
		return nil, ErrWouldBlock
	default:
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
}

// releaseFileLock empties the lock file and unlocks it. The file itself stays
// in place: every run must flock the same inode, and unlinking it would let a
// run that opened the old file lock it alongside a run that created a new one.
func releaseFileLock(f *os.File) error {
	truncErr := f.Truncate(0)
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return errors.Join(truncErr, f.Close())
}
