package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LockFileName is the lock artifact created inside a locked directory.
const LockFileName = ".castrec.lock"

// ErrWouldBlock signals that a non-blocking lock attempt failed due to the
// resource being locked by another process.
var ErrWouldBlock = errors.New("file lock would block")

// DirLock is an exclusive, advisory lock on a directory.
type DirLock struct {
	f *os.File
}

// LockDir acquires an exclusive lock on dir without blocking, creating dir
// if needed. It returns an error wrapping ErrWouldBlock if another process
// holds the lock. The holder's pid is written to the lock file and named in
// that error.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dir, LockFileName)
	f, err := acquireFileLock(path)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return nil, fmt.Errorf("%s is locked by another run%s: %w", dir, lockOwner(path), err)
		}
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &DirLock{f: f}, nil
}

func lockOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return ""
	}
	return fmt.Sprintf(" (pid %d)", pid)
}

// Unlock releases the lock and clears the holder's pid from the lock
// artifact. It is safe to call on a nil or already released lock.
func (l *DirLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	return releaseFileLock(f)
}
