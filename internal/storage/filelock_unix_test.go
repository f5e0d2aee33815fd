//go:build unix

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

// A run that opened the lock file before the holder released it must contend
// for the same file as a run that starts afterwards.
func TestLockDirReleaseKeepsInode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	first, err := LockDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	early, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open lock file: %v", err)
	}
	defer early.Close()

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := unix.Flock(int(early.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Fatalf("flock on early handle: %v", err)
	}

	late, err := LockDir(dir)
	if !errors.Is(err, ErrWouldBlock) {
		_ = late.Unlock()
		t.Fatalf("two runs hold %s at once: err=%v", dir, err)
	}

	if err := unix.Flock(int(early.Fd()), unix.LOCK_UN); err != nil {
		t.Fatal(err)
	}
	again, err := LockDir(dir)
	if err != nil {
		t.Fatalf("relock after early handle released: %v", err)
	}
	_ = again.Unlock()
}
