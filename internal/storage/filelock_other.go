//go:build !unix

package storage

import (
	"errors"
	"fmt"
	"os"
)

// acquireFileLock falls back to exclusive creation of the lock file where
// flock is unavailable. A crashed run leaves the file behind.
func acquireFileLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return f, nil
}

func releaseFileLock(f *os.File) error {
	closeErr := f.Close()
	rmErr := os.Remove(f.Name())
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	return errors.Join(closeErr, rmErr)
}
