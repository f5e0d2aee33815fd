package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// leftovers returns every entry in dir other than the named files.
func leftovers(t *testing.T, dir string, keep ...string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
outer:
	for _, e := range entries {
		for _, k := range keep {
			if e.Name() == k {
				continue outer
			}
		}
		names = append(names, e.Name())
	}
	return names
}

func TestAtomicWriteFile(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "test.cast")
		data := []byte("hello world")

		if err := AtomicWriteFile(filename, data, 0644); err != nil {
			t.Fatalf("AtomicWriteFile failed: %v", err)
		}

		readData, err := os.ReadFile(filename)
		if err != nil {
			t.Fatalf("Failed to read back file: %v", err)
		}
		if string(readData) != string(data) {
			t.Errorf("File content mismatch: got %q, want %q", string(readData), string(data))
		}
		if extra := leftovers(t, tempDir, "test.cast"); len(extra) != 0 {
			t.Errorf("unexpected files left behind: %v", extra)
		}
	})

	t.Run("rename failure and cleanup", func(t *testing.T) {
		// A directory where the target file should be causes Rename to fail.
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "test.cast")
		if err := os.Mkdir(filename, 0755); err != nil {
			t.Fatalf("Failed to create conflicting directory: %v", err)
		}

		err := AtomicWriteFile(filename, []byte("data"), 0644)
		if err == nil {
			t.Fatal("Expected an error but got none")
		}

		var renameErr RenameError
		if !errors.As(err, &renameErr) {
			t.Fatalf("Expected error to be of type RenameError, but got %T: %v", err, err)
		}
		if _, statErr := os.Stat(renameErr.TempPath()); !os.IsNotExist(statErr) {
			t.Errorf("Temporary file %q was not cleaned up after rename failure", renameErr.TempPath())
		}
	})

	t.Run("write to nested directory", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "a", "b", "c", "test.cast")
		data := []byte("nested hello")

		if err := AtomicWriteFile(filename, data, 0644); err != nil {
			t.Fatalf("AtomicWriteFile with nested dirs failed: %v", err)
		}
		readData, err := os.ReadFile(filename)
		if err != nil {
			t.Fatalf("Failed to read back file: %v", err)
		}
		if string(readData) != string(data) {
			t.Errorf("File content mismatch: got %q, want %q", string(readData), string(data))
		}
	})
}

func TestAtomicWrite(t *testing.T) {
	t.Run("writer failure leaves nothing behind", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "broken.cast")
		boom := errors.New("boom")

		err := AtomicWrite(filename, 0644, func(w io.Writer) error {
			if _, err := io.WriteString(w, "partial header\n"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped writer error, got %v", err)
		}
		if extra := leftovers(t, tempDir); len(extra) != 0 {
			t.Errorf("partial output must not survive a failed write: %v", extra)
		}
	})

	t.Run("existing file is untouched on failure", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "keep.cast")
		if err := os.WriteFile(filename, []byte("previous"), 0644); err != nil {
			t.Fatal(err)
		}

		_ = AtomicWrite(filename, 0644, func(w io.Writer) error {
			return errors.New("nope")
		})

		data, err := os.ReadFile(filename)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "previous" {
			t.Errorf("previous content replaced: %q", data)
		}
	})

	t.Run("crash before rename", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "crash.cast")

		testHookCrashBeforeRename = func() { panic("simulated crash") }
		defer func() { testHookCrashBeforeRename = nil }()

		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			_ = AtomicWriteFile(filename, []byte("data"), 0644)
		}()

		if _, err := os.Stat(filename); !os.IsNotExist(err) {
			t.Errorf("target must not exist after a crash, stat err: %v", err)
		}
		for _, name := range leftovers(t, tempDir) {
			if !strings.HasPrefix(name, ".") {
				t.Errorf("temporary file %q is not hidden", name)
			}
		}
	})

	t.Run("permissions applied", func(t *testing.T) {
		tempDir := t.TempDir()
		filename := filepath.Join(tempDir, "perm.cast")
		if err := AtomicWriteFile(filename, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(filename)
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != 0600 {
			t.Errorf("mode = %v, want 0600", got)
		}
	})
}
