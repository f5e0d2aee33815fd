package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/castrec/internal/storage"
)

// SetGlobalKey sets a global option in the file at path, creating the file if
// needed. An existing line for key in the global block is replaced in place;
// otherwise the line is inserted before the first [section] header so it
// stays global. Comments, target sections and layout are preserved. The file
// is replaced atomically.
func SetGlobalKey(path, key, value string) error {
	if key == "" || strings.ContainsAny(key, " \t\n[]#") {
		return fmt.Errorf("invalid option name %q", key)
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("option %q: value must be a single line", key)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	newLine := strings.TrimSpace(key + " " + value)

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	insertAt := len(lines)
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			insertAt = i
			break
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if k, _, _ := strings.Cut(trimmed, " "); k == key {
			lines[i] = newLine
			replaced = true
			break
		}
	}

	if !replaced {
		if insertAt < len(lines) {
			for insertAt > 0 && strings.TrimSpace(lines[insertAt-1]) == "" {
				insertAt--
			}
		}
		insert := []string{newLine}
		if insertAt < len(lines) && strings.TrimSpace(lines[insertAt]) != "" {
			insert = append(insert, "")
		}
		lines = append(lines[:insertAt], append(insert, lines[insertAt:]...)...)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}
