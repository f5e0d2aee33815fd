package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// TargetSectionPrefix introduces a recording target definition, as in
// "[target example1]".
const TargetSectionPrefix = "target"

// Config represents the application configuration.
type Config struct {
	// Global options that apply to every command.
	Global map[string]string
	// Targets holds the [target NAME] sections in file order.
	Targets []*TargetSection
	// Warnings contains any warnings generated during config loading.
	Warnings []string
}

// TargetSection is one [target NAME] block. Options keep their file order
// because action lines are repeatable and order-sensitive.
type TargetSection struct {
	Name    string
	Line    int
	Options []Option
}

// Option is a single "key value" line.
type Option struct {
	Key   string
	Value string
	Line  int
}

// Get returns the last value given for key.
func (s *TargetSection) Get(key string) (string, bool) {
	for i := len(s.Options) - 1; i >= 0; i-- {
		if s.Options[i].Key == key {
			return s.Options[i].Value, true
		}
	}
	return "", false
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Warnings: make([]string, 0),
	}
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path. A missing
// file yields an empty configuration.
//
// The file uses dnsmasq-style format: optionName remainingLineIsTheValue.
// Symlinks are rejected.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	byName := make(map[string]*TargetSection)
	var current *TargetSection
	var skipping bool
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			kind, name, _ := strings.Cut(strings.TrimSpace(strings.Trim(line, "[]")), " ")
			name = strings.TrimSpace(name)
			current, skipping = nil, false
			switch {
			case kind != TargetSectionPrefix:
				config.addWarning("line %d: unknown section [%s], ignoring its options", lineNo, kind)
				skipping = true
			case name == "" || strings.ContainsAny(name, " \t/\\"):
				return nil, fmt.Errorf("line %d: invalid target name %q", lineNo, name)
			default:
				if existing, ok := byName[name]; ok {
					current = existing
				} else {
					current = &TargetSection{Name: name, Line: lineNo}
					byName[name] = current
					config.Targets = append(config.Targets, current)
				}
			}
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		switch {
		case skipping:
		case current != nil:
			current.Options = append(current.Options, Option{Key: key, Value: value, Line: lineNo})
		default:
			config.Global[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	// Validate config against schema: detect unknown options and type mismatches.
	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}

	return config, nil
}

// addWarning adds a warning to the config's warnings list.
func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// Target returns the section for name, or nil.
func (c *Config) Target(name string) *TargetSection {
	for _, s := range c.Targets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// parseBool parses a boolean value from string.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive)
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// SetGlobalOption sets a global configuration option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// HasWarnings returns true if there are any warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
