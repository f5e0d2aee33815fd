package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/yes/no/1/0/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeDuration is a Go time.Duration value (e.g. "50ms", "3s").
	TypeDuration OptionType = "duration"
)

// ConfigOption declares a single configuration option with its type, default,
// documentation, and environment variable override.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key string
	// Type is the expected value type for validation.
	Type OptionType
	// Default is the default value as a string, or "" for no default.
	Default string
	// Description is a human-readable description of the option.
	Description string
	// Section is "" for global options, or a section kind such as "target".
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
	// Repeatable options may appear more than once in a section.
	Repeatable bool
}

// ConfigSchema declares the expected configuration options. It is used for
// validation, documentation, typed resolution and env var mapping.
type ConfigSchema struct {
	options   []*ConfigOption
	byKey     map[string]*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds a ConfigOption to the schema. Duplicate keys within the same
// section are overwritten (last registration wins).
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	s.options = append(s.options, ref)
	if opt.Section == "" {
		s.byKey[opt.Key] = ref
		return
	}
	if s.bySection[opt.Section] == nil {
		s.bySection[opt.Section] = make(map[string]*ConfigOption)
	}
	s.bySection[opt.Section][opt.Key] = ref
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the ConfigOption for a key in a given section ("" for
// global), or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	return s.bySection[section][key]
}

// GlobalOptions returns all registered global options in registration order.
func (s *ConfigSchema) GlobalOptions() []ConfigOption {
	return s.SectionOptions("")
}

// SectionOptions returns all registered options for a section.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns a sorted list of all registered non-empty section names.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value for a global config key by checking,
// in order: (1) the environment variable declared in the schema for this key,
// (2) the config value, (3) the schema default. Returns "" if the key is not
// found anywhere.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	opt := s.Lookup("", key)
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if v, ok := c.GetGlobalOption(key); ok {
		return v
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveBool resolves key and parses it as a boolean.
func (s *ConfigSchema) ResolveBool(c *Config, key string) (bool, error) {
	v := s.Resolve(c, key)
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %q: %w", key, err)
	}
	return b, nil
}

// ResolveInt resolves key and parses it as an integer.
func (s *ConfigSchema) ResolveInt(c *Config, key string) (int, error) {
	v := s.Resolve(c, key)
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected int, got %q", key, v)
	}
	return i, nil
}

// ResolveDuration resolves key and parses it as a duration. Negative values
// are rejected.
func (s *ConfigSchema) ResolveDuration(c *Config, key string) (time.Duration, error) {
	v := s.Resolve(c, key)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected duration, got %q", key, v)
	}
	if d < 0 {
		return 0, fmt.Errorf("option %q: must not be negative: %v", key, d)
	}
	return d, nil
}

// ValidateConfig checks a loaded Config against the schema and returns a list
// of human-readable issues (empty if the config is valid). Validation includes:
//   - Unknown global options
//   - Unknown or wrongly repeated target options
//   - Type mismatches for options with declared types
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for _, sec := range c.Targets {
		seen := make(map[string]bool)
		for _, o := range sec.Options {
			opt := s.Lookup(TargetSectionPrefix, o.Key)
			if opt == nil {
				issues = append(issues, fmt.Sprintf("line %d: unknown option for target %q: %q", o.Line, sec.Name, o.Key))
				continue
			}
			if seen[o.Key] && !opt.Repeatable {
				issues = append(issues, fmt.Sprintf("line %d: option %q repeated in target %q, last value wins", o.Line, o.Key, sec.Name))
			}
			seen[o.Key] = true
			if err := validateType(opt.Type, o.Value); err != nil {
				issues = append(issues, fmt.Sprintf("line %d: option %q in target %q: %v", o.Line, o.Key, sec.Name, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

// validateType checks that a string value matches the expected OptionType.
func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// FormatHelp returns a formatted, human-readable reference of all registered
// options in the schema, grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder

	if globals := s.GlobalOptions(); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}

	for _, sec := range s.Sections() {
		opts := s.SectionOptions(sec)
		if len(opts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s NAME] Options:\n", sec)
		for _, o := range opts {
			writeOptionHelp(&b, o)
		}
	}

	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-28s %s", o.Key, o.Description)
	parts := make([]string, 0, 4)
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if o.Repeatable {
		parts = append(parts, "repeatable")
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// DefaultSchema returns the canonical schema declaring all known castrec
// configuration options.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll(defaultGlobalOptions())
	s.RegisterAll(defaultTargetOptions())
	return s
}

func defaultGlobalOptions() []ConfigOption {
	return []ConfigOption{
		// Paths and tools
		{Key: "output-dir", Type: TypeString, Default: "examples", Description: "Directory recordings and GIFs are written to", EnvVar: "CASTREC_OUTPUT_DIR"},
		{Key: "source-dir", Type: TypeString, Default: "go", Description: "Directory go build runs in", EnvVar: "CASTREC_SOURCE_DIR"},
		{Key: "build-dir", Type: TypeString, Default: "", Description: "Directory for compiled targets (default: OUTPUT-DIR/bin)"},
		{Key: "go-binary", Type: TypeString, Default: "go", Description: "Go toolchain used to build targets", EnvVar: "CASTREC_GO"},
		{Key: "agg-binary", Type: TypeString, Default: "", Description: "agg renderer (default: PATH, then ~/.cargo/bin/agg)", EnvVar: "CASTREC_AGG"},
		{Key: "agg-font-size", Type: TypeInt, Default: "14", Description: "Font size passed to agg"},
		{Key: "agg-theme", Type: TypeString, Default: "dracula", Description: "Theme passed to agg"},
		{Key: "render", Type: TypeBool, Default: "true", Description: "Convert recordings to GIF after recording"},

		// Recorder timing
		{Key: "recorder.bootstrap-window", Type: TypeDuration, Default: "100ms", Description: "Capture window before the first action"},
		{Key: "recorder.bootstrap-poll", Type: TypeDuration, Default: "50ms", Description: "Quiet window ending the bootstrap capture"},
		{Key: "recorder.poll", Type: TypeDuration, Default: "100ms", Description: "Longest single read; quiet window after exit"},
		{Key: "recorder.burst-poll", Type: TypeDuration, Default: "5ms", Description: "Quiet window once output is flowing"},
		{Key: "recorder.settle-window", Type: TypeDuration, Default: "50ms", Description: "Capture window after each send"},
		{Key: "recorder.exit-grace", Type: TypeDuration, Default: "3s", Description: "Time allowed to exit before being killed"},
		{Key: "recorder.terminate-grace", Type: TypeDuration, Default: "500ms", Description: "Delay between SIGTERM and SIGKILL"},
		{Key: "recorder.read-size", Type: TypeInt, Default: "16384", Description: "Maximum bytes per read"},
		{Key: "recorder.mark-end", Type: TypeBool, Default: "true", Description: "Append an empty event when recording stops"},
		{Key: "recorder.header-shell", Type: TypeString, Default: "/bin/bash", Description: "SHELL recorded in the cast header (empty to omit)"},
		{Key: "recorder.header-term", Type: TypeString, Default: "xterm-256color", Description: "TERM recorded in the cast header (empty to omit)"},

		// Logging options
		{Key: "log.file", Type: TypeString, Default: "", Description: "Log file path (JSON output)", EnvVar: "CASTREC_LOG_FILE"},
		{Key: "log.level", Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "CASTREC_LOG_LEVEL"},
		{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},
	}
}

func defaultTargetOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "command", Section: TargetSectionPrefix, Type: TypeString, Description: "go run [-tags T] SRC command line"},
		{Key: "source", Section: TargetSectionPrefix, Type: TypeString, Description: "Main package path relative to source-dir"},
		{Key: "tags", Section: TargetSectionPrefix, Type: TypeString, Description: "Comma separated build tags"},
		{Key: "size", Section: TargetSectionPrefix, Type: TypeString, Default: "default", Description: "default, large or COLSxROWS"},
		{Key: "action", Section: TargetSectionPrefix, Type: TypeString, Repeatable: true, Description: "DELAY [KEY|\"TEXT\"...]; replaces the built-in script"},
		{Key: "type", Section: TargetSectionPrefix, Type: TypeString, Repeatable: true, Description: "DELAY TEXT, one keystroke per character"},
		{Key: "repeat", Section: TargetSectionPrefix, Type: TypeString, Repeatable: true, Description: "N DELAY [KEY|\"TEXT\"...]"},
	}
}
