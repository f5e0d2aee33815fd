// Package target defines the programs to record: how to build each one, the
// terminal size it is recorded at and the script that drives it.
package target

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/joeycumines/castrec/internal/script"
	"github.com/joeycumines/castrec/internal/toolchain"
)

// Size is a terminal size in character cells.
type Size struct {
	Width  int
	Height int
}

// Size presets.
var (
	DefaultSize = Size{Width: 60, Height: 15}
	LargeSize   = Size{Width: 80, Height: 40}
)

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize accepts "default", "large" or "COLSxROWS".
func ParseSize(s string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default":
		return DefaultSize, nil
	case "large":
		return LargeSize, nil
	}
	cols, rows, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q: want default, large or COLSxROWS", s)
	}
	w, err1 := strconv.Atoi(cols)
	h, err2 := strconv.Atoi(rows)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid size %q: want default, large or COLSxROWS", s)
	}
	return Size{Width: w, Height: h}, nil
}

// Target is one recordable program.
type Target struct {
	Name   string
	Source toolchain.Source
	Size   Size
	Script *script.Script
}

// Validate reports whether t can be built and recorded.
func (t Target) Validate() error {
	if t.Name == "" || strings.ContainsAny(t.Name, " \t/\\") {
		return fmt.Errorf("invalid target name %q", t.Name)
	}
	if t.Source.Path == "" {
		return fmt.Errorf("target %s: no source", t.Name)
	}
	if t.Size.Width <= 0 || t.Size.Height <= 0 {
		return fmt.Errorf("target %s: invalid size %s", t.Name, t.Size)
	}
	return nil
}

// Registry holds targets by name in registration order.
type Registry struct {
	targets map[string]Target
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

// Add registers t, replacing any target with the same name in place.
func (r *Registry) Add(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Script == nil {
		t.Script = script.MustNew()
	}
	if _, ok := r.targets[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.targets[t.Name] = t
	return nil
}

// Get returns the named target.
func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.targets[name]
	return t, ok
}

// Names returns all target names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len is the number of targets.
func (r *Registry) Len() int {
	return len(r.order)
}

// Select returns the named targets in the order given, or every target when
// names is empty. Duplicates are dropped; unknown names are returned
// separately.
func (r *Registry) Select(names []string) (selected []Target, unknown []string) {
	if len(names) == 0 {
		names = r.order
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if t, ok := r.targets[name]; ok {
			selected = append(selected, t)
		} else {
			unknown = append(unknown, name)
		}
	}
	return selected, unknown
}

// ParseGoCommand extracts the source and build tags from a "go run" command
// line such as "go run -tags chroma cmd/example12_chroma/main.go".
func ParseGoCommand(command string) (toolchain.Source, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return toolchain.Source{}, fmt.Errorf("command %q: %w", command, err)
	}
	if len(words) < 3 || words[0] != "go" || (words[1] != "run" && words[1] != "build") {
		return toolchain.Source{}, fmt.Errorf("command %q: want go run [-tags TAGS] SRC", command)
	}

	var src toolchain.Source
	for i := 2; i < len(words); i++ {
		w := words[i]
		switch {
		case w == "-tags" || w == "--tags":
			if i+1 >= len(words) {
				return toolchain.Source{}, fmt.Errorf("command %q: -tags needs a value", command)
			}
			i++
			src.Tags = append(src.Tags, SplitTags(words[i])...)
		case strings.HasPrefix(w, "-tags=") || strings.HasPrefix(w, "--tags="):
			_, v, _ := strings.Cut(w, "=")
			src.Tags = append(src.Tags, SplitTags(v)...)
		case strings.HasPrefix(w, "-"):
			return toolchain.Source{}, fmt.Errorf("command %q: unsupported flag %s", command, w)
		case src.Path != "":
			return toolchain.Source{}, fmt.Errorf("command %q: program arguments are not supported", command)
		default:
			src.Path = w
		}
	}
	if src.Path == "" {
		return toolchain.Source{}, fmt.Errorf("command %q: no source", command)
	}
	return src, nil
}

// SplitTags splits a build tag list on commas and spaces.
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}
