package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Renderer defaults, matching the look of the published example GIFs.
const (
	DefaultAggBinary = "agg"
	DefaultFontSize  = 14
	DefaultTheme     = "dracula"
)

// Artifact is a rendered file.
type Artifact struct {
	Path string
	Size int64
}

// HumanSize formats the artifact size for display, e.g. "83 kB".
func (a Artifact) HumanSize() string {
	return humanize.Bytes(uint64(max(a.Size, 0)))
}

// Renderer converts asciicast recordings to GIFs with agg.
type Renderer struct {
	binary   string
	fontSize int
	theme    string
	runner
}

// NewRenderer returns a Renderer. Zero values select the defaults.
func NewRenderer(binary string, fontSize int, theme string, opts ...Option) *Renderer {
	if binary == "" {
		binary = LookupAgg()
	}
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	if theme == "" {
		theme = DefaultTheme
	}
	return &Renderer{
		binary:   binary,
		fontSize: fontSize,
		theme:    theme,
		runner:   newRunner(opts),
	}
}

// LookupAgg finds agg on PATH, falling back to the cargo install location.
func LookupAgg() string {
	if p, err := exec.LookPath(DefaultAggBinary); err == nil {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".cargo", "bin", DefaultAggBinary)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return DefaultAggBinary
}

// Render writes the GIF for castPath to outPath. A stale outPath is removed
// first so a renderer that exits cleanly without writing is detected.
func (r *Renderer) Render(ctx context.Context, castPath, outPath string) (Artifact, error) {
	if err := os.Remove(outPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, &RenderError{Cast: castPath, Err: fmt.Errorf("failed to remove stale output: %w", err)}
	}

	args := []string{
		"--font-size", strconv.Itoa(r.fontSize),
		"--theme", r.theme,
		castPath, outPath,
	}
	output, err := r.exec(ctx, "", r.binary, args...)
	if err != nil {
		return Artifact{}, &RenderError{Cast: castPath, Output: string(output), Err: err}
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return Artifact{}, &RenderError{Cast: castPath, Output: string(output), Err: fmt.Errorf("renderer produced no output: %w", err)}
	}
	a := Artifact{Path: outPath, Size: info.Size()}
	r.logger.Debug("rendered recording", "cast", castPath, "output", outPath, "size", a.HumanSize())
	return a, nil
}
