package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultGoBinary is used when no compiler is configured.
const DefaultGoBinary = "go"

// Source identifies a main package to compile, relative to the source
// directory, with optional build tags.
type Source struct {
	Path string
	Tags []string
}

func (s Source) String() string {
	if len(s.Tags) == 0 {
		return s.Path
	}
	return fmt.Sprintf("-tags %s %s", strings.Join(s.Tags, ","), s.Path)
}

// Builder compiles targets ahead of recording so they start instantly under
// the pty instead of paying for "go run" inside the recording.
type Builder struct {
	goBinary  string
	sourceDir string
	outputDir string
	runner
}

// NewBuilder returns a Builder that runs goBinary from sourceDir and writes
// binaries into outputDir.
func NewBuilder(goBinary, sourceDir, outputDir string, opts ...Option) *Builder {
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	return &Builder{
		goBinary:  goBinary,
		sourceDir: sourceDir,
		outputDir: outputDir,
		runner:    newRunner(opts),
	}
}

// OutputDir is where binaries are written.
func (b *Builder) OutputDir() string {
	return b.outputDir
}

// Build compiles src into a binary named after the target and returns its
// absolute path.
func (b *Builder) Build(ctx context.Context, name string, src Source) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", &BuildError{Target: name, Err: fmt.Errorf("invalid target name %q", name)}
	}
	if src.Path == "" {
		return "", &BuildError{Target: name, Err: errors.New("no source path")}
	}

	outDir, err := filepath.Abs(b.outputDir)
	if err != nil {
		return "", &BuildError{Target: name, Err: err}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &BuildError{Target: name, Err: fmt.Errorf("failed to create build directory: %w", err)}
	}
	bin := filepath.Join(outDir, name)

	args := []string{"build"}
	if len(src.Tags) > 0 {
		args = append(args, "-tags", strings.Join(src.Tags, ","))
	}
	args = append(args, "-o", bin, src.Path)

	b.logger.Info("building target", "target", name, "source", src.String())
	started := time.Now()
	output, err := b.exec(ctx, b.sourceDir, b.goBinary, args...)
	if err != nil {
		return "", &BuildError{Target: name, Output: string(output), Err: err}
	}
	if _, err := os.Stat(bin); err != nil {
		return "", &BuildError{Target: name, Output: string(output), Err: fmt.Errorf("compiler produced no binary: %w", err)}
	}
	b.logger.Debug("built target", "target", name, "binary", bin, "elapsed", time.Since(started))
	return bin, nil
}
