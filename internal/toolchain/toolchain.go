// Package toolchain runs the external programs around a recording: the Go
// compiler that produces the binaries to record, and the agg renderer that
// turns recordings into GIFs.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ExecFunc runs name with args in dir and returns its combined output. The
// output is returned even on failure so it can be reported.
type ExecFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func defaultExec(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binaries and arguments come from the operator's configuration.
	command := exec.CommandContext(ctx, name, args...)
	command.Dir = dir
	output, err := command.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}

type runner struct {
	exec   ExecFunc
	logger *slog.Logger
}

// Option configures a Builder or Renderer.
type Option func(*runner)

// WithExec replaces how external commands are run.
func WithExec(fn ExecFunc) Option {
	return func(r *runner) {
		r.exec = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

func newRunner(opts []Option) runner {
	r := runner{exec: defaultExec, logger: slog.Default()}
	for _, opt := range opts {
		opt(&r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// BuildError reports a failed compile of one target.
type BuildError struct {
	Target string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build %s: %v", e.Target, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// RenderError reports a failed conversion of a recording.
type RenderError struct {
	Cast   string
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render %s: %v", e.Cast, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }
