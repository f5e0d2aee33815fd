// Package batch records a set of targets end to end: build every binary,
// record each one, publish the recordings and optionally render them.
//
// A failure affects only the target it belongs to. The run as a whole fails
// if any target failed, but every other target is still processed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/joeycumines/castrec/internal/asciicast"
	"github.com/joeycumines/castrec/internal/recorder"
	"github.com/joeycumines/castrec/internal/script"
	"github.com/joeycumines/castrec/internal/storage"
	"github.com/joeycumines/castrec/internal/target"
	"github.com/joeycumines/castrec/internal/toolchain"
)

// Builder compiles a target; *toolchain.Builder implements it.
type Builder interface {
	Build(ctx context.Context, name string, src toolchain.Source) (string, error)
}

// Renderer converts a recording; *toolchain.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, castPath, outPath string) (toolchain.Artifact, error)
}

// Recorder captures a session; *recorder.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, cmd recorder.Command, s *script.Script) (*asciicast.Recording, error)
}

// Stages a target can fail in.
const (
	StageLookup = "lookup"
	StageBuild  = "build"
	StageRecord = "record"
	StageWrite  = "write"
)

// ErrUnknownTarget is returned for names missing from the registry.
var ErrUnknownTarget = errors.New("unknown target")

// TargetError is a failure of one target.
type TargetError struct {
	Target string
	Stage  string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Target, e.Stage, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// Options configures a run.
type Options struct {
	// OutputDir receives NAME.cast and NAME.gif.
	OutputDir string
	// BuildDir receives compiled binaries. Defaults to OutputDir/bin.
	BuildDir string
	// KeepBinaries leaves compiled binaries in place after the run.
	KeepBinaries bool
	// Size overrides every target's terminal size when non-zero.
	Size target.Size
}

// Result is the outcome for one target.
type Result struct {
	Target   string
	Cast     string
	Events   int
	Duration time.Duration
	// Artifact is set when rendering succeeded.
	Artifact *toolchain.Artifact
	// RenderErr is a non-fatal render failure.
	RenderErr error
	Err       error
}

// Report collects the results of a run in processing order.
type Report struct {
	Results []Result
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins all target errors, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Runner executes batches.
type Runner struct {
	recorder Recorder
	builder  Builder
	renderer Renderer
	logger   *slog.Logger
	opts     Options
}

// Option configures a Runner.
type Option func(*Runner)

// WithRenderer enables rendering. Without it recordings are only written.
func WithRenderer(r Renderer) Option {
	return func(rn *Runner) {
		rn.renderer = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rn *Runner) {
		rn.logger = logger
	}
}

// New creates a Runner.
func New(rec Recorder, b Builder, opts Options, options ...Option) *Runner {
	if opts.BuildDir == "" {
		opts.BuildDir = filepath.Join(opts.OutputDir, "bin")
	}
	rn := &Runner{
		recorder: rec,
		builder:  b,
		logger:   slog.Default(),
		opts:     opts,
	}
	for _, o := range options {
		o(rn)
	}
	if rn.logger == nil {
		rn.logger = slog.Default()
	}
	return rn
}

// Run processes the named targets, or all of them when names is empty. The
// returned error joins every target failure; the report is nil only when the
// run could not start.
func (rn *Runner) Run(ctx context.Context, reg *target.Registry, names []string) (*Report, error) {
	lock, err := storage.LockDir(rn.opts.OutputDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			rn.logger.Warn("failed to release output directory lock", "error", err)
		}
	}()

	selected, unknown := reg.Select(names)
	report := &Report{}
	for _, name := range unknown {
		rn.logger.Error("unknown target", "target", name)
		report.Results = append(report.Results, Result{
			Target: name,
			Err:    &TargetError{Target: name, Stage: StageLookup, Err: ErrUnknownTarget},
		})
	}

	rn.logger.Info("building targets", "count", len(selected), "build_dir", rn.opts.BuildDir)
	binaries := make(map[string]string, len(selected))
	var built []string
	for _, t := range selected {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, canceled(t.Name, StageBuild, err))
			continue
		}
		bin, err := rn.builder.Build(ctx, t.Name, t.Source)
		if err != nil {
			rn.logger.Error("build failed", "target", t.Name, "error", err)
			report.Results = append(report.Results, Result{
				Target: t.Name,
				Err:    &TargetError{Target: t.Name, Stage: StageBuild, Err: err},
			})
			continue
		}
		binaries[t.Name] = bin
		built = append(built, bin)
	}
	if !rn.opts.KeepBinaries {
		defer rn.removeBinaries(built)
	}

	for _, t := range selected {
		bin, ok := binaries[t.Name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, canceled(t.Name, StageRecord, err))
			continue
		}
		report.Results = append(report.Results, rn.runOne(ctx, t, bin))
	}

	return report, report.Err()
}

func canceled(name, stage string, err error) Result {
	return Result{Target: name, Err: &TargetError{Target: name, Stage: stage, Err: err}}
}

// runOne records, writes and renders a single target. A panic is converted
// into a failure of this target.
func (rn *Runner) runOne(ctx context.Context, t target.Target, bin string) (res Result) {
	logger := rn.logger.With("target", t.Name)
	res.Target = t.Name
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while recording", "panic", p, "stack", string(debug.Stack()))
			res.Err = &TargetError{Target: t.Name, Stage: StageRecord, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	size := t.Size
	if rn.opts.Size.Width > 0 && rn.opts.Size.Height > 0 {
		size = rn.opts.Size
	}

	logger.Info("recording", "size", size.String(), "actions", t.Script.Len(), "scripted", t.Script.TotalDelay())
	rec, err := rn.recorder.Record(ctx, recorder.Command{
		Path:   bin,
		Width:  size.Width,
		Height: size.Height,
	}, t.Script)
	if err != nil {
		logger.Error("recording failed", "error", err)
		res.Err = &TargetError{Target: t.Name, Stage: StageRecord, Err: err}
		return res
	}

	castPath := filepath.Join(rn.opts.OutputDir, t.Name+".cast")
	if err := asciicast.WriteFile(castPath, rec); err != nil {
		logger.Error("failed to write recording", "path", castPath, "error", err)
		res.Err = &TargetError{Target: t.Name, Stage: StageWrite, Err: err}
		return res
	}
	res.Cast = castPath
	res.Events = len(rec.Events)
	res.Duration = rec.Duration()
	logger.Info("saved recording", "path", castPath, "events", res.Events, "duration", res.Duration)

	if rn.renderer == nil {
		return res
	}
	gifPath := filepath.Join(rn.opts.OutputDir, t.Name+".gif")
	art, err := rn.renderer.Render(ctx, castPath, gifPath)
	if err != nil {
		logger.Warn("failed to render recording", "error", err)
		res.RenderErr = err
		return res
	}
	res.Artifact = &art
	logger.Info("rendered recording", "path", art.Path, "size", art.HumanSize())
	return res
}

// removeBinaries deletes what this run built, then the build directory if
// that leaves it empty.
func (rn *Runner) removeBinaries(built []string) {
	for _, bin := range built {
		if err := os.Remove(bin); err != nil && !errors.Is(err, os.ErrNotExist) {
			rn.logger.Warn("failed to remove binary", "path", bin, "error", err)
		}
	}
	if err := os.Remove(rn.opts.BuildDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		rn.logger.Debug("build directory kept", "path", rn.opts.BuildDir, "error", err)
	}
}
