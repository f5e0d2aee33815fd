package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/joeycumines/castrec/internal/batch"
	"github.com/joeycumines/castrec/internal/config"
	"github.com/joeycumines/castrec/internal/recorder"
	"github.com/joeycumines/castrec/internal/target"
	"github.com/joeycumines/castrec/internal/toolchain"
)

// RecordCommand builds, records and renders targets.
type RecordCommand struct {
	*BaseCommand
	config *config.Config

	outputDir string
	sourceDir string
	buildDir  string
	size      string
	noRender  bool
	keepBin   bool
	logFile   string
	logLevel  string

	// test seams; nil uses the real go, agg and pty
	exec     toolchain.ExecFunc
	start    recorder.StartFunc
	hostSize func() (width, height int, err error)
}

// NewRecordCommand creates a new record command.
func NewRecordCommand(cfg *config.Config) *RecordCommand {
	return &RecordCommand{
		BaseCommand: NewBaseCommand(
			"record",
			"Build, record and render targets (all when none are named)",
			"record [options] [target...]",
		),
		config: cfg,
		hostSize: func() (int, int, error) {
			return term.GetSize(int(os.Stdout.Fd()))
		},
	}
}

// SetupFlags configures the flags for the record command.
func (c *RecordCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.outputDir, "output", "", "Directory for .cast and .gif files (default: output-dir option)")
	fs.StringVar(&c.sourceDir, "source", "", "Directory go build runs in (default: source-dir option)")
	fs.StringVar(&c.buildDir, "build-dir", "", "Directory for compiled targets (default: OUTPUT/bin)")
	fs.StringVar(&c.size, "size", "", "Override every target's size: default, large, COLSxROWS or host")
	fs.BoolVar(&c.noRender, "no-render", false, "Write recordings only, skip GIF conversion")
	fs.BoolVar(&c.keepBin, "keep-bin", false, "Keep compiled binaries after recording")
	fs.StringVar(&c.logFile, "log-file", "", "Write JSON logs to this file instead of stderr")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute records the named targets. It fails when any target failed; the
// others are still recorded.
func (c *RecordCommand) Execute(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, args, stdout, stderr)
}

func (c *RecordCommand) run(ctx context.Context, names []string, stdout, stderr io.Writer) error {
	lc, err := resolveLogConfig(c.logFile, c.logLevel, c.config)
	if err != nil {
		return err
	}
	defer lc.close()
	logger := lc.logger(stderr)

	schema := config.DefaultSchema()
	recCfg, err := recorderConfig(schema, c.config)
	if err != nil {
		return err
	}
	reg, err := loadTargets(c.config)
	if err != nil {
		return err
	}

	opts := batch.Options{
		OutputDir:    firstNonEmpty(c.outputDir, schema.Resolve(c.config, "output-dir")),
		BuildDir:     firstNonEmpty(c.buildDir, schema.Resolve(c.config, "build-dir")),
		KeepBinaries: c.keepBin,
	}
	if opts.BuildDir == "" {
		opts.BuildDir = filepath.Join(opts.OutputDir, "bin")
	}
	if c.size != "" {
		if opts.Size, err = c.resolveSize(); err != nil {
			return err
		}
	}

	toolOpts := []toolchain.Option{toolchain.WithLogger(logger)}
	if c.exec != nil {
		toolOpts = append(toolOpts, toolchain.WithExec(c.exec))
	}
	builder := toolchain.NewBuilder(
		schema.Resolve(c.config, "go-binary"),
		firstNonEmpty(c.sourceDir, schema.Resolve(c.config, "source-dir")),
		opts.BuildDir,
		toolOpts...,
	)

	runOpts := []batch.Option{batch.WithLogger(logger)}
	render, err := schema.ResolveBool(c.config, "render")
	if err != nil {
		return err
	}
	if render && !c.noRender {
		fontSize, err := schema.ResolveInt(c.config, "agg-font-size")
		if err != nil {
			return err
		}
		agg := schema.Resolve(c.config, "agg-binary")
		if agg == "" {
			agg = toolchain.LookupAgg()
		}
		runOpts = append(runOpts, batch.WithRenderer(
			toolchain.NewRenderer(agg, fontSize, schema.Resolve(c.config, "agg-theme"), toolOpts...),
		))
	}

	recOpts := []recorder.Option{recorder.WithLogger(logger)}
	if c.start != nil {
		recOpts = append(recOpts, recorder.WithStartFunc(c.start))
	}

	runner := batch.New(recorder.New(recCfg, recOpts...), builder, opts, runOpts...)
	report, err := runner.Run(ctx, reg, names)
	if report != nil {
		printReport(stdout, report)
	}
	if err != nil {
		if report != nil {
			return fmt.Errorf("%d of %d targets failed: %w", len(report.Failed()), len(report.Results), err)
		}
		return err
	}
	return nil
}

func (c *RecordCommand) resolveSize() (target.Size, error) {
	if c.size != "host" {
		return target.ParseSize(c.size)
	}
	w, h, err := c.hostSize()
	if err != nil {
		return target.Size{}, fmt.Errorf("cannot use host size: %w", err)
	}
	return target.Size{Width: w, Height: h}, nil
}

func printReport(w io.Writer, report *batch.Report) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TARGET\tSTATUS\tEVENTS\tDURATION\tOUTPUT")
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			_, _ = fmt.Fprintf(tw, "%s\tfailed\t-\t-\t%v\n", res.Target, res.Err)
		case res.Artifact != nil:
			_, _ = fmt.Fprintf(tw, "%s\tok\t%d\t%v\t%s, %s (%s)\n", res.Target, res.Events,
				res.Duration.Round(10*time.Millisecond), res.Cast, res.Artifact.Path, res.Artifact.HumanSize())
		case res.RenderErr != nil:
			_, _ = fmt.Fprintf(tw, "%s\tok, not rendered\t%d\t%v\t%s\n", res.Target, res.Events,
				res.Duration.Round(10*time.Millisecond), res.Cast)
		default:
			_, _ = fmt.Fprintf(tw, "%s\tok\t%d\t%v\t%s\n", res.Target, res.Events,
				res.Duration.Round(10*time.Millisecond), res.Cast)
		}
	}
	_ = tw.Flush()
}

// recorderConfig resolves the recorder.* options, including the cast header env.
func recorderConfig(schema *config.ConfigSchema, cfg *config.Config) (recorder.Config, error) {
	rc := recorder.DefaultConfig()
	for key, dst := range map[string]*time.Duration{
		"recorder.bootstrap-window": &rc.BootstrapWindow,
		"recorder.bootstrap-poll":   &rc.BootstrapPoll,
		"recorder.poll":             &rc.Poll,
		"recorder.burst-poll":       &rc.BurstPoll,
		"recorder.settle-window":    &rc.SettleWindow,
		"recorder.exit-grace":       &rc.ExitGrace,
		"recorder.terminate-grace":  &rc.TerminateGrace,
	} {
		d, err := schema.ResolveDuration(cfg, key)
		if err != nil {
			return rc, err
		}
		*dst = d
	}
	var err error
	if rc.ReadSize, err = schema.ResolveInt(cfg, "recorder.read-size"); err != nil {
		return rc, err
	}
	if rc.MarkEnd, err = schema.ResolveBool(cfg, "recorder.mark-end"); err != nil {
		return rc, err
	}
	rc.Env = map[string]string{}
	for key, name := range map[string]string{
		"recorder.header-shell": "SHELL",
		"recorder.header-term":  "TERM",
	} {
		if v := schema.Resolve(cfg, key); v != "" {
			rc.Env[name] = v
		}
	}
	return rc, rc.Validate()
}

// loadTargets returns the built-in targets with configured ones applied.
func loadTargets(cfg *config.Config) (*target.Registry, error) {
	reg := target.Builtin()
	if cfg == nil {
		return reg, nil
	}
	if err := target.ApplyConfig(reg, cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
