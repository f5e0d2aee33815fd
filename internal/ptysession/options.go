package ptysession

import (
	"log/slog"
	"time"
)

type options struct {
	args           []string
	width          int
	height         int
	env            []string
	dir            string
	terminateGrace time.Duration
	logger         *slog.Logger
}

// Option configures a Session created by Start.
type Option func(*options)

// WithArgs sets the arguments passed to the program.
func WithArgs(args ...string) Option {
	return func(o *options) {
		o.args = args
	}
}

// WithSize sets the terminal dimensions (columns x rows).
func WithSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

// WithEnv appends environment variables to the process environment.
// Each entry should be in "KEY=VALUE" format.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithDir sets the working directory for the program.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithTerminateGrace sets how long a non-forced Terminate waits after
// SIGTERM before escalating to SIGKILL.
func WithTerminateGrace(d time.Duration) Option {
	return func(o *options) {
		o.terminateGrace = d
	}
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

const (
	defaultWidth          = 80
	defaultHeight         = 24
	defaultTerminateGrace = 500 * time.Millisecond
	killWait              = 5 * time.Second
	readBufferSize        = 16384
	chunkQueueSize        = 64
)

func defaultOptions() options {
	return options{
		width:          defaultWidth,
		height:         defaultHeight,
		terminateGrace: defaultTerminateGrace,
	}
}
