// Package recorder drives a program through a script inside a
// pseudo-terminal and captures its output as a timestamped recording.
//
// The capture protocol:
//
//  1. The clock starts as soon as the program is spawned.
//  2. Output is captured for a bootstrap window so the first frame is
//     recorded before any input is sent.
//  3. Each action's delay is spent capturing output as it arrives; a payload
//     is then sent and the immediate reaction captured for a settle window.
//  4. After the script the program gets a grace period to exit, after which
//     it is killed. Remaining buffered output is captured either way.
//
// Event times are wall time since spawn, never decreasing. The program is
// terminated on every path out of [Recorder.Record], including errors,
// cancellation and panics.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joeycumines/castrec/internal/asciicast"
	"github.com/joeycumines/castrec/internal/ptysession"
	"github.com/joeycumines/castrec/internal/script"
)

// Process is the subset of a pty session the recorder drives. It is
// satisfied by *ptysession.Session and follows its error contract
// (ptysession.ErrTimeout, ErrEndOfStream, ErrSessionClosed).
type Process interface {
	ReadNonblocking(maxBytes int, timeout time.Duration) ([]byte, error)
	Send(b []byte) error
	WaitForExit(timeout time.Duration) error
	Terminate(force bool) error
	Close() error
}

// Command describes the program to record.
type Command struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Width  int
	Height int
}

// StartFunc spawns a Process for cmd.
type StartFunc func(cmd Command, cfg Config, logger *slog.Logger) (Process, error)

// StartPTY spawns cmd in a real pseudo-terminal.
func StartPTY(cmd Command, cfg Config, logger *slog.Logger) (Process, error) {
	s, err := ptysession.Start(cmd.Path,
		ptysession.WithArgs(cmd.Args...),
		ptysession.WithEnv(cmd.Env...),
		ptysession.WithDir(cmd.Dir),
		ptysession.WithSize(cmd.Width, cmd.Height),
		ptysession.WithTerminateGrace(cfg.TerminateGrace),
		ptysession.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Recorder executes scripts against freshly spawned programs. A Recorder
// may be reused sequentially; each call to Record owns its own process.
type Recorder struct {
	cfg    Config
	start  StartFunc
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStartFunc replaces how programs are spawned.
func WithStartFunc(fn StartFunc) Option {
	return func(r *Recorder) {
		r.start = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// New creates a Recorder.
func New(cfg Config, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		start:  StartPTY,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record spawns cmd, runs s against it and returns the captured recording.
// A nil script behaves like an empty one. Spawn failures are returned as
// *ptysession.SpawnError before anything is captured.
func (r *Recorder) Record(ctx context.Context, cmd Command, s *script.Script) (_ *asciicast.Recording, err error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if cmd.Width <= 0 || cmd.Height <= 0 {
		return nil, fmt.Errorf("recorder: invalid terminal size %dx%d", cmd.Width, cmd.Height)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := r.logger.With("session", uuid.NewString(), "path", cmd.Path)
	proc, err := r.start(cmd, r.cfg, logger)
	if err != nil {
		return nil, err
	}
	startTime := time.Now()
	defer func() {
		if cerr := proc.Close(); cerr != nil {
			logger.Error("failed to release session", "error", cerr)
			if err == nil {
				err = fmt.Errorf("failed to release session: %w", cerr)
			}
		}
	}()

	c := &capture{
		ctx:    ctx,
		cfg:    r.cfg,
		proc:   proc,
		logger: logger,
		start:  startTime,
	}
	if err := c.run(s); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			logger.Info("recording interrupted", "error", err)
			return nil, fmt.Errorf("recording interrupted: %w", err)
		}
		return nil, err
	}

	rec := &asciicast.Recording{
		Header: asciicast.NewHeader(cmd.Width, cmd.Height, startTime, r.cfg.env()),
		Events: c.events,
	}
	logger.Info("recorded session", "events", len(rec.Events), "duration", rec.Duration(), "forced", c.forced)
	return rec, nil
}

// capture holds the state of one Record call.
type capture struct {
	ctx    context.Context
	cfg    Config
	proc   Process
	logger *slog.Logger
	start  time.Time
	events []asciicast.Event
	// carry holds an incomplete trailing UTF-8 sequence until the rest of it
	// arrives, so multibyte characters split across reads stay intact.
	carry  []byte
	eos    bool
	forced bool
}

func (c *capture) run(s *script.Script) error {
	if err := c.drainFor(c.cfg.BootstrapWindow); err != nil {
		return err
	}
	if err := c.drainQuiet(c.cfg.BootstrapPoll); err != nil {
		return err
	}
	if len(c.events) == 0 {
		c.emit(nil)
	}

	for i, a := range s.All() {
		if a.Delay < 0 {
			return &script.ConfigurationError{Index: i, Reason: fmt.Sprintf("negative delay %v", a.Delay)}
		}
		if a.Delay > 0 {
			if err := c.drainFor(a.Delay); err != nil {
				return err
			}
		}
		if a.Payload == nil {
			continue
		}
		if err := c.proc.Send(a.Payload); err != nil {
			if errors.Is(err, ptysession.ErrSessionClosed) {
				c.logger.Debug("session closed, ending script early", "action", i, "remaining", s.Len()-i)
				break
			}
			return fmt.Errorf("action %d: %w", i, err)
		}
		if err := c.drainFor(c.cfg.SettleWindow); err != nil {
			return err
		}
		if err := c.drainQuiet(c.cfg.BurstPoll); err != nil {
			return err
		}
	}

	if err := c.finish(); err != nil {
		return err
	}

	c.flushCarry()
	if c.cfg.MarkEnd {
		c.emit(nil)
	}
	return nil
}

// finish waits for the program to exit within the grace period, killing it
// otherwise, and captures whatever output is still buffered.
func (c *capture) finish() error {
	deadline := time.Now().Add(c.cfg.ExitGrace)
	for !c.eos && !c.exited() {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if _, err := c.read(min(remaining, c.cfg.Poll)); err != nil {
			return err
		}
	}

	switch err := c.waitForExit(deadline); {
	case err == nil, errors.Is(err, ptysession.ErrSessionClosed):
	case c.ctx.Err() != nil && errors.Is(err, c.ctx.Err()):
		return err
	case errors.Is(err, ptysession.ErrTimeout):
		c.logger.Info("program did not exit in time, terminating", "grace", c.cfg.ExitGrace)
		if err := c.proc.Terminate(true); err != nil {
			return fmt.Errorf("failed to terminate program: %w", err)
		}
		c.forced = true
	default:
		return fmt.Errorf("failed waiting for exit: %w", err)
	}

	return c.drainQuiet(c.cfg.Poll)
}

// waitForExit waits for the program until deadline in Poll sized slices,
// returning the context's error as soon as it is cancelled.
func (c *capture) waitForExit(deadline time.Time) error {
	for {
		err := c.proc.WaitForExit(min(max(time.Until(deadline), 0), c.cfg.Poll))
		if !errors.Is(err, ptysession.ErrTimeout) || !time.Now().Before(deadline) {
			return err
		}
		if ctxErr := c.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

func (c *capture) exited() bool {
	return c.proc.WaitForExit(0) == nil
}

// read performs one bounded read and reports whether output was captured.
// Timeouts are routine; end of stream stops further reads.
func (c *capture) read(timeout time.Duration) (bool, error) {
	if c.eos {
		return false, nil
	}
	b, err := c.proc.ReadNonblocking(c.cfg.ReadSize, timeout)
	if len(b) > 0 {
		c.append(b)
	}
	switch {
	case err == nil, errors.Is(err, ptysession.ErrTimeout):
	case errors.Is(err, ptysession.ErrEndOfStream), errors.Is(err, ptysession.ErrSessionClosed):
		c.eos = true
	default:
		return false, fmt.Errorf("failed to read output: %w", err)
	}
	return len(b) > 0, nil
}

// drainFor captures output as it arrives until d has elapsed.
func (c *capture) drainFor(d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if c.eos {
			return c.sleep(remaining)
		}
		if _, err := c.read(min(remaining, c.cfg.Poll)); err != nil {
			return err
		}
	}
}

// drainQuiet captures output until a read window passes without any. The
// first window is first; once output flows the window shrinks to BurstPoll
// so closely spaced frames become separate events. The whole drain is
// bounded by first plus Poll so a program that never pauses cannot stall
// the script.
func (c *capture) drainQuiet(first time.Duration) error {
	if first <= 0 {
		first = c.cfg.BurstPoll
	}
	limit := time.Now().Add(first + c.cfg.Poll)
	window := first
	for !c.eos && time.Now().Before(limit) {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		got, err := c.read(min(window, c.cfg.Poll))
		if err != nil {
			return err
		}
		if !got {
			return nil
		}
		window = c.cfg.BurstPoll
	}
	return nil
}

func (c *capture) sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *capture) append(b []byte) {
	data := b
	if len(c.carry) > 0 {
		data = append(c.carry, b...)
		c.carry = nil
	}
	complete, rest := splitIncomplete(data)
	if len(rest) > 0 {
		c.carry = bytes.Clone(rest)
	}
	if len(complete) > 0 {
		c.emit(bytes.Clone(complete))
	}
}

func (c *capture) flushCarry() {
	if len(c.carry) > 0 {
		c.emit(c.carry)
		c.carry = nil
	}
}

// emit appends an output event stamped with the current elapsed time.
func (c *capture) emit(data []byte) {
	t := time.Since(c.start)
	if n := len(c.events); n > 0 && t < c.events[n-1].Time {
		t = c.events[n-1].Time
	}
	c.events = append(c.events, asciicast.Event{Time: t, Kind: asciicast.Output, Data: data})
}

// splitIncomplete separates a trailing, not yet complete UTF-8 sequence from
// b. Invalid bytes are never held back.
func splitIncomplete(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-(utf8.UTFMax-1); i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}
