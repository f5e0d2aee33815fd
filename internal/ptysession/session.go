// Package ptysession runs a single program attached to a pseudo-terminal.
//
// A [Session] is owned by one goroutine: none of its methods may be called
// concurrently. Output is pumped by an internal reader goroutine into a
// channel, so [Session.ReadNonblocking] returns the instant a chunk arrives
// instead of on the next poll tick. Exit is observed by an internal waiter
// goroutine.
//
// The child is started as the leader of a new session and process group, so
// [Session.Terminate] signals the whole group and also reaches grandchildren
// that still hold the terminal open.
package ptysession

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Session is a program running inside a pseudo-terminal.
type Session struct {
	cmd    *exec.Cmd
	ptm    *os.File
	opts   options
	logger *slog.Logger

	// chunks is closed by the reader goroutine after readErr is set.
	chunks  chan []byte
	readErr error
	pending []byte
	eos     bool

	// exited is closed by the waiter goroutine after waitErr is set.
	exited  chan struct{}
	waitErr error

	terminated bool
	closed     bool
}

// Start spawns path attached to a new pseudo-terminal. Any failure to start
// the program is reported as a *SpawnError.
func Start(path string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.width <= 0 || o.height <= 0 {
		return nil, &SpawnError{Path: path, Err: fmt.Errorf("invalid terminal size %dx%d", o.width, o.height)}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(path, o.args...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		fmt.Sprintf("COLUMNS=%d", o.width),
		fmt.Sprintf("LINES=%d", o.height),
	)
	cmd.Env = append(cmd.Env, o.env...)
	cmd.Dir = o.dir

	ws := &pty.Winsize{Rows: uint16(o.height), Cols: uint16(o.width)}
	// StartWithSize makes the child a session leader with the terminal as
	// its controlling TTY, and closes our copy of the slave side.
	ptm, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, &SpawnError{Path: path, Err: err}
	}

	s := &Session{
		cmd:    cmd,
		ptm:    ptm,
		opts:   o,
		logger: logger,
		chunks: make(chan []byte, chunkQueueSize),
		exited: make(chan struct{}),
	}
	go s.readLoop()
	go s.waitLoop()

	logger.Debug("spawned pty session", "path", path, "pid", cmd.Process.Pid, "cols", o.width, "rows", o.height)
	return s, nil
}

// Pid returns the process id of the child.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Size returns the terminal dimensions (columns x rows).
func (s *Session) Size() (width, height int) {
	return s.opts.width, s.opts.height
}

// ReadNonblocking returns up to maxBytes of output. It waits at most timeout
// for output to arrive; a zero or negative timeout only returns what is
// already buffered. It returns ErrTimeout when nothing arrived in the window
// and ErrEndOfStream once the child closed the terminal and every buffered
// byte has been returned. Output buffered before exit or termination is
// still readable; only Close ends reading.
func (s *Session) ReadNonblocking(maxBytes int, timeout time.Duration) ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if maxBytes <= 0 {
		maxBytes = readBufferSize
	}
	if len(s.pending) > 0 {
		return s.take(maxBytes), nil
	}
	if s.eos {
		return nil, ErrEndOfStream
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case chunk, ok := <-s.chunks:
		return s.receive(chunk, ok, maxBytes)
	default:
	}
	if expired == nil {
		return nil, ErrTimeout
	}
	select {
	case chunk, ok := <-s.chunks:
		return s.receive(chunk, ok, maxBytes)
	case <-expired:
		return nil, ErrTimeout
	}
}

func (s *Session) receive(chunk []byte, ok bool, maxBytes int) ([]byte, error) {
	if !ok {
		s.eos = true
		if s.readErr != nil && !isEndOfInput(s.readErr) {
			s.logger.Debug("pty read ended", "pid", s.Pid(), "error", s.readErr)
		}
		return nil, ErrEndOfStream
	}
	s.pending = chunk
	return s.take(maxBytes), nil
}

func (s *Session) take(maxBytes int) []byte {
	n := min(maxBytes, len(s.pending))
	out := s.pending[:n:n]
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return out
}

// Send writes b to the terminal as if typed. Echo is up to the child.
// It returns ErrSessionClosed once the child has exited or was terminated.
func (s *Session) Send(b []byte) error {
	if s.closed || s.terminated || s.hasExited() {
		return ErrSessionClosed
	}
	if _, err := s.ptm.Write(b); err != nil {
		if s.hasExited() || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO) {
			return ErrSessionClosed
		}
		return fmt.Errorf("failed to write input: %w", err)
	}
	return nil
}

// WaitForExit blocks until the child exits or timeout elapses, in which case
// it returns ErrTimeout. It returns nil immediately if the child already
// exited.
func (s *Session) WaitForExit(timeout time.Duration) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.hasExited() {
		return nil
	}
	if timeout <= 0 {
		return ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.exited:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}

// Exited reports whether the child has exited.
func (s *Session) Exited() bool {
	return s.hasExited()
}

// ExitCode returns the exit code of the child, or -1 if it is still running
// or was killed by a signal.
func (s *Session) ExitCode() int {
	if !s.hasExited() {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// Terminate stops the child. Without force it sends SIGTERM and escalates to
// SIGKILL after the terminate grace period. The child is guaranteed to no
// longer be running when Terminate returns nil. Terminating an exited child
// is a no-op.
func (s *Session) Terminate(force bool) error {
	if s.hasExited() {
		s.terminated = true
		return nil
	}

	if !force {
		if err := signalGroup(s.cmd.Process, syscall.SIGTERM); err != nil {
			s.logger.Debug("failed to send SIGTERM", "pid", s.Pid(), "error", err)
		}
		if s.waitExited(s.opts.terminateGrace) {
			s.terminated = true
			return nil
		}
		s.logger.Debug("child ignored SIGTERM, escalating", "pid", s.Pid())
	}

	if err := signalGroup(s.cmd.Process, syscall.SIGKILL); err != nil {
		s.logger.Debug("failed to send SIGKILL", "pid", s.Pid(), "error", err)
	}
	if !s.waitExited(killWait) {
		return fmt.Errorf("process %d still running %v after SIGKILL", s.Pid(), killWait)
	}
	s.terminated = true
	return nil
}

// Close terminates the child if it is still running and releases the
// terminal. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}

	var errs []error
	if err := s.Terminate(true); err != nil {
		errs = append(errs, err)
	}
	s.closed = true
	if err := s.ptm.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close ptm: %w", err))
	}
	// unblock the reader goroutine if it is parked on a full queue
	go func() {
		for range s.chunks {
		}
	}()
	s.pending = nil

	return errors.Join(errs...)
}

// readLoop continuously reads output from the PTY master.
func (s *Session) readLoop() {
	defer close(s.chunks)
	for {
		buf := make([]byte, readBufferSize)
		n, err := s.ptm.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

func (s *Session) waitLoop() {
	s.waitErr = s.cmd.Wait()
	close(s.exited)
	s.logger.Debug("pty session exited", "pid", s.Pid(), "error", s.waitErr)
}

func (s *Session) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

func (s *Session) waitExited(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	}
}

// isEndOfInput reports whether err is how the master side signals that the
// slave side was closed. Linux reports EIO rather than EOF.
func isEndOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)
}
