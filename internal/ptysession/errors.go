package ptysession

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by ReadNonblocking and WaitForExit when nothing
	// happened within the requested window. It is routine, not a failure.
	ErrTimeout = errors.New("ptysession: timeout")

	// ErrEndOfStream is returned by ReadNonblocking once the child closed its
	// side of the terminal and all buffered output has been consumed.
	ErrEndOfStream = errors.New("ptysession: end of stream")

	// ErrSessionClosed is returned by operations attempted after the child
	// exited, was terminated, or the session was closed.
	ErrSessionClosed = errors.New("ptysession: session closed")
)

// SpawnError reports that the target program could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
