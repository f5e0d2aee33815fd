//go:build unix

package ptysession

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/castrec/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunHelperIfRequested()
	os.Exit(m.Run())
}

// startHelper spawns the named helper program and closes it on cleanup.
func startHelper(t *testing.T, name string, opts ...Option) *Session {
	t.Helper()
	path, args, env := testutil.HelperCommand(name)
	opts = append([]Option{WithArgs(args...), WithEnv(env...)}, opts...)
	s, err := Start(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// readUntil drains output until it contains want, EOF, or the deadline.
func readUntil(t *testing.T, s *Session, want string, timeout time.Duration) string {
	t.Helper()
	var out strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b, err := s.ReadNonblocking(1024, 50*time.Millisecond)
		out.Write(b)
		if strings.Contains(out.String(), want) {
			return out.String()
		}
		if errors.Is(err, ErrEndOfStream) {
			break
		}
	}
	return out.String()
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func TestStart(t *testing.T) {
	t.Run("missing executable is a spawn error", func(t *testing.T) {
		s, err := Start("/non/existent/command")
		assert.Nil(t, s)
		var spawnErr *SpawnError
		require.ErrorAs(t, err, &spawnErr)
		assert.Equal(t, "/non/existent/command", spawnErr.Path)
	})

	t.Run("invalid size is a spawn error", func(t *testing.T) {
		_, err := Start("/bin/sh", WithSize(0, 10))
		var spawnErr *SpawnError
		assert.ErrorAs(t, err, &spawnErr)
	})

	t.Run("terminal size is applied", func(t *testing.T) {
		s, err := Start("/bin/sh", WithArgs("-c", "stty size"), WithSize(60, 15))
		require.NoError(t, err)
		defer s.Close()
		out := readUntil(t, s, "15 60", 3*time.Second)
		assert.Contains(t, out, "15 60")
		w, h := s.Size()
		assert.Equal(t, 60, w)
		assert.Equal(t, 15, h)
	})

	t.Run("environment and directory options", func(t *testing.T) {
		dir := t.TempDir()
		s, err := Start("/bin/sh",
			WithArgs("-c", `printf '%s|%s|%s\n' "$MY_VAR" "$TERM" "$PWD"`),
			WithEnv("MY_VAR=my_value"),
			WithDir(dir),
		)
		require.NoError(t, err)
		defer s.Close()
		out := readUntil(t, s, dir, 3*time.Second)
		assert.Contains(t, out, "my_value|xterm-256color|")
		assert.Contains(t, out, dir)
	})
}

func TestReadNonblocking(t *testing.T) {
	t.Run("timeout when idle", func(t *testing.T) {
		s := startHelper(t, testutil.HelperSilent)
		start := time.Now()
		b, err := s.ReadNonblocking(1024, 30*time.Millisecond)
		assert.Empty(t, b)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	})

	t.Run("zero timeout does not block", func(t *testing.T) {
		s := startHelper(t, testutil.HelperSilent)
		_, err := s.ReadNonblocking(1024, 0)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("respects max bytes", func(t *testing.T) {
		s := startHelper(t, testutil.HelperReadyQuit)
		var got []byte
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && !strings.Contains(string(got), "ready") {
			b, err := s.ReadNonblocking(2, 50*time.Millisecond)
			assert.LessOrEqual(t, len(b), 2)
			got = append(got, b...)
			if errors.Is(err, ErrEndOfStream) {
				break
			}
		}
		assert.Contains(t, string(got), "ready")
	})

	t.Run("end of stream after exit", func(t *testing.T) {
		path, args, env := testutil.HelperCommand(testutil.HelperTicker, "2", "10")
		s, err := Start(path, WithArgs(args...), WithEnv(env...))
		require.NoError(t, err)
		defer s.Close()

		var out strings.Builder
		var last error
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			b, err := s.ReadNonblocking(1024, 100*time.Millisecond)
			out.Write(b)
			last = err
			if errors.Is(err, ErrEndOfStream) {
				break
			}
		}
		assert.ErrorIs(t, last, ErrEndOfStream)
		assert.Contains(t, out.String(), "tick 1")
		assert.Contains(t, out.String(), "tick 2")

		_, err = s.ReadNonblocking(1024, 0)
		assert.ErrorIs(t, err, ErrEndOfStream)
	})
}

func TestSendAndWaitForExit(t *testing.T) {
	s := startHelper(t, testutil.HelperReadyQuit)
	require.Contains(t, readUntil(t, s, "ready", 3*time.Second), "ready")

	assert.ErrorIs(t, s.WaitForExit(20*time.Millisecond), ErrTimeout)
	require.NoError(t, s.Send([]byte("q")))
	require.NoError(t, s.WaitForExit(3*time.Second))
	assert.True(t, s.Exited())
	assert.Equal(t, 0, s.ExitCode())

	assert.ErrorIs(t, s.Send([]byte("x")), ErrSessionClosed)
	assert.NoError(t, s.WaitForExit(0), "waiting on an exited child returns immediately")
}

func TestEcho(t *testing.T) {
	s := startHelper(t, testutil.HelperEcho)
	require.Contains(t, readUntil(t, s, "echo ready", 3*time.Second), "echo ready")
	require.NoError(t, s.Send([]byte("ab")))
	assert.Contains(t, readUntil(t, s, "<a><b>", 3*time.Second), "<a><b>")
	require.NoError(t, s.Send([]byte("q")))
	assert.NoError(t, s.WaitForExit(3*time.Second))
}

func TestTerminate(t *testing.T) {
	t.Run("graceful escalates to kill", func(t *testing.T) {
		s := startHelper(t, testutil.HelperStubborn, WithTerminateGrace(50*time.Millisecond))
		require.Contains(t, readUntil(t, s, "stubborn", 3*time.Second), "stubborn")
		pid := s.Pid()

		require.NoError(t, s.Terminate(false))
		assert.True(t, s.Exited())
		assert.False(t, processAlive(pid))
		assert.ErrorIs(t, s.Send([]byte("q")), ErrSessionClosed)
	})

	t.Run("force", func(t *testing.T) {
		s := startHelper(t, testutil.HelperStubborn)
		require.NoError(t, s.Terminate(true))
		assert.True(t, s.Exited())
		assert.Equal(t, -1, s.ExitCode())
	})

	t.Run("idempotent after exit", func(t *testing.T) {
		s := startHelper(t, testutil.HelperReadyQuit)
		require.NoError(t, s.Send([]byte("q")))
		require.NoError(t, s.WaitForExit(3*time.Second))
		assert.NoError(t, s.Terminate(true))
		assert.NoError(t, s.Terminate(false))
	})

	t.Run("buffered output readable after termination", func(t *testing.T) {
		s := startHelper(t, testutil.HelperStubborn)
		// let the banner reach the master before killing
		time.Sleep(200 * time.Millisecond)
		require.NoError(t, s.Terminate(true))
		assert.Contains(t, readUntil(t, s, "stubborn", 2*time.Second), "stubborn")
	})
}

func TestClose(t *testing.T) {
	s := startHelper(t, testutil.HelperStubborn)
	pid := s.Pid()

	require.NoError(t, s.Close())
	assert.False(t, processAlive(pid), "close must not leak the child")
	assert.NoError(t, s.Close())

	_, err := s.ReadNonblocking(1024, 0)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Send([]byte("q")), ErrSessionClosed)
	assert.ErrorIs(t, s.WaitForExit(time.Millisecond), ErrSessionClosed)
}
