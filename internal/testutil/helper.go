package testutil

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"
)

// HelperEnv marks a re-executed test binary as a helper program.
const HelperEnv = "GO_TEST_MODE=helper"

// Helper program names understood by RunHelperIfRequested.
const (
	// HelperReadyQuit prints "ready" immediately and exits after any input.
	HelperReadyQuit = "ready-quit"
	// HelperStubborn prints a banner, ignores input and SIGTERM, and never exits.
	HelperStubborn = "stubborn"
	// HelperTicker prints "tick N" lines with a fixed gap and exits.
	// Optional args: count (default 3), gap in milliseconds (default 100).
	HelperTicker = "ticker"
	// HelperEcho echoes every input byte back as "<c>" until it reads 'q'.
	HelperEcho = "echo"
	// HelperInvalidUTF8 writes bytes that are not valid UTF-8 and exits.
	HelperInvalidUTF8 = "invalid-utf8"
	// HelperSilent produces no output and exits after any input.
	HelperSilent = "silent"
)

// HelperCommand returns the executable, arguments and extra environment that
// re-execute the running test binary as the named helper program.
func HelperCommand(name string, args ...string) (path string, argv []string, env []string) {
	argv = append([]string{"-test.run=^$", "--", name}, args...)
	return os.Args[0], argv, []string{HelperEnv}
}

// RunHelperIfRequested must be called first thing from TestMain. When the
// process was started by HelperCommand it runs the helper and exits.
func RunHelperIfRequested() {
	if os.Getenv("GO_TEST_MODE") != "helper" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "helper: missing program name")
		os.Exit(2)
	}
	os.Exit(runHelper(args[0], args[1:]))
}

func runHelper(name string, args []string) int {
	switch name {
	case HelperReadyQuit:
		restore := rawStdin()
		defer restore()
		fmt.Print("ready\r\n")
		buf := make([]byte, 1)
		_, _ = os.Stdin.Read(buf)
		fmt.Print("bye\r\n")
		return 0

	case HelperStubborn:
		signal.Ignore(syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
		_ = rawStdin()
		fmt.Print("stubborn\r\n")
		go func() {
			buf := make([]byte, 64)
			for {
				if _, err := os.Stdin.Read(buf); err != nil {
					return
				}
			}
		}()
		for {
			time.Sleep(time.Hour)
		}

	case HelperTicker:
		count, gap := 3, 100
		if len(args) > 0 {
			count, _ = strconv.Atoi(args[0])
		}
		if len(args) > 1 {
			gap, _ = strconv.Atoi(args[1])
		}
		restore := rawStdin()
		defer restore()
		for i := 1; i <= count; i++ {
			fmt.Printf("tick %d\r\n", i)
			time.Sleep(time.Duration(gap) * time.Millisecond)
		}
		return 0

	case HelperEcho:
		restore := rawStdin()
		defer restore()
		fmt.Print("echo ready\r\n")
		buf := make([]byte, 1)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				return 1
			}
			fmt.Printf("<%c>", buf[0])
			if buf[0] == 'q' {
				fmt.Print("\r\n")
				return 0
			}
		}

	case HelperInvalidUTF8:
		restore := rawStdin()
		defer restore()
		_, _ = os.Stdout.Write([]byte("\xff\xfe ok \xe2\x9c\x93\r\n"))
		return 0

	case HelperSilent:
		restore := rawStdin()
		defer restore()
		buf := make([]byte, 1)
		_, _ = os.Stdin.Read(buf)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "helper: unknown program %q\n", name)
		return 2
	}
}

// rawStdin puts the controlling terminal into raw mode so single keystrokes
// are delivered without a trailing newline and "\r\n" is written as is.
func rawStdin() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, state) }
}
