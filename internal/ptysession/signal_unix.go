//go:build unix

package ptysession

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalGroup delivers sig to the child's process group. The child leads its
// own group (pty.Start sets Setsid), so this also reaches grandchildren.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		if err != nil {
			// group already gone; the leader may still need reaping
			_ = p.Signal(sig)
		}
		return nil
	}
	return p.Signal(sig)
}
