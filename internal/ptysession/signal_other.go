//go:build !unix

package ptysession

import (
	"os"
	"syscall"
)

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	return p.Signal(sig)
}
