package recorder

import (
	"fmt"
	"maps"
	"time"

	"github.com/joeycumines/castrec/internal/asciicast"
)

// Config holds the timing knobs of the capture protocol. The defaults were
// tuned empirically against small TUI demos; all of them can be overridden
// from the configuration file.
type Config struct {
	// BootstrapWindow is how long output is captured after spawn before the
	// first action runs, so the program's first frame is recorded.
	BootstrapWindow time.Duration
	// BootstrapPoll is the initial quiet-drain window that follows the
	// bootstrap window.
	BootstrapPoll time.Duration
	// Poll caps each individual read so cancellation is noticed promptly,
	// and is the quiet-drain window once the program has exited.
	Poll time.Duration
	// BurstPoll is the shrunken window used once output starts flowing, so
	// closely spaced frames are captured as separate events.
	BurstPoll time.Duration
	// SettleWindow is captured right after a payload is sent.
	SettleWindow time.Duration
	// ExitGrace is how long the program gets to exit after the script
	// completes before it is forcibly terminated.
	ExitGrace time.Duration
	// TerminateGrace is how long a non-forced termination waits between
	// SIGTERM and SIGKILL.
	TerminateGrace time.Duration
	// ReadSize is the maximum number of bytes taken per read.
	ReadSize int
	// Env is written to the recording header. Nil uses asciicast.DefaultEnv.
	Env map[string]string
	// MarkEnd appends an empty output event when recording stops, so
	// renderers hold the last frame for the full scripted duration.
	MarkEnd bool
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		BootstrapWindow: 100 * time.Millisecond,
		BootstrapPoll:   50 * time.Millisecond,
		Poll:            100 * time.Millisecond,
		BurstPoll:       5 * time.Millisecond,
		SettleWindow:    50 * time.Millisecond,
		ExitGrace:       3 * time.Second,
		TerminateGrace:  500 * time.Millisecond,
		ReadSize:        16384,
		Env:             asciicast.DefaultEnv(),
		MarkEnd:         true,
	}
}

// Validate rejects values that would make the capture loop misbehave.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"bootstrap-window": c.BootstrapWindow,
		"bootstrap-poll":   c.BootstrapPoll,
		"settle-window":    c.SettleWindow,
		"exit-grace":       c.ExitGrace,
		"terminate-grace":  c.TerminateGrace,
	} {
		if d < 0 {
			return fmt.Errorf("recorder: %s must not be negative: %v", name, d)
		}
	}
	if c.Poll <= 0 {
		return fmt.Errorf("recorder: poll must be positive: %v", c.Poll)
	}
	if c.BurstPoll <= 0 {
		return fmt.Errorf("recorder: burst-poll must be positive: %v", c.BurstPoll)
	}
	if c.ReadSize <= 0 {
		return fmt.Errorf("recorder: read-size must be positive: %d", c.ReadSize)
	}
	return nil
}

func (c Config) env() map[string]string {
	if c.Env == nil {
		return asciicast.DefaultEnv()
	}
	return maps.Clone(c.Env)
}
