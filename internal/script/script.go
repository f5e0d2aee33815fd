// Package script describes scripted terminal interactions: an ordered list
// of actions, each waiting for a delay and then optionally typing a payload.
package script

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"time"
)

// Action is one scripted step. Delay elapses before acting; a nil Payload
// means the step only observes output.
type Action struct {
	Delay   time.Duration
	Payload []byte
}

// IsNoop reports whether the action neither waits nor sends anything.
func (a Action) IsNoop() bool {
	return a.Delay == 0 && a.Payload == nil
}

func (a Action) String() string {
	if a.Payload == nil {
		return fmt.Sprintf("wait %v", a.Delay)
	}
	return fmt.Sprintf("wait %v, send %q", a.Delay, a.Payload)
}

// ConfigurationError reports a malformed script. It is detected before any
// program is spawned.
type ConfigurationError struct {
	// Index is the offending action, or -1 if not tied to one.
	Index  int
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return "invalid script: " + e.Reason
	}
	return fmt.Sprintf("invalid script: action %d: %s", e.Index, e.Reason)
}

// Script is an immutable, validated sequence of actions.
type Script struct {
	actions []Action
}

// New validates actions and returns a Script holding a private copy of them.
func New(actions ...Action) (*Script, error) {
	copied := make([]Action, len(actions))
	for i, a := range actions {
		if a.Delay < 0 {
			return nil, &ConfigurationError{Index: i, Reason: fmt.Sprintf("negative delay %v", a.Delay)}
		}
		copied[i] = Action{Delay: a.Delay, Payload: slices.Clone(a.Payload)}
	}
	return &Script{actions: copied}, nil
}

// MustNew is like New but panics on invalid input. Intended for static
// script tables.
func MustNew(actions ...Action) *Script {
	s, err := New(actions...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of actions. A nil Script is empty.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.actions)
}

// All iterates over the actions in order. Payloads must not be modified.
func (s *Script) All() iter.Seq2[int, Action] {
	return func(yield func(int, Action) bool) {
		if s == nil {
			return
		}
		for i, a := range s.actions {
			if !yield(i, a) {
				return
			}
		}
	}
}

// TotalDelay is the sum of all action delays.
func (s *Script) TotalDelay() time.Duration {
	var total time.Duration
	for _, a := range s.All() {
		total += a.Delay
	}
	return total
}

// Seconds converts a delay in (fractional) seconds to a Duration. Negative
// and non-finite inputs are passed through as negative durations so that
// New rejects them.
func Seconds(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return -1
	}
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Wait is an observe-only action.
func Wait(delay time.Duration) Action {
	return Action{Delay: delay}
}

// Send waits for delay, then types keys.
func Send(delay time.Duration, keys string) Action {
	return Action{Delay: delay, Payload: []byte(keys)}
}

// Type expands text into one Send per rune, each preceded by delay.
func Type(delay time.Duration, text string) []Action {
	actions := make([]Action, 0, len(text))
	for _, r := range text {
		actions = append(actions, Send(delay, string(r)))
	}
	return actions
}

// Repeat returns n copies of a.
func Repeat(n int, a Action) []Action {
	actions := make([]Action, 0, max(n, 0))
	for range n {
		actions = append(actions, a)
	}
	return actions
}

// Concat flattens action groups, for building scripts from Type and Repeat.
func Concat(groups ...[]Action) []Action {
	return slices.Concat(groups...)
}
