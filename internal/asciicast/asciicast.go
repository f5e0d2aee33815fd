// Package asciicast reads and writes terminal recordings in the asciicast v2
// format: a JSON header line followed by one JSON array per event.
//
//	{"version":2,"width":60,"height":15,"timestamp":1700000000,"env":{"SHELL":"/bin/bash","TERM":"xterm-256color"}}
//	[0.100512,"o","\u001b[?25lready\r\n"]
//
// Event times are seconds since the start of the session, rounded to six
// decimal places. Event data that is not valid UTF-8 is written with each
// maximal ill-formed subsequence replaced by one U+FFFD, as done by the UTF-8
// decoder of golang.org/x/text/encoding/unicode.
package asciicast

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Version is the only format version this package reads and writes.
const Version = 2

// EventKind is the second element of an event line.
type EventKind string

const (
	// Output is data written by the program to the terminal.
	Output EventKind = "o"
	// Input is data typed into the terminal. Recordings produced by this
	// module never contain input events; the reader tolerates them.
	Input EventKind = "i"
)

// DefaultEnv is the header environment used when none is configured.
func DefaultEnv() map[string]string {
	return map[string]string{
		"SHELL": "/bin/bash",
		"TERM":  "xterm-256color",
	}
}

// Header is the first line of a recording.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Env       map[string]string `json:"env"`
}

// NewHeader returns a version 2 header for a session that started at start.
// A nil env is replaced by DefaultEnv.
func NewHeader(width, height int, start time.Time, env map[string]string) Header {
	if env == nil {
		env = DefaultEnv()
	}
	return Header{
		Version:   Version,
		Width:     width,
		Height:    height,
		Timestamp: start.Unix(),
		Env:       maps.Clone(env),
	}
}

// Validate checks the fields every renderer relies on.
func (h Header) Validate() error {
	if h.Version != Version {
		return fmt.Errorf("unsupported asciicast version %d", h.Version)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", h.Width, h.Height)
	}
	if h.Timestamp < 0 {
		return fmt.Errorf("invalid timestamp %d", h.Timestamp)
	}
	return nil
}

// Event is one captured fragment. Time is relative to the session start.
type Event struct {
	Time time.Duration
	Kind EventKind
	Data []byte
}

// Recording is a complete session: header plus events in time order.
type Recording struct {
	Header Header
	Events []Event
}

// Duration is the time of the last event.
func (r *Recording) Duration() time.Duration {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].Time
}

// Validate checks the header and that event times never go backwards.
func (r *Recording) Validate() error {
	if err := r.Header.Validate(); err != nil {
		return err
	}
	var last time.Duration
	for i, e := range r.Events {
		if e.Time < 0 {
			return fmt.Errorf("event %d: negative time %v", i, e.Time)
		}
		if e.Time < last {
			return fmt.Errorf("event %d: time %v before previous %v", i, e.Time, last)
		}
		last = e.Time
	}
	return nil
}

// ErrDecreasingTime is returned when an event would go back in time.
var ErrDecreasingTime = errors.New("asciicast: event time decreases")

// DecodeText converts raw terminal bytes to text. Invalid UTF-8 sequences
// are replaced with U+FFFD rather than failing.
func DecodeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		// the UTF-8 decoder substitutes instead of failing; keep a fallback
		return string([]rune(string(b)))
	}
	return string(out)
}
