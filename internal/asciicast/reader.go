package asciicast

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// maxLineSize bounds a single event line. A 16 KiB chunk of control bytes
// escapes to roughly 100 KiB of JSON.
const maxLineSize = 16 << 20

// Decode parses a recording. Blank lines are ignored; anything else that is
// not a header or an event is an error.
func Decode(r io.Reader) (*Recording, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	rec := &Recording{}
	lineNo := 0
	haveHeader := false
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !haveHeader {
			if err := json.Unmarshal(line, &rec.Header); err != nil {
				return nil, fmt.Errorf("line %d: invalid header: %w", lineNo, err)
			}
			if err := rec.Header.Validate(); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			haveHeader = true
			continue
		}
		e, err := parseEvent(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rec.Events = append(rec.Events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading recording: %w", err)
	}
	if !haveHeader {
		return nil, errors.New("missing header")
	}
	return rec, nil
}

func parseEvent(line []byte) (Event, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Event{}, fmt.Errorf("invalid event: %w", err)
	}
	if len(fields) != 3 {
		return Event{}, fmt.Errorf("invalid event: want 3 elements, got %d", len(fields))
	}
	var (
		seconds float64
		kind    string
		data    string
	)
	if err := json.Unmarshal(fields[0], &seconds); err != nil {
		return Event{}, fmt.Errorf("invalid event time: %w", err)
	}
	if seconds < 0 || math.IsNaN(seconds) {
		return Event{}, fmt.Errorf("invalid event time %v", seconds)
	}
	if err := json.Unmarshal(fields[1], &kind); err != nil {
		return Event{}, fmt.Errorf("invalid event kind: %w", err)
	}
	if err := json.Unmarshal(fields[2], &data); err != nil {
		return Event{}, fmt.Errorf("invalid event data: %w", err)
	}
	return Event{
		Time: time.Duration(math.Round(seconds * float64(time.Second))),
		Kind: EventKind(kind),
		Data: []byte(data),
	}, nil
}
