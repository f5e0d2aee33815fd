package script

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ParseDelay parses a delay given either as fractional seconds ("0.3") or
// as a Go duration ("300ms").
func ParseDelay(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		d := Seconds(f)
		if d < 0 {
			return 0, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("invalid delay %q", s)}
		}
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("invalid delay %q", s)}
	}
	if d < 0 {
		return 0, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("negative delay %q", s)}
	}
	return d, nil
}

// ParseAction parses "DELAY [TOKEN...]". Tokens are split with shell quoting
// rules; a token naming a key (see LookupKey) sends that key, anything else
// is sent literally. No tokens means observe only.
func ParseAction(line string) (Action, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return Action{}, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("action %q: %v", line, err)}
	}
	if len(words) == 0 {
		return Action{}, &ConfigurationError{Index: -1, Reason: "empty action"}
	}
	delay, err := ParseDelay(words[0])
	if err != nil {
		return Action{}, err
	}
	a := Action{Delay: delay}
	if len(words) > 1 {
		var payload strings.Builder
		for _, w := range words[1:] {
			if seq, ok := LookupKey(w); ok {
				payload.WriteString(seq)
			} else {
				payload.WriteString(w)
			}
		}
		a.Payload = []byte(payload.String())
	}
	return a, nil
}

// ParseType parses "DELAY TEXT" into one action per rune of TEXT. TEXT is
// the remainder of the line, taken verbatim.
func ParseType(line string) ([]Action, error) {
	delayStr, text, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || text == "" {
		return nil, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("type %q: want DELAY TEXT", line)}
	}
	delay, err := ParseDelay(delayStr)
	if err != nil {
		return nil, err
	}
	return Type(delay, text), nil
}

// ParseRepeat parses "N DELAY [TOKEN...]" into N copies of the action.
func ParseRepeat(line string) ([]Action, error) {
	countStr, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return nil, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("repeat %q: want N DELAY [KEYS...]", line)}
	}
	n, err := strconv.Atoi(countStr)
	if err != nil || n < 0 {
		return nil, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("repeat %q: invalid count", line)}
	}
	a, err := ParseAction(rest)
	if err != nil {
		return nil, err
	}
	return Repeat(n, a), nil
}
