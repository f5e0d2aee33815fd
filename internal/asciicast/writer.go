package asciicast

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joeycumines/castrec/internal/storage"
)

// timePrecision is the number of decimal places kept for event times.
const timePrecision = 6

// Writer streams a recording: the header on construction, then one line per
// event. Each line is independently parseable.
type Writer struct {
	enc  *json.Encoder
	last time.Duration
}

// NewWriter validates h and writes it as the first line of w.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if h.Env == nil {
		h.Env = map[string]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// WriteEvent appends e. Times must be non-decreasing and only output events
// are accepted.
func (w *Writer) WriteEvent(e Event) error {
	if e.Kind == "" {
		e.Kind = Output
	}
	if e.Kind != Output {
		return fmt.Errorf("unsupported event kind %q", e.Kind)
	}
	if e.Time < w.last || e.Time < 0 {
		return fmt.Errorf("%w: %v after %v", ErrDecreasingTime, e.Time, w.last)
	}
	w.last = e.Time
	line := []any{FormatTime(e.Time), string(e.Kind), DecodeText(e.Data)}
	if err := w.enc.Encode(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Encode writes the whole recording to w.
func Encode(w io.Writer, r *Recording) error {
	cw, err := NewWriter(w, r.Header)
	if err != nil {
		return err
	}
	for i, e := range r.Events {
		if err := cw.WriteEvent(e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile publishes r at path atomically: either the complete recording
// appears at path or path is left as it was.
func WriteFile(path string, r *Recording) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid recording: %w", err)
	}
	return storage.AtomicWrite(path, 0644, func(w io.Writer) error {
		return Encode(w, r)
	})
}

// FormatTime renders d in seconds with at most six decimal places, without
// trailing zeros, matching what common asciicast producers emit.
func FormatTime(d time.Duration) json.Number {
	s := math.Round(d.Seconds()*1e6) / 1e6
	return json.Number(strconv.FormatFloat(s, 'f', -1, 64))
}

// ReadFile parses the recording stored at path.
func ReadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
