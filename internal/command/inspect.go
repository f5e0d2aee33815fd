package command

import (
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/uniseg"
	"golang.org/x/term"

	"github.com/joeycumines/castrec/internal/asciicast"
)

// InspectCommand summarizes recordings.
type InspectCommand struct {
	*BaseCommand
	events int
	width  int
}

// NewInspectCommand creates a new inspect command.
func NewInspectCommand() *InspectCommand {
	return &InspectCommand{
		BaseCommand: NewBaseCommand(
			"inspect",
			"Summarize asciicast recordings",
			"inspect [options] <file.cast>...",
		),
	}
}

// SetupFlags configures the flags for the inspect command.
func (c *InspectCommand) SetupFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.events, "events", 20, "Number of events to preview (0 for all, -1 for none)")
	fs.IntVar(&c.width, "width", 0, "Preview width in columns (default: terminal width, or 80)")
}

// Execute prints the header and an event preview of each file.
func (c *InspectCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "no recordings given")
		return fmt.Errorf("missing file argument")
	}
	width := c.width
	if width <= 0 {
		width = 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	for i, path := range args {
		if i > 0 {
			_, _ = fmt.Fprintln(stdout)
		}
		rec, err := asciicast.ReadFile(path)
		if err != nil {
			return err
		}
		c.summarize(stdout, path, rec, width)
	}
	return nil
}

func (c *InspectCommand) summarize(w io.Writer, path string, rec *asciicast.Recording, width int) {
	var total uint64
	for _, e := range rec.Events {
		total += uint64(len(e.Data))
	}
	h := rec.Header

	_, _ = fmt.Fprintf(w, "%s\n", path)
	_, _ = fmt.Fprintf(w, "  version:  %d\n", h.Version)
	_, _ = fmt.Fprintf(w, "  size:     %dx%d\n", h.Width, h.Height)
	_, _ = fmt.Fprintf(w, "  recorded: %s (%s)\n",
		time.Unix(h.Timestamp, 0).UTC().Format(time.RFC3339), humanize.Time(time.Unix(h.Timestamp, 0)))
	for _, k := range slices.Sorted(maps.Keys(h.Env)) {
		_, _ = fmt.Fprintf(w, "  env:      %s=%s\n", k, h.Env[k])
	}
	_, _ = fmt.Fprintf(w, "  events:   %s, %s of output\n", humanize.Comma(int64(len(rec.Events))), humanize.Bytes(total))
	_, _ = fmt.Fprintf(w, "  duration: %v\n", rec.Duration())

	if c.events < 0 {
		return
	}
	n := len(rec.Events)
	if c.events > 0 {
		n = min(n, c.events)
	}
	for _, e := range rec.Events[:n] {
		ts := string(asciicast.FormatTime(e.Time))
		prefix := fmt.Sprintf("  %10s %s ", ts, e.Kind)
		_, _ = fmt.Fprintf(w, "%s%s\n", prefix, preview(e.Data, width-len(prefix)))
	}
	if n < len(rec.Events) {
		_, _ = fmt.Fprintf(w, "  ... %d more\n", len(rec.Events)-n)
	}
}

// preview renders data as a quoted, escaped string cut to at most width
// display columns. Cuts happen on grapheme cluster boundaries.
func preview(data []byte, width int) string {
	quoted := strconv.QuoteToGraphic(asciicast.DecodeText(data))
	if uniseg.StringWidth(quoted) <= width {
		return quoted
	}
	const ellipsis = "…"
	limit := max(width-1, 0)

	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(quoted)
	for g.Next() {
		if used+g.Width() > limit {
			break
		}
		used += g.Width()
		b.WriteString(g.Str())
	}
	b.WriteString(ellipsis)
	return b.String()
}
