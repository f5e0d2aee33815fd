package command

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joeycumines/castrec/internal/config"
)

// ListCommand prints the known targets.
type ListCommand struct {
	*BaseCommand
	config  *config.Config
	verbose bool
}

// NewListCommand creates a new list command.
func NewListCommand(cfg *config.Config) *ListCommand {
	return &ListCommand{
		BaseCommand: NewBaseCommand(
			"list",
			"List the built-in and configured targets",
			"list [options] [target...]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the list command.
func (c *ListCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "Also print each target's script")
}

var listColumns = []string{"name", "size", "actions", "scripted", "source"}

// Execute prints one row per target, in registration order.
func (c *ListCommand) Execute(args []string, stdout, stderr io.Writer) error {
	reg, err := loadTargets(c.config)
	if err != nil {
		return err
	}
	selected, unknown := reg.Select(args)
	if len(unknown) > 0 {
		_, _ = fmt.Fprintf(stderr, "Unknown target(s): %s\n", strings.Join(unknown, ", "))
		return fmt.Errorf("unknown targets: %v", unknown)
	}

	title := cases.Title(language.English)
	headings := make([]string, len(listColumns))
	for i, col := range listColumns {
		headings[i] = title.String(col)
	}

	tw := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headings, "\t"))
	for _, t := range selected {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\n", t.Name, t.Size, t.Script.Len(), t.Script.TotalDelay(), t.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if c.verbose {
		for _, t := range selected {
			_, _ = fmt.Fprintf(stdout, "\n%s:\n", t.Name)
			for i, a := range t.Script.All() {
				_, _ = fmt.Fprintf(stdout, "  %3d  %s\n", i, a)
			}
		}
	}
	return nil
}
