// Package command implements the castrec command line: each subcommand is a
// Command registered with a Registry and dispatched by cmd/castrec.
package command

import (
	"flag"
	"fmt"
	"io"
)

// Command is one castrec subcommand.
type Command interface {
	Name() string
	Description() string
	// Usage is the synopsis shown by help, without the program name.
	Usage() string
	// SetupFlags registers the command's flags. It is also called on a
	// throwaway FlagSet by help to list them.
	SetupFlags(fs *flag.FlagSet)
	// Execute runs the command with the arguments left after flag parsing.
	Execute(args []string, stdout, stderr io.Writer) error
}

// BaseCommand carries the descriptive half of a Command.
type BaseCommand struct {
	name        string
	description string
	usage       string
}

// NewBaseCommand creates a new BaseCommand.
func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{
		name:        name,
		description: description,
		usage:       usage,
	}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags registers nothing.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}

// noArgs rejects positional arguments for commands that take none.
func noArgs(args []string, stderr io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
	return fmt.Errorf("unexpected arguments")
}
