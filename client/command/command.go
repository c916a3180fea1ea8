package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

var ErrCommandNotFound = errors.New("command not found")

// Handler runs a command with the arguments left over after flag parsing.
type Handler interface {
	// Handle receives the context and the arguments left over from parsing.
	// The same arguments are then dispatched to a subcommand, if any.
	Handle(ctx context.Context, args []string) error
}

// HandlerFunc is a functional implementation of Handler.
type HandlerFunc func(ctx context.Context, args []string) error

// Handle implements Handler.
func (h HandlerFunc) Handle(ctx context.Context, args []string) error {
	return h(ctx, args)
}

// FlagRegistry registers command flags before parsing.
type FlagRegistry interface {
	// RegisterFlags adds the command's flags to flags.
	RegisterFlags(cmd *Command, flags *pflag.FlagSet)
}

// FlagRegistryFunc is a functional implementation of FlagRegistry.
type FlagRegistryFunc func(cmd *Command, flags *pflag.FlagSet)

// RegisterFlags implements FlagRegistry.
func (f FlagRegistryFunc) RegisterFlags(cmd *Command, flags *pflag.FlagSet) {
	f(cmd, flags)
}

// ArgsProcessor can rewrite arguments before flags are parsed, for example
// to insert a default subcommand.
type ArgsProcessor interface {
	// ProcessArgs returns the arguments to parse instead of args.
	ProcessArgs(c *Command, args []string) []string
}

// ArgsProcessorFunc is a functional implementation of ArgsProcessor.
type ArgsProcessorFunc func(cmd *Command, args []string) []string

// ProcessArgs implements ArgsProcessor.
func (f ArgsProcessorFunc) ProcessArgs(cmd *Command, args []string) []string {
	return f(cmd, args)
}

type Params struct {
	Name             string
	Desc             string
	ArgsPreProcessor ArgsProcessor
	FlagRegistry     FlagRegistry
	Handler          Handler
	SubCommands      []*Command
}

type Command struct {
	params      Params
	subCommands map[string]*Command
	writer      io.Writer
}

func New(params Params) *Command {
	c := &Command{
		params:      params,
		subCommands: make(map[string]*Command, len(params.SubCommands)),
	}

	for _, sub := range params.SubCommands {
		c.subCommands[sub.Name()] = sub
	}

	c.SetWriter(os.Stderr)

	return c
}

// SetWriter sets the usage output for this command and all subcommands.
func (c *Command) SetWriter(w io.Writer) {
	c.writer = w

	for _, sub := range c.params.SubCommands {
		sub.SetWriter(w)
	}
}

func (c *Command) Name() string {
	return c.params.Name
}

func (c *Command) Desc() string {
	return c.params.Desc
}

func (c *Command) Usage(flags *pflag.FlagSet) {
	var b bytes.Buffer

	flagUsages := flags.FlagUsages()

	fmt.Fprintf(&b, "Usage: %s", c.params.Name)

	if flagUsages != "" {
		b.WriteString(" [OPTIONS]")
	}

	if len(c.params.SubCommands) > 0 {
		b.WriteString(" [COMMAND] [ARG...]")
	}

	fmt.Fprintf(&b, "\n%s\n", c.params.Desc)

	if flagUsages != "" {
		fmt.Fprintf(&b, "\nOptions:\n%s\n", flagUsages)
	}

	if len(c.params.SubCommands) > 0 {
		b.WriteString("\nCommands:\n")

		width := 12
		for _, sub := range c.params.SubCommands {
			if l := len(sub.Name()); l > width {
				width = l
			}
		}

		for _, sub := range c.params.SubCommands {
			fmt.Fprintf(&b, "  %-*s %s\n", width, sub.Name(), sub.Desc())
		}

		b.WriteString("\n")
	}

	_, _ = b.WriteTo(c.writer)
}

// Exec parses flags, runs the handler and then dispatches the remaining
// arguments to a subcommand. The context is cancelled on SIGINT or SIGTERM.
func (c *Command) Exec(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	flags.SetOutput(c.writer)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		c.Usage(flags)
	}

	if c.params.ArgsPreProcessor != nil {
		args = c.params.ArgsPreProcessor.ProcessArgs(c, args)
	}

	if c.params.FlagRegistry != nil {
		c.params.FlagRegistry.RegisterFlags(c, flags)
	}

	if err := flags.Parse(args); err != nil {
		return errors.Annotatef(err, "parse args for command: %s", c.params.Name)
	}

	args = flags.Args()

	if c.params.Handler != nil {
		if err := c.params.Handler.Handle(ctx, args); err != nil {
			return errors.Trace(err)
		}
	}

	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}

	if len(args) == 0 || len(c.subCommands) == 0 {
		return nil
	}

	sub, ok := c.subCommands[args[0]]
	if !ok {
		return errors.Annotatef(ErrCommandNotFound, "command: %s", args[0])
	}

	return errors.Trace(sub.Exec(ctx, args[1:]))
}
