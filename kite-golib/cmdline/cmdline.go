package cmdline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	arg "github.com/alexflint/go-arg"
	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Command represents an action that can be run from the command line
type Command struct {
	Name     string
	Synopsis string
	Args     Handler
}

// Handler represents a function that gets called for an action
type Handler interface {
	Handle() error
}

// Validator is the interface for custom validation of command line arguments
type Validator interface {
	Validate() error
}

func prog(argv []string) string {
	if len(argv) > 0 {
		return filepath.Base(argv[0])
	}
	return "program"
}

func writeUsage(w io.Writer, name string, cmds []Command) {
	fmt.Fprintf(w, "Usage: %s COMMAND [ARGS]\n", name)
	fmt.Fprintf(w, "Command can be one of:\n")
	for _, cmd := range cmds {
		fmt.Fprintf(w, "  %-20s %s\n", cmd.Name, cmd.Synopsis)
	}
	fmt.Fprintf(w, "  %-20s %s\n", "help", "display this help and exit")
	fmt.Fprintf(w, "  %-20s %s\n", "help COMMAND", "display help for command and exit")
}

func find(cmds []Command, name string) *Command {
	for i := range cmds {
		if cmds[i].Name == name {
			return &cmds[i]
		}
	}
	return nil
}

// Dispatch parses argv (program name first) into the matching command's Args, validates them,
// runs the handler and returns the process exit code. Usage and errors go to w.
func Dispatch(argv []string, w io.Writer, cmds ...Command) int {
	name := prog(argv)
	if len(argv) < 2 {
		writeUsage(w, name, cmds)
		fmt.Fprintln(w, "\nError: no command provided")
		return 1
	}

	action, rest, help := argv[1], argv[2:], false
	if action == "help" {
		if len(rest) == 0 {
			writeUsage(w, name, cmds)
			return 0
		}
		action, help = rest[0], true
	}

	cmd := find(cmds, action)
	if cmd == nil {
		writeUsage(w, name, cmds)
		fmt.Fprintln(w, "\nError: unknown command", action)
		return 1
	}

	parser, err := arg.NewParser(arg.Config{Program: name + " " + action}, cmd.Args)
	if err != nil {
		fmt.Fprintln(w, err)
		return 1
	}
	if help {
		parser.WriteHelp(w)
		return 0
	}

	if err := parser.Parse(rest); err != nil {
		if err == arg.ErrHelp {
			parser.WriteHelp(w)
			return 0
		}
		parser.WriteUsage(w)
		fmt.Fprintf(w, "error: %v\n", err)
		return ExitCode(errors.WithKind(errors.Configuration, err))
	}
	if v, ok := cmd.Args.(Validator); ok {
		if err := v.Validate(); err != nil {
			parser.WriteUsage(w)
			fmt.Fprintf(w, "error: %v\n", err)
			return ExitCode(errors.WithKind(errors.Configuration, err))
		}
	}

	if err := cmd.Args.Handle(); err != nil {
		fmt.Fprintf(w, "%s failed: %v\n", action, err)
		return ExitCode(err)
	}
	return 0
}

// MustDispatch dispatches one of the commands from os.Args and exits the process on failure
func MustDispatch(cmds ...Command) {
	if code := Dispatch(os.Args, os.Stderr, cmds...); code != 0 {
		os.Exit(code)
	}
}

// ExitCode maps a handler error to a process exit code: 2 for configuration errors, 3 for
// missing data, 4 for unusable checkpoints and 1 otherwise.
func ExitCode(err error) int {
	switch errors.KindOf(err) {
	case errors.Configuration:
		return 2
	case errors.DataUnavailable:
		return 3
	case errors.CheckpointLoad:
		return 4
	default:
		return 1
	}
}
