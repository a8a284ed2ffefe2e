package cmdline

import (
	"bytes"
	"testing"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Count int    `arg:"--count"`
	Name  string `arg:"positional"`

	handled bool  `arg:"-"`
	fail    error `arg:"-"`
}

func (a *echoArgs) Validate() error {
	if a.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func (a *echoArgs) Handle() error {
	a.handled = true
	return a.fail
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 1, ExitCode(errors.New("boom")))
	require.Equal(t, 2, ExitCode(errors.Kindf(errors.Configuration, "unknown loss %q", "hinge")))
	require.Equal(t, 3, ExitCode(errors.Wrapf(errors.Kindf(errors.DataUnavailable, "no bank"), "adapter 0")))
	require.Equal(t, 4, ExitCode(errors.Kindf(errors.CheckpointLoad, "no shared keys")))
}

func TestDispatchRunsCommand(t *testing.T) {
	args := &echoArgs{Count: 1}
	var out bytes.Buffer
	code := Dispatch([]string{"hardnet", "echo", "--count", "3", "liberty"}, &out, Command{Name: "echo", Args: args})

	require.Equal(t, 0, code)
	require.True(t, args.handled)
	require.Equal(t, 3, args.Count)
	require.Equal(t, "liberty", args.Name)
}

func TestDispatchErrors(t *testing.T) {
	var out bytes.Buffer
	cmd := func(a *echoArgs) Command { return Command{Name: "echo", Synopsis: "echo a name", Args: a} }

	require.Equal(t, 1, Dispatch([]string{"hardnet"}, &out, cmd(&echoArgs{})))
	require.Contains(t, out.String(), "echo a name")

	require.Equal(t, 1, Dispatch([]string{"hardnet", "train"}, &out, cmd(&echoArgs{})))
	require.Equal(t, 2, Dispatch([]string{"hardnet", "echo", "--bogus"}, &out, cmd(&echoArgs{})))

	a := &echoArgs{}
	require.Equal(t, 2, Dispatch([]string{"hardnet", "echo", "--count=-1"}, &out, cmd(a)))
	require.False(t, a.handled)

	a = &echoArgs{fail: errors.Kindf(errors.DataUnavailable, "no datasets")}
	require.Equal(t, 3, Dispatch([]string{"hardnet", "echo"}, &out, cmd(a)))
	require.Contains(t, out.String(), "echo failed")
}

func TestDispatchHelp(t *testing.T) {
	var out bytes.Buffer
	a := &echoArgs{}
	require.Equal(t, 0, Dispatch([]string{"hardnet", "help", "echo"}, &out, Command{Name: "echo", Args: a}))
	require.Contains(t, out.String(), "--count")
	require.False(t, a.handled)
}
