package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const versionString = "1.0.0"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type globalOptions struct {
	configPath string
	verbose    bool
}

// exitError carries a process exit code. A nil err means the command
// already reported everything it had to say.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// Run executes the repoctx command line and returns the process exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr, defaultAppFactory{})
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, factory appFactory) int {
	rt := &runtime{stdout: stdout, stderr: stderr, opts: &globalOptions{}, factory: factory}
	defer rt.teardown()

	root := newRootCommand(rt)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if stderrors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitFailure
}

func newRootCommand(rt *runtime) *cobra.Command {
	opts := rt.opts

	root := &cobra.Command{
		Use:   "repoctx",
		Short: "Extract normalized per-file code structure records",
		Long: `repoctx parses source files with tree-sitter and emits one normalized
record per file: functions, types, variables, constants, imports, exports
and an intra-file call graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return rt.setup(cmd.Context())
		},
	}
	root.SetOut(rt.stdout)
	root.SetErr(rt.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: repoctx.toml at the project root)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newExtractCommand(rt),
		newBatchCommand(rt),
		newWatchCommand(rt),
		newCallersCommand(rt),
		newLanguagesCommand(rt),
		newVersionCommand(rt.stdout),
	)
	return root
}

// exactArgs is cobra.ExactArgs with a usage exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &exitError{code: exitUsage, err: err}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &exitError{code: exitUsage, err: err}
		}
		return nil
	}
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the repoctx version",
		Args:  exactArgs(0),
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "repoctx v%s\n", versionString)
		},
	}
}
