package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitCatalogNotAccess = 3
	ExitCatalogStructure = 4
	ExitStorageError     = 5
	ExitValidationFailed = 7
	ExitTooManyFailures  = 8
)

// exitError carries the exit code a command failed with.
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

func (e *exitError) Unwrap() error {
	return e.err
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runContext(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// runContext executes the CLI with explicit streams and returns the exit
// code.
func runContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	// Anything cobra returns on its own is a usage problem.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprintln(stderr, "Run 'fwslurp --help' for usage.")
	return ExitInvalidArgs
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fwslurp",
		Short: "Mirror the PS3 firmware catalog into local or object storage",
		Long: `fwslurp reads the PS3 firmware index, downloads every listed firmware one
after another with retries, stores each payload next to a checksum sidecar
and reports the outcome of every entry.

Destinations are local directories or gocloud bucket URLs (s3://, gs://,
file://, mem://).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		a.fetchCommand(),
		a.parseCommand(),
		a.validateCommand(),
		a.fixCommand(),
		a.deleteCommand(),
		a.historyCommand(),
	)
	return root
}
