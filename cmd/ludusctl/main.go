// Command ludusctl drives a ludus installation from the shell.
//
// Usage:
//
//	ludusctl instance create <archetype> <name> [--overwrite] [--force]
//	ludusctl instance run <name> [command...] [--verbose] [--dry-run]
//	ludusctl instance clear <name>
//	ludusctl instance ls
//	ludusctl archetype ls
//	ludusctl config set <name> <key>... <value> --type int|float|str|bool [--write-back]
//	ludusctl config get <name> "<key path>"...
//	ludusctl check
//	ludusctl version
//
// The ludus root defaults to $LUDUS_ROOT, then the working directory. A YAML
// or TOML file given with --config replaces the default layout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/zoobzio/ludus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &app{stdout: stdout, stderr: stderr}, args)
}

func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "ludusctl: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode mirrors the tool's exit status for tool failures and returns 1
// for everything else.
func exitCode(err error) int {
	var cerr *ludus.CommandError
	if errors.As(err, &cerr) && cerr.ExitCode > 0 {
		return cerr.ExitCode
	}
	return 1
}
