// Command geoimport loads gzip-compressed city lists into Postgres or SQLite,
// one file per transaction.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/geoimport/internal/core"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		logEnvFileError(slog.Default(), err)
	}

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// logEnvFileError reports a .env file that exists but could not be loaded.
// A missing file is the normal case and stays silent.
func logEnvFileError(logger *slog.Logger, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	logger.Debug("could not load .env file", "error", err)
}

// run executes the command line and returns the process exit code.
// SIGINT and SIGTERM cancel the running import, which then rolls back.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", describe(err))
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "geoimport",
		Short:         "Import gzip-compressed city lists into a database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(importCmd(stdout, stderr), formatsCmd(stdout))
	return root
}

// describe maps import failures to their user message. Configuration and
// usage errors are already phrased for the user.
func describe(err error) string {
	var ie *core.ImportError
	if !errors.As(err, &ie) {
		return err.Error()
	}

	ue := core.NewUserError(err)
	slog.Debug("import failed", "code", ue.User.Code, "error", ue.Technical)
	if !core.IsUserFacing(err) {
		// ERR000 alone gives the operator nothing to act on.
		return fmt.Sprintf("%s (Code: %s): %v", ue.Error(), ue.User.Code, ue.Technical)
	}
	return core.FormatUserError(err)
}
