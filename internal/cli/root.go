// Package cli implements the mailsync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixelka/mailsync/internal/config"
)

// version is set via ldflags at build time.
var version = "dev"

type runner func(cmd *cobra.Command, a *app, args []string) error

// NewRootCmd builds the command tree
func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "mailsync",
		Short:         "IMAP/SMTP mailbox synchronization engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	withApp := func(run runner) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(newServeCmd(withApp))
	root.AddCommand(newAccountCmd(withApp))
	root.AddCommand(newSyncCmd(withApp))
	root.AddCommand(newSendCmd(withApp))
	return root
}

// Execute runs the command line and exits non-zero on failure
func Execute(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	if err := NewRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		var silent errSilent
		if !errors.As(err, &silent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
