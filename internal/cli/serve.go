package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic sync scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler := a.scheduler()
			scheduler.Start(ctx)

			a.logger.Info("mailsync is running, press Ctrl+C to stop")
			<-ctx.Done()

			a.logger.Info("shutting down...")
			scheduler.Stop()
			return nil
		}),
	}
}
