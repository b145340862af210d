package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSyncCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <accountId>",
		Short: "Sync one account now and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			result := a.syncer.SyncAccount(cmd.Context(), id)
			if err := fprintJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errSilent{errors.New(result.Error)}
			}
			return nil
		}),
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return id, nil
}
