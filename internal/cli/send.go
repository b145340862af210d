package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixelka/mailsync/internal/mailsync"
)

func newSendCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	var (
		req      mailsync.SendRequest
		bodyFile string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email through a stored account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if bodyFile != "" {
				body, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("failed to read body file: %w", err)
				}
				req.Body = string(body)
			}

			result, err := a.sender.Send(cmd.Context(), req)
			if err != nil {
				return fprintError(cmd.OutOrStdout(), err)
			}
			return fprintJSON(cmd.OutOrStdout(), result)
		}),
	}

	cmd.Flags().Int64Var(&req.AccountID, "account", 0, "account id to send from")
	cmd.Flags().StringSliceVar(&req.To, "to", nil, "recipient address (repeatable)")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&req.Body, "body", "", "message body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the message body from a file")
	cmd.Flags().BoolVar(&req.IsHTML, "html", false, "send the body as text/html")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
