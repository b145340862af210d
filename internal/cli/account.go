package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixelka/mailsync/internal/email"
	"github.com/mixelka/mailsync/internal/mailsync"
)

func newAccountCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage mail accounts",
	}
	cmd.AddCommand(newAccountAddCmd(withApp))
	cmd.AddCommand(newAccountListCmd(withApp))
	cmd.AddCommand(newAccountDeleteCmd(withApp))
	cmd.AddCommand(newAccountActiveCmd(withApp, "enable", true))
	cmd.AddCommand(newAccountActiveCmd(withApp, "disable", false))
	return cmd
}

func newAccountAddCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	var req mailsync.CreateAccountRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Verify IMAP credentials and add an account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("MAILSYNC_PASSWORD")
			}

			// fill in hosts the user left out
			if req.IMAPHost == "" || req.SMTPHost == "" {
				servers, err := email.NewResolver().Resolve(cmd.Context(), req.EmailAddress)
				if err != nil {
					return fmt.Errorf("failed to resolve servers: %w", err)
				}
				if req.IMAPHost == "" {
					req.IMAPHost = servers.IMAPHost
					if req.IMAPPort == 0 {
						req.IMAPPort = servers.IMAPPort
					}
				}
				if req.SMTPHost == "" {
					req.SMTPHost = servers.SMTPHost
					if req.SMTPPort == 0 {
						req.SMTPPort = servers.SMTPPort
					}
				}
				a.logger.Info("resolved servers", "imap", req.IMAPHost, "smtp", req.SMTPHost)
			}

			result, err := a.accounts.Create(cmd.Context(), req)
			if err != nil {
				return fprintError(cmd.OutOrStdout(), err)
			}
			return fprintJSON(cmd.OutOrStdout(), result)
		}),
	}

	f := cmd.Flags()
	f.Int64Var(&req.UserID, "user", 1, "owning user id")
	f.StringVar(&req.EmailAddress, "email", "", "email address")
	f.StringVar(&req.DisplayName, "name", "", "display name for outgoing mail")
	f.StringVar(&req.IMAPHost, "imap-host", "", "IMAP host (resolved from the address if omitted)")
	f.IntVar(&req.IMAPPort, "imap-port", 0, "IMAP port (default 993)")
	f.StringVar(&req.SMTPHost, "smtp-host", "", "SMTP host (resolved from the address if omitted)")
	f.IntVar(&req.SMTPPort, "smtp-port", 0, "SMTP port (default 587, 465 for implicit TLS)")
	f.StringVar(&req.Username, "username", "", "login name (defaults to the email address)")
	f.StringVar(&req.Password, "password", "", "password or app password (or MAILSYNC_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAccountListCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's accounts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			accounts, err := a.accounts.List(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return fprintJSON(cmd.OutOrStdout(), accounts)
		}),
	}

	cmd.Flags().Int64Var(&userID, "user", 1, "owning user id")
	return cmd
}

func newAccountDeleteCmd(withApp func(runner) func(*cobra.Command, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <accountId>",
		Short: "Delete an account with its emails and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.Delete(cmd.Context(), id); err != nil {
				return fprintError(cmd.OutOrStdout(), err)
			}
			return fprintJSON(cmd.OutOrStdout(), map[string]any{"success": true, "id": id})
		}),
	}
}

func newAccountActiveCmd(withApp func(runner) func(*cobra.Command, []string) error, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <accountId>",
		Short: fmt.Sprintf("%s scheduled sync for an account", use),
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.SetActive(cmd.Context(), id, active); err != nil {
				return fprintError(cmd.OutOrStdout(), err)
			}
			return fprintJSON(cmd.OutOrStdout(), map[string]any{"success": true, "id": id, "isActive": active})
		}),
	}
}
