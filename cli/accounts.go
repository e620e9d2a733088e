// ABOUTME: Connected mailbox CLI commands
// ABOUTME: Lists and disconnects a user's Gmail accounts
package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/sync"
	"github.com/spf13/cobra"
)

func newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage connected mailboxes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "List connected mailboxes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			accounts, err := db.ListMailAccounts(cmd.Context(), app.DB, args[0])
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintf(out, "No mailboxes connected. Run 'subzero connect %s' to add one.\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "EMAIL\tCONNECTED\tLAST SYNC\tFOUND")
			_, _ = fmt.Fprintln(w, "-----\t---------\t---------\t-----")
			for _, a := range accounts {
				lastSync := "never"
				if a.LastSyncedAt != nil {
					lastSync = a.LastSyncedAt.Local().Format("2006-01-02 15:04")
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					a.Email,
					a.ConnectedAt.Local().Format("2006-01-02"),
					lastSync,
					a.LastSyncCount,
				)
			}
			_ = w.Flush()

			if sync.ShouldAutoSync(accounts, time.Now(), app.Config.Sync.Staleness) {
				fmt.Fprintf(out, "\nMailboxes are stale. Run 'subzero sync %s' to refresh.\n", args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disconnect <user-id> <email>",
		Short: "Disconnect a mailbox and delete its credentials",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			deleted, err := db.DeleteMailAccount(cmd.Context(), app.DB, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to disconnect account: %w", err)
			}
			if !deleted {
				return fmt.Errorf("no mailbox %s connected for %s", args[1], args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Disconnected %s\n", args[1])
			return nil
		},
	})

	return cmd
}
