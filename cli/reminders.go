// ABOUTME: reminders and keygen subcommands
// ABOUTME: Runs the renewal reminder scan once and generates vault keys
package cli

import (
	"fmt"
	"time"

	"github.com/harperreed/subzero/reminders"
	"github.com/harperreed/subzero/vault"
	"github.com/spf13/cobra"
)

func newRemindersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Renewal reminders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Create reminders for subscriptions renewing in the next 7 days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			runner := &reminders.Runner{DB: app.DB, Logger: app.Logger.Named("reminders")}
			result, err := runner.Run(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("failed to run reminders: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Reminded %d users\n", result.Users)
			fmt.Fprintf(out, "✓ Created %d notifications\n", result.Notifications)
			fmt.Fprintf(out, "✓ Stamped %d subscriptions\n", result.Stamped)
			return nil
		},
	})

	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ENCRYPTION_KEY for the credential vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ENCRYPTION_KEY=%s\n", key)
			return nil
		},
	}
}
