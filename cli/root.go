// ABOUTME: Root cobra command and global flags
// ABOUTME: Registers every subzero subcommand
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "subzero",
		Short:         "Track subscriptions found in your mailbox",
		Long:          "subzero scans connected Gmail accounts for billing emails, records the subscriptions it finds, and forecasts what they will cost.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Config file (default: ./subzero.yaml or $XDG_CONFIG_HOME/subzero/subzero.yaml)")
	root.PersistentFlags().String("db-path", "", "Database path (default: $XDG_DATA_HOME/subzero/subzero.db)")

	root.AddCommand(
		newServeCommand(),
		newMCPCommand(version),
		newSyncCommand(),
		newHistoryCommand(),
		newConnectCommand(),
		newAccountsCommand(),
		newSubsCommand(),
		newReportCommand(),
		newRemindersCommand(),
		newKeygenCommand(),
	)
	return root
}
