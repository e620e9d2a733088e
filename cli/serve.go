// ABOUTME: serve and mcp subcommands
// ABOUTME: Runs the HTTP boundary or the MCP stdio server until interrupted
package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/subzero/handlers"
	"github.com/harperreed/subzero/web"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = app.Config.Server.Addr
			}
			if app.Connector == nil {
				app.Logger.Warn("google oauth is not configured; /api/gmail routes are disabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := web.NewServer(web.Options{
				DB:           app.DB,
				Config:       app.Config,
				Orchestrator: app.Sync,
				Connector:    app.Connector,
				Gatherer:     app.Registry,
				Logger:       app.Logger.Named("web"),
			})
			return server.Start(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func newMCPCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			app.Logger.Info("starting MCP server", zap.String("version", version))

			server := mcp.NewServer(&mcp.Implementation{
				Name:    "subzero",
				Version: version,
			}, nil)
			handlers.Register(server,
				handlers.NewSubscriptionHandlers(app.Subs),
				handlers.NewSyncHandlers(app.DB, app.Sync),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, &mcp.StdioTransport{})
		},
	}
}
