// ABOUTME: sync, history, and connect subcommands
// ABOUTME: Runs the mailbox pipeline and completes OAuth through a local callback server
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/db"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/sync"
	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	var (
		incremental bool
		auto        bool
		windowDays  int
	)

	cmd := &cobra.Command{
		Use:   "sync <user-id>",
		Short: "Scan connected mailboxes for subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if windowDays < 0 {
				return fmt.Errorf("--window-days must not be negative")
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Config.RequireGemini(); err != nil {
				return err
			}

			ctx := cmd.Context()
			userID := args[0]
			out := cmd.OutOrStdout()

			if auto {
				result, ran := app.Sync.AutoSync(ctx, userID)
				if !ran {
					fmt.Fprintln(out, "✓ Mailboxes synced recently, nothing to do")
					return nil
				}
				return printSyncResult(cmd, result)
			}

			opts := sync.Options{Recency: sync.Recency{WindowDays: windowDays}}
			if incremental {
				accounts, err := db.ListMailAccounts(ctx, app.DB, userID)
				if err != nil {
					return fmt.Errorf("failed to load accounts: %w", err)
				}
				opts.Recency = sync.AfterLastSync(accounts)
			}

			fmt.Fprintf(out, "Syncing mailboxes for %s...\n", userID)
			return printSyncResult(cmd, app.Sync.Sync(ctx, userID, opts))
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "Only scan mail received since the last sync")
	cmd.Flags().BoolVar(&auto, "auto", false, "Skip unless the last sync is older than the staleness window")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "Days of mail to scan (default 30)")
	return cmd
}

func printSyncResult(cmd *cobra.Command, result sync.Result) error {
	if !result.Success {
		return fmt.Errorf("sync failed: %s", result.Error)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Scanned %d emails from %d accounts\n", result.Scanned, result.AccountsScanned)
	fmt.Fprintf(out, "✓ Added %d subscriptions\n", result.Added)
	return nil
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show recent sync runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := db.ListSyncRuns(cmd.Context(), app.DB, args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No sync runs yet.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "STARTED\tDURATION\tACCOUNTS\tEMAILS\tADDED\tRESULT")
			_, _ = fmt.Fprintln(w, "-------\t--------\t--------\t------\t-----\t------")
			for _, r := range runs {
				status := "ok"
				if r.ErrorMessage != nil {
					status = *r.ErrorMessage
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
					r.AccountsScanned,
					r.EmailsScanned,
					r.Added,
					status,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <user-id>",
		Short: "Connect a Gmail account through the browser",
		Long:  "Starts a local server on the configured redirect URI, opens the consent page, and stores the account once Google redirects back.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Connector == nil {
				return app.Config.RequireOAuth()
			}
			if err := app.Vault.Check(); err != nil {
				return err
			}

			acct, err := connectLocal(cmd.Context(), app.Connector, app.Config.Google.RedirectURI, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n✓ Connected %s\n", acct.Email)
			fmt.Fprintf(out, "✓ Credentials sealed in %s\n\n", app.Config.Database.Path)
			fmt.Fprintf(out, "Ready to sync! Run 'subzero sync %s' to scan for subscriptions.\n", args[0])
			return nil
		},
	}
}

// connectLocal serves the redirect URI locally and waits for one callback.
func connectLocal(ctx context.Context, connector *sync.Connector, redirectURI, userID string, out io.Writer) (*models.ConnectedMailAccount, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, config.Errorf("GOOGLE_REDIRECT_URI %q is not an absolute URL", redirectURI)
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	accountCh := make(chan *models.ConnectedMailAccount, 1)
	errCh := make(chan error, 1)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if reason := q.Get("error"); reason != "" {
			fail(fmt.Errorf("authorization denied: %s", reason))
			_, _ = fmt.Fprintf(w, "Authorization denied. You can close this window.")
			return
		}
		if q.Get("state") != userID {
			http.Error(w, "unexpected state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			fail(errors.New("no authorization code received"))
			return
		}

		acct, err := connector.Complete(r.Context(), userID, code)
		if err != nil {
			fail(err)
			http.Error(w, "Connection failed. Check the terminal for details.", http.StatusInternalServerError)
			return
		}
		select {
		case accountCh <- acct:
		default:
		}
		_, _ = fmt.Fprintf(w, "Connected %s! You can close this window.", acct.Email)
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := connector.AuthURL(userID)
	fmt.Fprintln(out, "Opening browser for Google OAuth...")
	fmt.Fprintf(out, "\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	_ = openBrowser(authURL)

	select {
	case acct := <-accountCh:
		return acct, nil
	case err := <-errCh:
		return nil, fmt.Errorf("OAuth flow failed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// openBrowser attempts to open URL in default browser
func openBrowser(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{target}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", target}
	default:
		cmd = "xdg-open"
		args = []string{target}
	}

	return exec.Command(cmd, args...).Start()
}
