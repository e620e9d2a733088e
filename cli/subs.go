// ABOUTME: Subscription CLI commands
// ABOUTME: Human-friendly commands for listing, adding, editing, verifying, and deleting subscriptions
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/models"
	"github.com/harperreed/subzero/subscriptions"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newSubsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subs",
		Aliases: []string{"subscriptions"},
		Short:   "Manage subscriptions",
	}
	cmd.AddCommand(
		newSubsListCommand(),
		newSubsAddCommand(),
		newSubsUpdateCommand(),
		newSubsVerifyCommand(),
		newSubsDeleteCommand(),
	)
	return cmd
}

func newSubsListCommand() *cobra.Command {
	var unverified bool

	cmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			subs, err := app.Subs.List(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list subscriptions: %w", err)
			}
			if unverified {
				pending := subs[:0]
				for _, s := range subs {
					if !s.Verified {
						pending = append(pending, s)
					}
				}
				subs = pending
			}

			printSubscriptions(cmd.OutOrStdout(), subs, app.Subs.BaseCurrency, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&unverified, "unverified", false, "Only show detected subscriptions awaiting review")
	return cmd
}

func printSubscriptions(out io.Writer, subs []models.Subscription, base string, now time.Time) {
	if len(subs) == 0 {
		fmt.Fprintln(out, "No subscriptions found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "NAME\tAMOUNT\tIN %s\tCYCLE\tCATEGORY\tRENEWS\tSOURCE\tID\n", base)
	_, _ = fmt.Fprintln(w, "----\t------\t------\t-----\t--------\t------\t------\t--")
	for _, s := range subs {
		source := s.Source
		if !s.Verified {
			source += " (unverified)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f %s\t%.2f\t%s\t%s\t%s (%dd)\t%s\t%s\n",
			s.Name,
			s.Amount, s.OriginalCurrency,
			s.BaseAmount(),
			s.BillingCycle,
			s.Category,
			s.RenewalDate.Format(dateLayout), finance.DaysUntil(now, s.RenewalDate),
			source,
			s.ID,
		)
	}
	_ = w.Flush()
}

func newSubsAddCommand() *cobra.Command {
	var (
		name     string
		amount   float64
		currency string
		cycle    string
		category string
		renewal  string
	)

	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Add a subscription manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renewalDate, err := time.Parse(dateLayout, renewal)
			if err != nil {
				return fmt.Errorf("invalid --renewal (use YYYY-MM-DD): %w", err)
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Subs.Create(cmd.Context(), args[0], subscriptions.Input{
				Name:         name,
				Amount:       amount,
				Currency:     currency,
				BillingCycle: strings.ToLower(cycle),
				Category:     category,
				RenewalDate:  renewalDate,
			}, models.SourceManual)
			if !result.Success {
				return errors.New(result.Error)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Subscription added: %s (ID: %s)\n", name, result.ID)
			fmt.Fprintf(out, "  Amount: %.2f %s %s\n", amount, strings.ToUpper(currency), cycle)
			fmt.Fprintf(out, "  Renews: %s\n", renewalDate.Format(dateLayout))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Service name (required)")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Charge per billing cycle (required)")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code (default base currency)")
	cmd.Flags().StringVar(&cycle, "cycle", models.CycleMonthly, "Billing cycle: monthly or yearly")
	cmd.Flags().StringVar(&category, "category", models.CategoryOthers, "Category: "+strings.Join(models.Categories, ", "))
	cmd.Flags().StringVar(&renewal, "renewal", "", "Next renewal date as YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("renewal")
	return cmd
}

func newSubsUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <user-id> <subscription-id>",
		Short: "Change fields of a subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid subscription ID: %w", err)
			}

			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			sub, err := app.Subs.Update(cmd.Context(), args[0], id, patch)
			if err != nil {
				return fmt.Errorf("failed to update subscription: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Subscription updated: %s\n", sub.Name)
			return nil
		},
	}

	cmd.Flags().String("name", "", "New service name")
	cmd.Flags().Float64("amount", 0, "New charge per billing cycle")
	cmd.Flags().String("currency", "", "New ISO 4217 currency code")
	cmd.Flags().String("cycle", "", "New billing cycle")
	cmd.Flags().String("category", "", "New category")
	cmd.Flags().String("renewal", "", "New renewal date as YYYY-MM-DD")
	return cmd
}

// patchFromFlags includes only the flags the user set.
func patchFromFlags(cmd *cobra.Command) (subscriptions.Patch, error) {
	var p subscriptions.Patch
	flags := cmd.Flags()

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	p.Name = str("name")
	p.Currency = str("currency")
	p.BillingCycle = str("cycle")
	p.Category = str("category")
	if flags.Changed("amount") {
		v, _ := flags.GetFloat64("amount")
		p.Amount = &v
	}
	if raw := str("renewal"); raw != nil {
		t, err := time.Parse(dateLayout, *raw)
		if err != nil {
			return p, fmt.Errorf("invalid --renewal (use YYYY-MM-DD): %w", err)
		}
		p.RenewalDate = &t
	}

	if p == (subscriptions.Patch{}) {
		return p, errors.New("nothing to update: pass at least one field flag")
	}
	return p, nil
}

func newSubsVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id> <subscription-id>",
		Short: "Confirm a detected subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid subscription ID: %w", err)
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Subs.Verify(cmd.Context(), args[0], id); err != nil {
				return fmt.Errorf("failed to verify subscription: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Subscription verified: %s\n", id)
			return nil
		},
	}
}

func newSubsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id> <subscription-id>",
		Short: "Permanently delete a subscription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid subscription ID: %w", err)
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Subs.Delete(cmd.Context(), args[0], id); err != nil {
				return fmt.Errorf("failed to delete subscription: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Subscription deleted: %s\n", id)
			return nil
		},
	}
}
