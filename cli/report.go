// ABOUTME: Spend report CLI command
// ABOUTME: Prints dashboard stats and the 12-month burn chart, styled when stdout is a terminal
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/subzero/finance"
	"github.com/harperreed/subzero/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	actualStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	projectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	savingsStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
)

// reportStyles is a no-op set when output is not a terminal.
type reportStyles struct {
	title, label, actual, projected, savings func(...string) string
}

func newReportStyles(styled bool) reportStyles {
	if !styled {
		plain := func(s ...string) string { return strings.Join(s, " ") }
		return reportStyles{plain, plain, plain, plain, plain}
	}
	return reportStyles{
		title:     titleStyle.Render,
		label:     labelStyle.Render,
		actual:    actualStyle.Render,
		projected: projectedStyle.Render,
		savings:   savingsStyle.Render,
	}
}

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <user-id>",
		Short: "Show spend totals and the 12-month burn forecast",
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

			styled := cmd.OutOrStdout() == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
			renderReport(cmd.OutOrStdout(), newReportStyles(styled), subs, app.Subs.BaseCurrency, time.Now())
			return nil
		},
	}
}

func renderReport(out io.Writer, st reportStyles, subs []models.Subscription, base string, now time.Time) {
	stats := finance.Stats(subs, now)
	forecast := finance.NewForecast(subs, now)

	var b strings.Builder
	b.WriteString(st.title("Subscription report") + "\n\n")

	fmt.Fprintf(&b, "%s %d (%d detected)\n", st.label("Active:"), stats.ActiveCount, stats.AIDetectedCount)
	fmt.Fprintf(&b, "%s %.2f %s\n", st.label("Monthly spend:"), stats.TotalMonthlySpend, base)
	fmt.Fprintf(&b, "%s %.2f %s\n", st.label("Yearly spend:"), stats.TotalYearlySpend, base)
	fmt.Fprintf(&b, "%s %d in the next %d days\n", st.label("Renewals:"), stats.UpcomingRenewals, finance.UpcomingWindowDays)
	b.WriteString("\n")

	peak := 0.0
	for _, p := range forecast.Points {
		if v := pointValue(p); v > peak {
			peak = v
		}
	}

	b.WriteString(st.label("Burn forecast") + "\n")
	for _, p := range forecast.Points {
		v := pointValue(p)
		bar := strings.Repeat("█", scaled(v, peak))
		if p.Actual != nil {
			bar = st.actual(bar)
		} else {
			bar = st.projected(bar)
		}
		fmt.Fprintf(&b, "  %-8s %10.2f  %s\n", p.Month, v, bar)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %.2f %s\n",
		st.savings("Switching monthly plans to yearly saves"),
		forecast.AnnualSavings, base+" a year")

	_, _ = io.WriteString(out, b.String())
}

func pointValue(p models.BurnDataPoint) float64 {
	if p.Projected != nil {
		return *p.Projected
	}
	if p.Actual != nil {
		return *p.Actual
	}
	return 0
}

func scaled(v, peak float64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	n := int(v / peak * barWidth)
	if n == 0 {
		n = 1
	}
	return n
}
