package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect the global spend budget",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spend against the daily and monthly limits",
	RunE:  runBudgetStatus,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetStatusCmd)
}

func runBudgetStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		return err
	}

	attempts, closeStore, err := initAttemptLog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	budget := tracker.NewBudgetTracker(registry.Budget(), newLogger(cfg))
	if err := attempts.RestoreBudget(cmd.Context(), budget, time.Now()); err != nil {
		return fmt.Errorf("restore budget: %w", err)
	}

	printBudget(cmd.OutOrStdout(), budget.Snapshot(), cfg.Alerts.ThresholdPct)
	return nil
}

func printBudget(out io.Writer, s tracker.BudgetState, alertAt float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PERIOD\tSINCE\tLIMIT\tSPENT\tREMAINING\tUSAGE\n")
	printBudgetRow(w, tracker.PeriodDaily, s.DayStart, s.DailyLimitUSD, s.SpentTodayUSD, alertAt)
	printBudgetRow(w, tracker.PeriodMonthly, s.MonthStart, s.MonthlyLimitUSD, s.SpentMonthUSD, alertAt)
	w.Flush()
}

func printBudgetRow(w io.Writer, period tracker.BudgetPeriod, since time.Time, limit, spent, alertAt float64) {
	if limit <= 0 {
		fmt.Fprintf(w, "%s\t%s\tunlimited\t$%.4f\t-\t-\n", period, since.Format("2006-01-02"), spent)
		return
	}

	remaining := max(limit-spent, 0)
	pct := spent / limit * 100

	status := ""
	switch {
	case pct >= 100:
		status = " [EXCEEDED]"
	case pct >= 95:
		status = " [CRITICAL]"
	case pct >= alertAt:
		status = " [WARNING]"
	}

	fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.4f\t$%.4f\t%.1f%%%s\n",
		period, since.Format("2006-01-02"), limit, spent, remaining, pct, status)
}
