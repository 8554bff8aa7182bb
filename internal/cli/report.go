package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize routing attempts and spend",
	Long:  `Aggregate recorded routing attempts by provider, model and outcome for the current day or month.`,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("period", "P", "daily", "Report period (daily, monthly)")
	reportCmd.Flags().StringP("provider", "p", "", "Filter by provider")
	reportCmd.Flags().StringP("model", "m", "", "Filter by model")
	reportCmd.Flags().String("outcome", "", "Filter by outcome")
	reportCmd.Flags().Bool("detailed", false, "Show individual attempts")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	period, _ := cmd.Flags().GetString("period")
	providerFilter, _ := cmd.Flags().GetString("provider")
	modelFilter, _ := cmd.Flags().GetString("model")
	outcomeFilter, _ := cmd.Flags().GetString("outcome")
	detailed, _ := cmd.Flags().GetBool("detailed")

	budgetPeriod := tracker.BudgetPeriod(period)
	if budgetPeriod != tracker.PeriodDaily && budgetPeriod != tracker.PeriodMonthly {
		return fmt.Errorf("unknown period %q (want daily or monthly)", period)
	}
	outcome := tracker.Outcome(outcomeFilter)
	if outcome != "" && !outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", outcomeFilter)
	}

	attempts, closeStore, err := initAttemptLog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	start, end := tracker.PeriodBounds(budgetPeriod, time.Now())
	filter := tracker.AttemptFilter{
		Provider:  providerFilter,
		Model:     modelFilter,
		Outcome:   outcome,
		StartTime: start,
		EndTime:   end,
	}

	summary, err := attempts.Report(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== LLM Gateway Report (%s) ===\n", period)
	fmt.Fprintf(out, "Period: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Fprintf(out, "Total Cost:     $%.4f\n", summary.TotalCostUSD)
	fmt.Fprintf(out, "Total Tokens:   %d\n", summary.TotalTokens)
	fmt.Fprintf(out, "Total Attempts: %d\n", summary.AttemptCount)

	printCostTable(out, "By Provider", "PROVIDER", summary.ByProvider)
	printCostTable(out, "By Model", "MODEL", summary.ByModel)

	if len(summary.ByOutcome) > 0 {
		fmt.Fprintf(out, "\nBy Outcome:\n")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  OUTCOME\tCOUNT\n")
		for _, o := range slices.Sorted(maps.Keys(summary.ByOutcome)) {
			fmt.Fprintf(w, "  %s\t%d\n", o, summary.ByOutcome[o])
		}
		w.Flush()
	}

	if detailed {
		records, err := attempts.Query(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}
		if len(records) > 0 {
			fmt.Fprintf(out, "\nDetailed Attempts:\n")
			printAttempts(out, records)
		}
	}

	return nil
}

func printCostTable(out io.Writer, title, column string, costs map[string]float64) {
	if len(costs) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  %s\tCOST\n", column)
	for _, name := range slices.Sorted(maps.Keys(costs)) {
		fmt.Fprintf(w, "  %s\t$%.4f\n", name, costs[name])
	}
	w.Flush()
}

func printAttempts(out io.Writer, records []tracker.RoutingAttempt) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  TIMESTAMP\tREQUEST\tPROVIDER\tMODEL\tOUTCOME\tTOKENS\tCOST\tLATENCY\tREASON\n")
	for _, r := range records {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%d\t$%.6f\t%dms\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.RequestID, r.Provider, r.Model, r.Outcome,
			r.TokensUsed, r.CostUSD, r.LatencyMs, r.Reason,
		)
	}
	w.Flush()
}
