package cli

import (
	"fmt"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recorded routing attempts, newest first",
	RunE:  runAttempts,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)
	attemptsCmd.Flags().String("request-id", "", "Show the attempts made for one request")
	attemptsCmd.Flags().StringP("provider", "p", "", "Filter by provider")
	attemptsCmd.Flags().String("outcome", "", "Filter by outcome")
	attemptsCmd.Flags().IntP("limit", "n", 50, "Maximum attempts to show")
}

func runAttempts(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	requestID, _ := cmd.Flags().GetString("request-id")
	providerFilter, _ := cmd.Flags().GetString("provider")
	outcomeFilter, _ := cmd.Flags().GetString("outcome")
	limit, _ := cmd.Flags().GetInt("limit")

	outcome := tracker.Outcome(outcomeFilter)
	if outcome != "" && !outcome.Valid() {
		return fmt.Errorf("unknown outcome %q", outcomeFilter)
	}

	attempts, closeStore, err := initAttemptLog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := attempts.Query(cmd.Context(), tracker.AttemptFilter{
		RequestID: requestID,
		Provider:  providerFilter,
		Outcome:   outcome,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded.")
		return nil
	}
	printAttempts(cmd.OutOrStdout(), records)
	return nil
}
