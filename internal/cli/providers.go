package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured LLM providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers, their models and limits",
	RunE:  runProvidersList,
}

var providersValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the provider catalog",
	RunE:  runProvidersValidate,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersValidateCmd)
}

func runProvidersList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		return err
	}

	all := registry.All()
	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No providers configured. Check the catalog path in config.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tTYPE\tENABLED\tPRIORITY\tMODEL\t$/1K\tMAX TOKENS\tCONTEXT\tRPM\n")
	for _, p := range all {
		rpm := "-"
		if p.RateLimit.RequestsPerMinute > 0 {
			rpm = fmt.Sprintf("%d", p.RateLimit.RequestsPerMinute)
		}
		for _, m := range p.Models {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t$%.4f\t%d\t%d\t%s\n",
				p.Name, p.Type, p.Enabled, p.Priority,
				m.Name, m.CostPer1K, m.MaxTokens, m.ContextWindow, rpm,
			)
		}
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\nFallback strategy: %s\n", registry.Strategy())
	return nil
}

func runProvidersValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog %s is invalid\n", cfg.Catalog.Path)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "catalog %s is valid: %d providers, %d enabled\n",
		cfg.Catalog.Path, len(registry.All()), len(registry.ListEnabledProviders()))
	return nil
}
