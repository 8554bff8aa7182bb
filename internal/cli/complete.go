package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/gateway"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/router"
	"github.com/spf13/cobra"
)

var completeCmd = &cobra.Command{
	Use:   "complete [prompt]",
	Short: "Send a single completion request through the gateway",
	Long: `Send one prompt through the same routing, rate limiting and budget checks
the server applies. The prompt is read from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runComplete,
}

func init() {
	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().StringP("provider", "p", "", "Force a provider (disables fallback)")
	completeCmd.Flags().StringP("model", "m", "", "Force a model (disables fallback)")
	completeCmd.Flags().Int64("tokens", 0, "Estimated tokens (default: estimated from the prompt)")
	completeCmd.Flags().Int("max-tokens", 0, "Maximum completion tokens (default: model limit)")
	completeCmd.Flags().Bool("json", false, "Print the full result as JSON")
}

func runComplete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	providerName, _ := cmd.Flags().GetString("provider")
	modelName, _ := cmd.Flags().GetString("model")
	tokens, _ := cmd.Flags().GetInt64("tokens")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := initGateway(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	req := gateway.Request{
		Prompt:          prompt,
		EstimatedTokens: tokens,
		MaxTokens:       maxTokens,
	}
	if providerName != "" || modelName != "" {
		req.Override = &router.Override{Provider: providerName, Model: modelName}
	}

	res, err := rt.gateway.Complete(cmd.Context(), req)
	if err != nil {
		var failed *gateway.AllProvidersFailedError
		if errors.As(err, &failed) {
			for _, r := range failed.Reasons {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s/%s: %s\n", r.Provider, r.Model, r.Reason)
			}
			return errors.New("all providers failed")
		}
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out, res.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s/%s tokens=%d cost=$%.6f request=%s]\n",
		res.Provider, res.Model, res.TokensUsed, res.CostUSD, res.RequestID)
	return nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", gateway.ErrEmptyPrompt
	}
	return prompt, nil
}
