package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/internal/config"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/adapters"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/cache"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/gateway"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/ratelimit"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/router"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfgFile     string
	catalogFile string
)

var rootCmd = &cobra.Command{
	Use:   "llmgw",
	Short: "LLM Provider Gateway - routes completions across LLM providers",
	Long: `LLM Provider Gateway picks a provider and model for each completion request,
enforces per-provider rate limits and a global spend budget, and falls back
to the next provider when one is rate limited or failing.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.llmgw/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "provider catalog (default from config)")
}

// loadConfig loads the configuration, applying command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if catalogFile != "" {
		cfg.Catalog.Path = catalogFile
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initRegistry loads and validates the provider catalog.
func initRegistry(cfg *config.Config) (*providers.Registry, error) {
	return providers.LoadRegistry(cfg.Catalog.Path)
}

// initStorage opens the attempt store named by config.
func initStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// runtime is a fully wired gateway with the components it shares state with.
type runtime struct {
	registry *providers.Registry
	limiter  *ratelimit.Limiter
	budget   *tracker.BudgetTracker
	attempts *tracker.AttemptLog
	gateway  *gateway.Gateway
	logger   *slog.Logger

	closers []func() error
}

func (r *runtime) Close() {
	r.budget.Wait()
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close", "error", err)
		}
	}
}

// initGateway wires every component from config. Spend already recorded for
// the current day and month is restored into the budget.
func initGateway(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := newLogger(cfg)

	registry, err := initRegistry(cfg)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		registry: registry,
		limiter:  ratelimit.NewFromProviders(registry.All()),
		budget: tracker.NewBudgetTracker(registry.Budget(), logger,
			tracker.WithNotifiers(initNotifiers(cfg), cfg.Alerts.ThresholdPct)),
		attempts: tracker.NewAttemptLog(store, logger),
		logger:   logger,
		closers:  []func() error{store.Close},
	}

	if err := rt.attempts.RestoreBudget(ctx, rt.budget, time.Now()); err != nil {
		rt.Close()
		return nil, fmt.Errorf("restore budget: %w", err)
	}

	adapterSet, err := adapters.NewSet(registry.ListEnabledProviders())
	if err != nil {
		rt.Close()
		return nil, err
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithAttemptSink(rt.attempts),
	}
	if cfg.Cache.Enabled {
		c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		rt.closers = append(rt.closers, c.Close)
		opts = append(opts, gateway.WithCache(c))
	}

	rt.gateway = gateway.New(router.New(registry), rt.limiter, rt.budget, adapterSet, opts...)
	return rt, nil
}

// initAttemptLog opens storage for the read-only reporting commands.
func initAttemptLog(ctx context.Context, cfg *config.Config) (*tracker.AttemptLog, func() error, error) {
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return tracker.NewAttemptLog(store, newLogger(cfg)), store.Close, nil
}
