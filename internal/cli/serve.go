package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := initGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	go rt.budget.RunRollover(ctx)

	api := server.NewServer(server.Options{
		Gateway:     rt.gateway,
		Registry:    rt.registry,
		Budget:      rt.budget,
		Limiter:     rt.limiter,
		Attempts:    rt.attempts,
		CORSOrigins: cfg.Server.CORSOrigins,
		MaxBodySize: cfg.Server.MaxBodySize,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway started",
			"listen", cfg.Server.Listen,
			"providers", len(rt.registry.ListEnabledProviders()),
			"strategy", rt.registry.Strategy(),
		)
		fmt.Fprintf(os.Stderr, "LLM Provider Gateway listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	stop()
	logger.Info("gateway stopped")
	return nil
}
