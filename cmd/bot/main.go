package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pacotes-bot/internal/api"
	"pacotes-bot/internal/config"
	"pacotes-bot/internal/logging"
	"pacotes-bot/internal/utils"
	"pacotes-bot/internal/worker"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:     "pacotes-bot",
	Short:   "Daily renewal scheduler for multi-day data packages",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the renewal worker, the HTTP API and the operator console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and re-initializes logging from it.
func loadConfig() (*config.Config, error) {
	logging.Init(logging.Config{Format: "json", Level: "info", Component: "pacotes-bot"})

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "pacotes-bot"})
	return cfg, nil
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	interval, err := cfg.Interval()
	if err != nil {
		return err
	}
	allow, err := utils.NewAllowList(cfg.AllowedNetworks())
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("Starting package renewal service")

	a, err := buildApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renewer := worker.NewRenewer(a.store, worker.Options{
		Interval:     interval,
		InitialDelay: cfg.RenewalInitialDelay,
		TickTimeout:  cfg.TickTimeout,
	})
	renewer.Start()

	server := api.NewServer(a.store, renewer, allow)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Listen(cfg.HTTPAddr)
	}()

	if a.console != nil {
		go func() {
			if err := a.console.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Operator console stopped")
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("HTTP API stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP API shutdown incomplete")
	}
	if a.console != nil {
		a.console.Stop()
	}
	select {
	case <-renewer.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("Renewal tick still running at shutdown")
	}

	log.Info().Msg("Stopped")
	return nil
}
