package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/attendance/internal/api"
	"github.com/goodtune/attendance/internal/metrics"
	"github.com/goodtune/attendance/internal/reminder"
	"github.com/goodtune/attendance/internal/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long:  `Start the attendance server with the JSON API, the shift reminder engine, and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger := a.logger
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("timezone", a.zone.Location().String()).
		Msg("Starting attendance server")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("redis_host", cfg.Storage.Redis.Host).
		Int("redis_port", cfg.Storage.Redis.Port).
		Msg("Storage initialized")

	// Initialize Reminder Engine
	var engine *reminder.Engine
	if cfg.Reminders.Enabled {
		reminderConfig, err := reminder.FromConfig(cfg.Reminders)
		if err != nil {
			return fmt.Errorf("invalid reminder configuration: %w", err)
		}

		engine, err = reminder.NewEngine(
			reminderConfig,
			a.ledger,
			a.store.Reminders(),
			a.directory,
			a.notifier,
			a.clock,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Reminder Engine: %w", err)
		}

		engine.Start()
		logger.Info().
			Int("shifts", len(reminderConfig.Shifts)).
			Dur("interval", reminderConfig.Interval).
			Dur("window", reminderConfig.Window).
			Msg("Reminder Engine started")
	} else {
		logger.Info().Msg("Reminder Engine disabled")
	}

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(apiAddr, a.service, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	// Log startup complete
	logger.Info().Msg("Attendance startup complete")
	logger.Info().Msgf("API: http://%s", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	watchdogDone := make(chan struct{})
	if interval := systemd.WatchdogInterval(); interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := systemd.NotifyWatchdog(); err != nil {
						logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
					}
				case <-watchdogDone:
					return
				}
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	close(watchdogDone)

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := engine.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Error stopping Reminder Engine")
		}
		cancel()
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("Attendance stopped")

	return nil
}
