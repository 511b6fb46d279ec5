package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/config"
	"github.com/goodtune/attendance/internal/notify"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/storage/bolt"
	"github.com/goodtune/attendance/internal/storage/redis"
	"github.com/goodtune/attendance/internal/users"
	"github.com/rs/zerolog"
)

// app holds the components shared by the server and the one-shot commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     storage.Store
	zone      *clock.Zone
	clock     clock.Clock
	ledger    *attendance.Ledger
	directory *users.Directory
	notifier  notify.Notifier
	service   *attendance.Service
}

// newApp loads configuration and wires storage, ledger, directory and notifier.
// Logs go to out; one-shot commands pass stderr so stdout stays readable.
func newApp(out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging, out)

	zone, err := clock.LoadZone(cfg.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		zone:   zone,
		clock:  clock.RealClock{},
	}

	a.notifier, err = openNotifier(cfg.Notifications, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a.directory, err = users.NewDirectory(store.Users(), cfg.Admins.UserIDs, 256, a.clock, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize user directory: %w", err)
	}

	debounce := parseDuration(cfg.Attendance.DebounceWindow, attendance.DefaultDebounce)
	a.ledger = attendance.NewLedger(store.Attendance(), zone, a.clock, debounce, logger)
	a.service = attendance.NewService(a.ledger, a.directory, a.notifier, logger)

	return a, nil
}

// Close releases the storage backend.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close storage")
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected 'bolt' or 'redis')", storageType)
	}
}

func openNotifier(cfg config.NotificationConfig, store storage.Store, logger zerolog.Logger) (notify.Notifier, error) {
	switch cfg.Sink {
	case "", "log":
		return notify.NewLogNotifier(logger), nil
	case "redis":
		rs, ok := store.(*redis.Store)
		if !ok {
			return nil, fmt.Errorf("notification sink 'redis' requires redis storage")
		}
		return notify.NewRedisNotifier(rs.Client(), cfg.Channel, cfg.MaxLen), nil
	default:
		return nil, fmt.Errorf("unsupported notification sink: %s", cfg.Sink)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
