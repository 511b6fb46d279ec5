package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Attendance    AttendanceConfig   `mapstructure:"attendance"`
	Reminders     ReminderConfig     `mapstructure:"reminders"`
	Admins        AdminsConfig       `mapstructure:"admins"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// AttendanceConfig defines the session ledger settings
type AttendanceConfig struct {
	Timezone       string `mapstructure:"timezone"`
	DebounceWindow string `mapstructure:"debounce_window"`
}

// ShiftConfig is one shift end time ("HH:MM" in the configured timezone)
type ShiftConfig struct {
	Name string `mapstructure:"name"`
	End  string `mapstructure:"end"`
}

// ReminderConfig defines the shift reminder engine settings
type ReminderConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       string        `mapstructure:"interval"`
	Window         string        `mapstructure:"window"`
	DedupCacheSize int           `mapstructure:"dedup_cache_size"`
	MarkerTTL      string        `mapstructure:"marker_ttl"`
	Shifts         []ShiftConfig `mapstructure:"shifts"`
}

// AdminsConfig lists fallback administrators used when the user directory has none
type AdminsConfig struct {
	UserIDs []int64 `mapstructure:"user_ids"`
}

// NotificationConfig defines where outgoing messages are delivered
type NotificationConfig struct {
	Sink    string `mapstructure:"sink"`    // "log" or "redis"
	Channel string `mapstructure:"channel"` // Redis outbox list for the "redis" sink
	MaxLen  int64  `mapstructure:"max_len"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("ATTENDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration produced by defaults alone
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Attendance defaults
	v.SetDefault("attendance.timezone", "UTC")
	v.SetDefault("attendance.debounce_window", "60s")

	// Reminder defaults
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", "15m")
	v.SetDefault("reminders.window", "75m")
	v.SetDefault("reminders.dedup_cache_size", 1024)
	v.SetDefault("reminders.marker_ttl", "48h")
	v.SetDefault("reminders.shifts", []map[string]interface{}{
		{"name": "morning", "end": "20:00"},
		{"name": "evening", "end": "23:00"},
		{"name": "night", "end": "03:00"},
	})

	// Admin defaults
	v.SetDefault("admins.user_ids", []int64{})

	// Notification defaults
	v.SetDefault("notifications.sink", "log")
	v.SetDefault("notifications.channel", "attendance:notifications")
	v.SetDefault("notifications.max_len", 10000)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/attendance/attendance.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 5)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// KnownKeys returns the set of all valid configuration keys
func KnownKeys() map[string]bool {
	return map[string]bool{
		// Server
		"server.bind_address": true,
		"server.api_port":     true,
		"server.metrics_port": true,

		// Attendance
		"attendance.timezone":        true,
		"attendance.debounce_window": true,

		// Reminders
		"reminders.enabled":          true,
		"reminders.interval":         true,
		"reminders.window":           true,
		"reminders.dedup_cache_size": true,
		"reminders.marker_ttl":       true,
		"reminders.shifts":           true,

		// Admins
		"admins.user_ids": true,

		// Notifications
		"notifications.sink":    true,
		"notifications.channel": true,
		"notifications.max_len": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Logging
		"logging.level":  true,
		"logging.format": true,
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if _, err := time.LoadLocation(cfg.Attendance.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Attendance.Timezone, err)
	}

	for key, value := range map[string]string{
		"attendance.debounce_window": cfg.Attendance.DebounceWindow,
		"reminders.interval":         cfg.Reminders.Interval,
		"reminders.window":           cfg.Reminders.Window,
		"reminders.marker_ttl":       cfg.Reminders.MarkerTTL,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", key)
		}
	}

	if cfg.Reminders.Enabled && len(cfg.Reminders.Shifts) == 0 {
		return fmt.Errorf("reminders enabled but no shifts configured")
	}
	seen := make(map[string]bool)
	for _, shift := range cfg.Reminders.Shifts {
		if shift.Name == "" {
			return fmt.Errorf("shift name is required")
		}
		if seen[shift.Name] {
			return fmt.Errorf("duplicate shift name: %s", shift.Name)
		}
		seen[shift.Name] = true
		if _, err := time.Parse("15:04", shift.End); err != nil {
			return fmt.Errorf("invalid end time %q for shift %s (expected HH:MM)", shift.End, shift.Name)
		}
	}

	switch cfg.Notifications.Sink {
	case "log":
	case "redis":
		if cfg.Storage.Type != "redis" {
			return fmt.Errorf("notifications.sink=redis requires storage.type=redis")
		}
	default:
		return fmt.Errorf("unknown notification sink: %s", cfg.Notifications.Sink)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}

	switch cfg.Storage.Type {
	case "bolt":
		// Validate storage path
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}

		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	return nil
}
