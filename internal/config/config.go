package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Blob     BlobConfig     `mapstructure:"blob"     validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"  validate:"required"`
}

// ServerConfig contains the worker's operational HTTP endpoint settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains the notification transport settings. An empty
// address disables the Redis notifier and falls back to a logging notifier.
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

// BlobConfig contains object storage settings for generated artifacts
// (export files, import error files).
type BlobConfig struct {
	RootDir string `mapstructure:"root_dir" validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required"`
}

// WorkerConfig contains dispatcher settings.
type WorkerConfig struct {
	// PollInterval is how long the dispatcher sleeps between claim attempts.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
}

// SweeperConfig contains the periodic evaluator settings.
type SweeperConfig struct {
	SLAInterval      time.Duration `mapstructure:"sla_interval"      validate:"required"`
	SnoozeInterval   time.Duration `mapstructure:"snooze_interval"   validate:"required"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval" validate:"required"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"  validate:"required"`

	// ReminderLead is the window ahead of a ticket's due date within which
	// a reminder is dispatched.
	ReminderLead time.Duration `mapstructure:"reminder_lead" validate:"required"`

	// PauseDueOnSnooze extends a ticket's due date by the elapsed snooze
	// duration when the snooze expires. Organization-wide setting.
	PauseDueOnSnooze bool `mapstructure:"pause_due_on_snooze"`

	// BatchSize bounds how many records one evaluator pass touches.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// LogRetention is the age window kept by webhook log pruning.
	LogRetention time.Duration `mapstructure:"log_retention" validate:"required"`

	// LogCeiling is the absolute webhook log row count ceiling.
	LogCeiling int `mapstructure:"log_ceiling" validate:"required,gt=0"`
}
