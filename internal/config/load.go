package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory; environment variables
	// with the OPSDESK_ prefix override it.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OPSDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; environment variables are enough.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values so a minimal environment (database
// URL only) yields a runnable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.channel", "opsdesk:notifications")

	v.SetDefault("blob.root_dir", "./data/blob")
	v.SetDefault("blob.base_url", "http://localhost:8090/files")

	v.SetDefault("worker.poll_interval", time.Second)

	v.SetDefault("sweeper.sla_interval", time.Minute)
	v.SetDefault("sweeper.snooze_interval", time.Minute)
	v.SetDefault("sweeper.reminder_interval", time.Minute)
	v.SetDefault("sweeper.cleanup_interval", time.Hour)
	v.SetDefault("sweeper.reminder_lead", 30*time.Minute)
	v.SetDefault("sweeper.pause_due_on_snooze", true)
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.log_retention", 30*24*time.Hour)
	v.SetDefault("sweeper.log_ceiling", 10000)
}
