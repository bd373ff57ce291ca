// Package config loads the settings of a go-ui-tasks application.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	UI      UIConfig      `mapstructure:"ui" validate:"required"`
	Pool    PoolConfig    `mapstructure:"pool" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Blocker BlockerConfig `mapstructure:"blocker" validate:"required"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// UIConfig configures the UI goroutine.
type UIConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	QueueSize int    `mapstructure:"queue_size" validate:"gt=0"`
}

// PoolConfig sizes the worker pool that runs task bodies.
type PoolConfig struct {
	CoreSize  int           `mapstructure:"core_size" validate:"gte=0"`
	MaxSize   int           `mapstructure:"max_size" validate:"gt=0,gtefield=CoreSize"`
	KeepAlive time.Duration `mapstructure:"keep_alive" validate:"gte=0"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// BlockerConfig configures the default input blocker.
type BlockerConfig struct {
	// LogLevel is the level of block and unblock log lines.
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Namespace    string        `mapstructure:"namespace" validate:"required_if=Enabled true"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
}

// Default returns the configuration used when nothing else is given:
// 3 core workers, up to 10 workers, one second keep-alive.
func Default() Config {
	return Config{
		UI:      UIConfig{Name: "ui", QueueSize: 1024},
		Pool:    PoolConfig{CoreSize: 3, MaxSize: 10, KeepAlive: time.Second},
		Log:     LogConfig{Level: "info", Format: "json"},
		Blocker: BlockerConfig{LogLevel: "debug"},
		Metrics: MetricsConfig{Namespace: "uitask", PollInterval: 5 * time.Second},
	}
}
