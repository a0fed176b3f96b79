// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Import  ImportConfig  `mapstructure:"import"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// ImportConfig governs the import pipeline.
type ImportConfig struct {
	BatchSize        int    `mapstructure:"batch_size"`
	EmitEveryLines   int64  `mapstructure:"emit_every_lines"`
	EmitIntervalMs   int    `mapstructure:"emit_interval_ms"`
	UploadDir        string `mapstructure:"upload_dir"`
	MaxUploadBytes   int64  `mapstructure:"max_upload_bytes"`
	SubscriberBuffer int    `mapstructure:"subscriber_buffer"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// CRAWLSCOPE_ prefix with dots replaced by underscores, e.g. CRAWLSCOPE_DB_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 15)
	// Keys without a meaningful default still need registering so
	// AutomaticEnv can populate them through Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("import.upload_dir", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("import.batch_size", 5000)
	v.SetDefault("import.emit_every_lines", 1000)
	v.SetDefault("import.emit_interval_ms", 500)
	v.SetDefault("import.max_upload_bytes", int64(1<<30))
	v.SetDefault("import.subscriber_buffer", 64)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("import.batch_size must be > 0")
	}
	if c.Import.EmitEveryLines <= 0 {
		return fmt.Errorf("import.emit_every_lines must be > 0")
	}
	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("import.max_upload_bytes must be > 0")
	}
	return nil
}

// EmitInterval converts the configured emission cadence to a duration.
func (c Config) EmitInterval() time.Duration {
	return time.Duration(c.Import.EmitIntervalMs) * time.Millisecond
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// ConnLifetime converts the pool connection lifetime to a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.ConnLifetimeMin) * time.Minute
}
