package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Worker   WorkerDefaults `mapstructure:"worker"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"` // development, test, production
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

type JWTConfig struct {
	PrivateKey    string        `mapstructure:"private_key"` // Base64-encoded PEM
	PublicKey     string        `mapstructure:"public_key"`  // Base64-encoded PEM
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
	Issuer        string        `mapstructure:"issuer"`
}

type CryptoConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"` // base64, decodes to exactly 32 bytes
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"` // used only in production; dev/test reflect the request origin
}

// WorkerDefaults are the timing settings applied to every gateway worker;
// Gateway rows carry no timing fields of their own (§6's COMMAND_TIMEOUT/
// ACQUISITION_TIMEOUT/HEARTBEAT_INTERVAL inputs, shared by all the workers
// one process runs).
type WorkerDefaults struct {
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	AcquisitionTimeout time.Duration `mapstructure:"acquisition_timeout"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
}

// IsProduction reports whether CORS should enforce the allow-list instead of
// reflecting the request origin.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 3200)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.refresh_expiry", 7*24*time.Hour)
	v.SetDefault("jwt.issuer", "vibrowatch")

	v.SetDefault("cors.allow_origins", []string{})

	v.SetDefault("worker.command_timeout", 30*time.Second)
	v.SetDefault("worker.acquisition_timeout", 60*time.Second)
	v.SetDefault("worker.heartbeat_interval", 30*time.Second)
	v.SetDefault("worker.connect_timeout", 10*time.Second)

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envMap := map[string]string{
		"database.url":               "DATABASE_URL",
		"jwt.private_key":            "JWT_PRIVATE_KEY",
		"jwt.public_key":             "JWT_PUBLIC_KEY",
		"jwt.issuer":                 "JWT_ISSUER",
		"crypto.encryption_key":      "ENCRYPTION_KEY",
		"server.port":                "API_PORT",
		"server.environment":         "NODE_ENV",
		"worker.command_timeout":     "COMMAND_TIMEOUT",
		"worker.acquisition_timeout": "ACQUISITION_TIMEOUT",
		"worker.heartbeat_interval":  "HEARTBEAT_INTERVAL",
	}

	for key, env := range envMap {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// CORS_ORIGIN is a comma-separated list; viper's env binding doesn't
	// split a scalar string into a slice, so it's parsed directly.
	if raw := os.Getenv("CORS_ORIGIN"); raw != "" {
		origins := strings.Split(raw, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		cfg.CORS.AllowOrigins = origins
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
		return nil, fmt.Errorf("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required")
	}
	if cfg.Crypto.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return &cfg, nil
}
