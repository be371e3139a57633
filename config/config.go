package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; every key can also come from
// the environment.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"` // empty disables the Redis activity store
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// E-book access control settings.
	EbookPath           string `mapstructure:"EBOOK_PATH"`
	EbookFilename       string `mapstructure:"EBOOK_FILENAME"`
	ReadingBaseURL      string `mapstructure:"READING_BASE_URL"`
	TokenTTLHours       int    `mapstructure:"TOKEN_TTL_HOURS"`
	SessionTTLMinutes   int    `mapstructure:"SESSION_TTL_MINUTES"`
	SweepIntervalMinute int    `mapstructure:"SWEEP_INTERVAL_MINUTES"`
}

// TokenTTL is the absolute reading-token lifetime. Never extended by
// activity.
func (c *ServerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// SessionWindow is the inactivity span after which a session counts as idle.
func (c *ServerConfig) SessionWindow() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SweepInterval is how often the background expiry sweep runs.
func (c *ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinute) * time.Minute
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/pr-book/")
	v.AddConfigPath("$HOME/.pr-book")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "5000")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/pr_book_dev")
	v.SetDefault("MONGO_DB_NAME", "pr_book_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "pr-book-server")
	v.SetDefault("EBOOK_PATH", "private/E-book.pdf")
	v.SetDefault("EBOOK_FILENAME", "The-Science-of-Public-Relations.pdf")
	v.SetDefault("READING_BASE_URL", "http://localhost:5000")
	v.SetDefault("TOKEN_TTL_HOURS", 24)
	v.SetDefault("SESSION_TTL_MINUTES", 120)
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 5)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
