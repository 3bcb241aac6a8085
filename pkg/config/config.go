package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// CallbackVariant selects which of the two supported LNURL-pay endpoint
// shapes the server exposes.
type CallbackVariant string

const (
	// VariantCombined serves both protocol phases on the same route; the
	// phase-1 callback is the literal request URL.
	VariantCombined CallbackVariant = "combined"
	// VariantCallback serves phase 2 on a dedicated /callback sub-route.
	VariantCallback CallbackVariant = "callback"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	GraphQL    GraphQLConfig    `mapstructure:"graphql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Nostr      NostrConfig      `mapstructure:"nostr"`
	Pay        PayConfig        `mapstructure:"pay"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GraphQLConfig contains settings for the wallet backend GraphQL API,
// which serves both account directory lookups and invoice issuance.
type GraphQLConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains connection settings for the ephemeral zap-note store.
// Only used when nostr.pubkey is configured.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NostrConfig contains Nostr zap settings. A non-empty Pubkey enables zap
// support deployment-wide.
type NostrConfig struct {
	Pubkey string `mapstructure:"pubkey"`
}

// PayConfig contains LNURL-pay protocol settings
type PayConfig struct {
	CallbackVariant CallbackVariant `mapstructure:"callback_variant"`
	MinSendable     int64           `mapstructure:"min_sendable"`
	MaxSendable     int64           `mapstructure:"max_sendable"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Wallet backend defaults
	viper.SetDefault("graphql.timeout", "30s")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// LNURL-pay defaults. The sendable bounds are advertised to payer
	// wallets in the phase-1 response, in millisatoshi.
	viper.SetDefault("pay.callback_variant", string(VariantCombined))
	viper.SetDefault("pay.min_sendable", 1000)
	viper.SetDefault("pay.max_sendable", 100_000_000_000)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.GraphQL.URL == "" {
		return fmt.Errorf("graphql.url is required")
	}
	switch config.Pay.CallbackVariant {
	case VariantCombined, VariantCallback:
	default:
		return fmt.Errorf("pay.callback_variant must be %q or %q", VariantCombined, VariantCallback)
	}
	if config.Pay.MinSendable <= 0 || config.Pay.MaxSendable < config.Pay.MinSendable {
		return fmt.Errorf("pay.min_sendable/pay.max_sendable out of range")
	}
	if config.Nostr.Pubkey != "" && config.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when nostr.pubkey is set")
	}
	return nil
}
