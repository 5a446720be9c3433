// Package config loads service configuration from a YAML file and the
// environment via viper. Environment variables win over file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for walletd.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis" json:"redis"`
	Actor    ActorConfig    `yaml:"actor" mapstructure:"actor" json:"actor"`
	Gateways GatewaysConfig `yaml:"gateways" mapstructure:"gateways" json:"gateways"`
	LogLevel string         `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host" json:"host"`
	Port            int           `yaml:"port" mapstructure:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" mapstructure:"dsn" json:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig holds the optional balance-cache settings. An empty address
// disables the cache entirely.
type RedisConfig struct {
	Address  string        `yaml:"address" mapstructure:"address" json:"address"`
	Password string        `yaml:"password" mapstructure:"password" json:"-"`
	DB       int           `yaml:"db" mapstructure:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl" json:"ttl"`
}

// ActorConfig identifies the system actor used for unattended writes.
type ActorConfig struct {
	SystemActorID string `yaml:"system_actor_id" mapstructure:"system_actor_id" json:"system_actor_id"`
}

// GatewaysConfig holds per-gateway credentials and the shared call timeout.
type GatewaysConfig struct {
	CallTimeout time.Duration    `yaml:"call_timeout" mapstructure:"call_timeout" json:"call_timeout"`
	Stripe      StripeConfig     `yaml:"stripe" mapstructure:"stripe" json:"stripe"`
	BinancePay  BinancePayConfig `yaml:"binance_pay" mapstructure:"binance_pay" json:"binance_pay"`
	Iyzico      IyzicoConfig     `yaml:"iyzico" mapstructure:"iyzico" json:"iyzico"`
}

// StripeConfig holds Stripe API credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" mapstructure:"secret_key" json:"-"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret" json:"-"`
}

// BinancePayConfig holds Binance Pay API credentials.
type BinancePayConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key" json:"-"`
	APISecret   string `yaml:"api_secret" mapstructure:"api_secret" json:"-"`
	ReturnURL   string `yaml:"return_url" mapstructure:"return_url" json:"return_url"`
	MerchantID  string `yaml:"merchant_id" mapstructure:"merchant_id" json:"merchant_id"`
	Environment string `yaml:"environment" mapstructure:"environment" json:"environment"`
}

// IyzicoConfig holds Iyzico API credentials.
type IyzicoConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key" json:"-"`
	APISecret string `yaml:"api_secret" mapstructure:"api_secret" json:"-"`
}

// Load reads configuration with defaults, an optional config.yaml and
// WALLETD_* environment overrides (e.g. WALLETD_DATABASE_DSN).
func Load() (*Config, error) {
	v := viper.New()

	// Keys without file values are only visible to Unmarshal when they have
	// a default, so every env-overridable key gets one, secrets included.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("actor.system_actor_id", "")
	v.SetDefault("gateways.call_timeout", 15*time.Second)
	v.SetDefault("gateways.stripe.secret_key", "")
	v.SetDefault("gateways.stripe.webhook_secret", "")
	v.SetDefault("gateways.binance_pay.base_url", "https://bpay.binanceapi.com")
	v.SetDefault("gateways.binance_pay.api_key", "")
	v.SetDefault("gateways.binance_pay.api_secret", "")
	v.SetDefault("gateways.iyzico.base_url", "https://api.iyzipay.com")
	v.SetDefault("gateways.iyzico.api_key", "")
	v.SetDefault("gateways.iyzico.api_secret", "")
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/walletd")

	v.SetEnvPrefix("WALLETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	return cfg, nil
}
