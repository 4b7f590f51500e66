// Package config loads process configuration from config.yaml, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/afrarahimemadak/stellarwork"
	"github.com/afrarahimemadak/stellarwork/identity"
)

// EnvPrefix prefixes environment overrides: ledger.network is read from
// STELLARWORK_LEDGER_NETWORK.
const EnvPrefix = "STELLARWORK"

// Agent kinds.
const (
	AgentKeypair = "keypair"
	AgentRemote  = "remote"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Tx       TxConfig       `mapstructure:"tx"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Identity IdentityConfig `mapstructure:"identity"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type LedgerConfig struct {
	// Network is a network name (testnet, public, futurenet) or passphrase.
	Network string `mapstructure:"network"`

	// HorizonURL overrides the network's default Horizon server.
	HorizonURL string `mapstructure:"horizon_url"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type TxConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	BaseFee int64         `mapstructure:"base_fee"`
}

type PaymentConfig struct {
	// USDPerUnit is the fixed fiat value of one native unit.
	USDPerUnit string `mapstructure:"usd_per_unit"`
}

type AgentConfig struct {
	Kind string `mapstructure:"kind"`

	// URL is the signing daemon for the remote agent.
	URL string `mapstructure:"url"`

	// Token is sent as a bearer token to the signing daemon.
	Token string `mapstructure:"token"`

	// Secret is the seed of the keypair agent. Never logged.
	Secret string `mapstructure:"secret"`
}

type IdentityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Lookup  string        `mapstructure:"lookup"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	Store string `mapstructure:"store"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration. file names an explicit config file; when empty,
// config.yaml is looked up in . and ./config and may be absent. A .env file
// in the working directory is loaded into the environment first.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 10)
	v.SetDefault("http.rate_burst", 20)

	v.SetDefault("ledger.network", stellarwork.NetworkTestnet)
	v.SetDefault("ledger.horizon_url", "")
	v.SetDefault("ledger.request_timeout", stellarwork.DefaultTimeouts.RequestTimeout)
	v.SetDefault("ledger.submit_timeout", stellarwork.DefaultTimeouts.SubmitTimeout)
	v.SetDefault("ledger.max_attempts", 3)
	v.SetDefault("ledger.retry_delay", 250*time.Millisecond)

	v.SetDefault("tx.ttl", stellarwork.DefaultTimeouts.TTL)
	v.SetDefault("tx.base_fee", 100)

	v.SetDefault("payment.usd_per_unit", "0.10")

	v.SetDefault("agent.kind", AgentRemote)
	v.SetDefault("agent.url", "http://127.0.0.1:4567")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.secret", "")

	v.SetDefault("identity.base_url", "http://localhost:8000")
	v.SetDefault("identity.lookup", string(identity.StrategyScan))
	v.SetDefault("identity.timeout", 10*time.Second)

	v.SetDefault("session.store", StoreMemory)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := c.Network(); err != nil {
		return err
	}
	if err := c.Timeouts().Validate(); err != nil {
		return err
	}
	if _, err := c.Rate(); err != nil {
		return err
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("%w: ledger.max_attempts must be at least 1", stellarwork.ErrInvalidInput)
	}
	if _, err := identity.ParseStrategy(c.Identity.Lookup); err != nil {
		return err
	}
	switch c.Agent.Kind {
	case AgentKeypair:
		if c.Agent.Secret == "" {
			return fmt.Errorf("%w: agent.secret is required for the keypair agent", stellarwork.ErrInvalidInput)
		}
	case AgentRemote:
		if c.Agent.URL == "" {
			return fmt.Errorf("%w: agent.url is required for the remote agent", stellarwork.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown agent.kind %q", stellarwork.ErrInvalidInput, c.Agent.Kind)
	}
	switch c.Session.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("%w: unknown session.store %q", stellarwork.ErrInvalidInput, c.Session.Store)
	}
	return nil
}

// Network resolves the configured network, applying the Horizon override.
func (c *Config) Network() (stellarwork.NetworkConfig, error) {
	nc, err := stellarwork.GetNetworkConfig(c.Ledger.Network)
	if err != nil {
		return stellarwork.NetworkConfig{}, err
	}
	if c.Ledger.HorizonURL != "" {
		nc.HorizonURL = c.Ledger.HorizonURL
	}
	return nc, nil
}

// Timeouts returns the ledger timeouts and the transaction TTL.
func (c *Config) Timeouts() stellarwork.TimeoutConfig {
	return stellarwork.TimeoutConfig{
		RequestTimeout: c.Ledger.RequestTimeout,
		SubmitTimeout:  c.Ledger.SubmitTimeout,
		TTL:            c.Tx.TTL,
	}
}

// Rate returns the fiat value of one native unit.
func (c *Config) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Payment.USDPerUnit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: payment.usd_per_unit %q: %v", stellarwork.ErrInvalidInput, c.Payment.USDPerUnit, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: payment.usd_per_unit must be positive", stellarwork.ErrInvalidInput)
	}
	return rate, nil
}
