package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Timeout bounds dialing and every command.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig drives commission arithmetic, offer expiry and retry policy.
type LedgerConfig struct {
	// CommissionRate accepts a decimal ("0.01") or a ratio ("1/100").
	CommissionRate           string        `mapstructure:"commission_rate"`
	Currency                 string        `mapstructure:"currency"`
	CurrencyScale            int32         `mapstructure:"currency_scale"`
	OfferValidity            time.Duration `mapstructure:"offer_validity"`
	ExpirySweepInterval      time.Duration `mapstructure:"expiry_sweep_interval"`
	ExpiryBatchSize          int           `mapstructure:"expiry_batch_size"`
	ReleaseCompetingOnAccept bool          `mapstructure:"release_competing_on_accept"`
	Retry                    RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: FCL_ (Freight Commission Ledger).
// Nested keys use underscore: FCL_DATABASE_HOST, FCL_LEDGER_COMMISSION_RATE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "commission_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", "2s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "freight-marketplace")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.commission_rate", "0.01")
	v.SetDefault("ledger.currency", "USD")
	v.SetDefault("ledger.currency_scale", 2)
	v.SetDefault("ledger.offer_validity", "72h")
	v.SetDefault("ledger.expiry_sweep_interval", "1m")
	v.SetDefault("ledger.expiry_batch_size", 100)
	v.SetDefault("ledger.release_competing_on_accept", true)
	v.SetDefault("ledger.retry.max_attempts", 5)
	v.SetDefault("ledger.retry.base_delay", "20ms")
	v.SetDefault("ledger.retry.max_delay", "1s")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: FCL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("FCL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l LedgerConfig) validate() error {
	if strings.TrimSpace(l.CommissionRate) == "" {
		return fmt.Errorf("ledger.commission_rate is required")
	}
	if l.CurrencyScale < 0 || l.CurrencyScale > 8 {
		return fmt.Errorf("ledger.currency_scale must be between 0 and 8, got %d", l.CurrencyScale)
	}
	if l.OfferValidity <= 0 {
		return fmt.Errorf("ledger.offer_validity must be positive")
	}
	if l.Retry.MaxAttempts < 1 {
		return fmt.Errorf("ledger.retry.max_attempts must be at least 1")
	}
	return nil
}
