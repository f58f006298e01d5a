package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	ServerAddress string
	Environment   string
	Database      DatabaseConfig
	Migration     MigrationConfig
	Log           LogConfig
	Fund          FundConfig
	Admission     AdmissionConfig
	Audit         AuditConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	Params          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MigrationConfig struct {
	Dir string
}

type LogConfig struct {
	Level  string
	Format string
}

// FundConfig holds the fund-wide figures injected into the balance aggregator.
type FundConfig struct {
	MinBalanceThreshold decimal.Decimal
	Currency            string
	// EnforceReserve makes admission reject expenses that would leave the
	// balance below MinBalanceThreshold instead of only below zero.
	EnforceReserve bool
}

type AdmissionConfig struct {
	MaxRetries     int
	Timeout        time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type AuditConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
	// TrustedProxies lists the peers whose X-Forwarded-For is believed.
	// Empty means every client is identified by its socket address.
	TrustedProxies []netip.Prefix
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_NAME", "fund")
	v.SetDefault("DB_PARAMS", "parseTime=true")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("MIGRATION_DIR", "migrations")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("FUND_MIN_BALANCE_THRESHOLD", "3600")
	v.SetDefault("FUND_CURRENCY", "SAR")
	v.SetDefault("FUND_ENFORCE_RESERVE", false)
	v.SetDefault("ADMISSION_MAX_RETRIES", 3)
	v.SetDefault("ADMISSION_TIMEOUT", 5*time.Second)
	v.SetDefault("ADMISSION_BACKOFF_INITIAL", 50*time.Millisecond)
	v.SetDefault("ADMISSION_BACKOFF_MAX", time.Second)
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_WRITE_TIMEOUT", 5*time.Second)
	v.SetDefault("JWT_ISSUER", "fund-balance-service")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
}

// LoadConfig reads .env (when present) and the process environment.
// Environment variables win over the file.
func LoadConfig() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	threshold, err := decimal.NewFromString(v.GetString("FUND_MIN_BALANCE_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("invalid FUND_MIN_BALANCE_THRESHOLD: %w", err)
	}

	proxies, err := ParseTrustedProxies(v.GetString("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddress: v.GetString("SERVER_ADDRESS"),
		Environment:   v.GetString("ENVIRONMENT"),
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			Params:          v.GetString("DB_PARAMS"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Migration: MigrationConfig{
			Dir: v.GetString("MIGRATION_DIR"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Fund: FundConfig{
			MinBalanceThreshold: threshold,
			Currency:            v.GetString("FUND_CURRENCY"),
			EnforceReserve:      v.GetBool("FUND_ENFORCE_RESERVE"),
		},
		Admission: AdmissionConfig{
			MaxRetries:     v.GetInt("ADMISSION_MAX_RETRIES"),
			Timeout:        v.GetDuration("ADMISSION_TIMEOUT"),
			BackoffInitial: v.GetDuration("ADMISSION_BACKOFF_INITIAL"),
			BackoffMax:     v.GetDuration("ADMISSION_BACKOFF_MAX"),
		},
		Audit: AuditConfig{
			QueueSize:    v.GetInt("AUDIT_QUEUE_SIZE"),
			WriteTimeout: v.GetDuration("AUDIT_WRITE_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		RateLimit: RateLimitConfig{
			RPS:            v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:          v.GetInt("RATE_LIMIT_BURST"),
			TrustedProxies: proxies,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTrustedProxies reads a comma separated list of addresses or CIDR
// ranges. A bare address trusts that single host.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks the values that would make the fund engine unsafe to run.
func (c *Config) Validate() error {
	if !c.Fund.MinBalanceThreshold.IsPositive() {
		return errors.New("FUND_MIN_BALANCE_THRESHOLD must be positive")
	}
	if c.Fund.Currency == "" {
		return errors.New("FUND_CURRENCY is required")
	}
	if c.Admission.MaxRetries < 0 {
		return errors.New("ADMISSION_MAX_RETRIES must not be negative")
	}
	if c.Admission.Timeout <= 0 {
		return errors.New("ADMISSION_TIMEOUT must be positive")
	}
	if c.Audit.QueueSize <= 0 {
		return errors.New("AUDIT_QUEUE_SIZE must be positive")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	return nil
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations. Migration
// files hold several statements, so multiStatements is always on.
func (c *Config) GetMigrationDBURL() string {
	params := "multiStatements=true"
	if c.Database.Params != "" {
		params = c.Database.Params + "&" + params
	}
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		params,
	)
}
