// Package models - Service configuration and operational settings.
// This file defines the configuration tree for every usagemeter component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, quota, ledger, payment, ...)
// - Defaults that run out of the box with no external services
// - Validation that catches misconfigurations before the server starts
package models

import (
	"errors"
	"fmt"
	"time"
)

// Counter backend constants
const (
	QuotaBackendMemory   = "memory"
	QuotaBackendRedis    = "redis"
	QuotaBackendPostgres = "postgres"
	QuotaBackendSQLite   = "sqlite"
)

// Payment provider constants
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderStatic = "static"
)

// MinCookieSecretLength is the shortest ledger signing secret accepted
// outside of dev mode.
const MinCookieSecretLength = 32

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Quota: Daily free-usage counter and its backing store
// - Ledger: Credit ledger and its client-held carrier cookie
// - Payment: Payment verifier used before crediting
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus scrape endpoint
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Quota         QuotaConfig         `yaml:"quota" json:"quota"`                 // Daily quota counter
	Ledger        LedgerConfig        `yaml:"ledger" json:"ledger"`               // Credit ledger
	Payment       PaymentConfig       `yaml:"payment" json:"payment"`             // Payment verification
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// QuotaConfig configures the daily free-usage counter.
//
// DailyLimit is K: the number of events a client may perform per UTC day.
// Backend selects the counter store; "memory" is only correct within a single
// long-lived process and is the default so the service starts without
// dependencies.
type QuotaConfig struct {
	DailyLimit   int            `yaml:"daily_limit" json:"daily_limit"`
	Backend      string         `yaml:"backend" json:"backend"`
	StoreTimeout time.Duration  `yaml:"store_timeout" json:"store_timeout"`
	KeyPrefix    string         `yaml:"key_prefix" json:"key_prefix"`
	Redis        RedisConfig    `yaml:"redis" json:"redis"`
	Database     DatabaseConfig `yaml:"database" json:"database"`
	Memory       MemoryConfig   `yaml:"memory" json:"memory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type MemoryConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// LedgerConfig configures the credit ledger and the signed cookie that
// carries its state between requests.
type LedgerConfig struct {
	DefaultCredits int64         `yaml:"default_credits" json:"default_credits"`
	CookieName     string        `yaml:"cookie_name" json:"cookie_name"`
	CookieSecret   string        `yaml:"cookie_secret" json:"-"`
	CookieMaxAge   time.Duration `yaml:"cookie_max_age" json:"cookie_max_age"`
	CookieSecure   bool          `yaml:"cookie_secure" json:"cookie_secure"`
	DevMode        bool          `yaml:"dev_mode" json:"dev_mode"`
}

// PaymentConfig configures the verifier consulted before any credit grant.
type PaymentConfig struct {
	Provider           string               `yaml:"provider" json:"provider"`
	SecretKey          string               `yaml:"secret_key" json:"-"`
	APIURL             string               `yaml:"api_url" json:"api_url"`
	CreditsMetadataKey string               `yaml:"credits_metadata_key" json:"credits_metadata_key"`
	Timeout            time.Duration        `yaml:"timeout" json:"timeout"`
	Static             []StaticConfirmation `yaml:"static" json:"static"`
}

// StaticConfirmation seeds the static provider used for local development.
type StaticConfirmation struct {
	Reference string `yaml:"reference" json:"reference"`
	Status    string `yaml:"status" json:"status"`
	Credits   int64  `yaml:"credits" json:"credits"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration that runs with no external services.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory counter backend: single-process quota, no dependencies
// - Static payment provider in dev mode: no real payments are verified
// - Ledger cookie lives for one year
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Quota: QuotaConfig{
			DailyLimit:   3,
			Backend:      QuotaBackendMemory,
			StoreTimeout: 500 * time.Millisecond,
			KeyPrefix:    "usagemeter:quota:",
			Redis: RedisConfig{
				PoolSize: 10,
			},
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Memory: MemoryConfig{
				MaxEntries: 100000,
			},
		},
		Ledger: LedgerConfig{
			DefaultCredits: 10000,
			CookieName:     "ledger",
			CookieMaxAge:   365 * 24 * time.Hour,
			CookieSecure:   true,
			DevMode:        true,
		},
		Payment: PaymentConfig{
			Provider:           PaymentProviderStatic,
			CreditsMetadataKey: "credits",
			Timeout:            5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "usagemeter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("invalid quota config: %w", err)
	}

	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("invalid ledger config: %w", err)
	}

	if err := c.Payment.Validate(); err != nil {
		return fmt.Errorf("invalid payment config: %w", err)
	}

	if c.Payment.Provider == PaymentProviderStatic && !c.Ledger.DevMode {
		return errors.New("static payment provider is only allowed in ledger dev mode")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (qc *QuotaConfig) Validate() error {
	if qc.DailyLimit < 1 || qc.DailyLimit > 9 {
		return fmt.Errorf("daily limit must be between 1 and 9, got %d", qc.DailyLimit)
	}

	if qc.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}

	switch qc.Backend {
	case QuotaBackendMemory:
		if qc.Memory.MaxEntries < 0 {
			return errors.New("memory max entries cannot be negative")
		}
	case QuotaBackendRedis:
		if qc.Redis.Addr == "" {
			return errors.New("redis address is required when backend is redis")
		}
	case QuotaBackendPostgres, QuotaBackendSQLite:
		if qc.Database.DSN == "" {
			return fmt.Errorf("database DSN is required when backend is %s", qc.Backend)
		}
	default:
		return fmt.Errorf("invalid quota backend: %s", qc.Backend)
	}

	return nil
}

func (lc *LedgerConfig) Validate() error {
	if lc.DefaultCredits <= 0 {
		return errors.New("default credits must be positive")
	}

	if lc.CookieName == "" {
		return errors.New("cookie name cannot be empty")
	}

	if lc.CookieMaxAge <= 0 {
		return errors.New("cookie max age must be positive")
	}

	if !lc.DevMode && len(lc.CookieSecret) < MinCookieSecretLength {
		return fmt.Errorf("cookie secret must be at least %d bytes", MinCookieSecretLength)
	}

	return nil
}

func (pc *PaymentConfig) Validate() error {
	if pc.Timeout <= 0 {
		return errors.New("payment timeout must be positive")
	}

	switch pc.Provider {
	case PaymentProviderStripe:
		if pc.SecretKey == "" {
			return errors.New("secret key is required for the stripe provider")
		}
		if pc.CreditsMetadataKey == "" {
			return errors.New("credits metadata key cannot be empty")
		}
	case PaymentProviderStatic:
		for _, sc := range pc.Static {
			if sc.Reference == "" {
				return errors.New("static confirmation reference cannot be empty")
			}
			switch sc.Status {
			case "paid", "unpaid", "unknown":
			default:
				return fmt.Errorf("invalid static confirmation status: %s", sc.Status)
			}
		}
	default:
		return fmt.Errorf("invalid payment provider: %s", pc.Provider)
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if oc.ServiceName == "" {
		return errors.New("service name is required when tracing is enabled")
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
