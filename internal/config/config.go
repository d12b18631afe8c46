package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"usagemeter/internal/models"

	"gopkg.in/yaml.v3"
)

const envPrefix = "USAGEMETER_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// secretKeys mirrors the secret-bearing fields so a config file that contains
// them can be flagged.
type secretKeys struct {
	Quota struct {
		Redis struct {
			Password string `yaml:"password"`
		} `yaml:"redis"`
	} `yaml:"quota"`
	Ledger struct {
		CookieSecret string `yaml:"cookie_secret"`
	} `yaml:"ledger"`
	Payment struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"payment"`
}

// warnSecretsInFile logs a warning for each secret found in the YAML data.
// The values are still used; environment variables are preferred.
func warnSecretsInFile(data []byte) {
	var s secretKeys
	if err := yaml.Unmarshal(data, &s); err != nil {
		return
	}
	if s.Quota.Redis.Password != "" {
		slog.Warn("Secret set in config file; prefer the environment variable.", "config_key", "quota.redis.password", "env", envPrefix+"REDIS_PASSWORD")
	}
	if s.Ledger.CookieSecret != "" {
		slog.Warn("Secret set in config file; prefer the environment variable.", "config_key", "ledger.cookie_secret", "env", envPrefix+"LEDGER_SECRET")
	}
	if s.Payment.SecretKey != "" {
		slog.Warn("Secret set in config file; prefer the environment variable.", "config_key", "payment.secret_key", "env", envPrefix+"STRIPE_SECRET_KEY")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnSecretsInFile(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment overrides config with USAGEMETER_* variables.
// Unparsable numbers, durations and booleans are ignored with a warning.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Quota configuration
	envInt("QUOTA_DAILY_LIMIT", &config.Quota.DailyLimit)
	envString("QUOTA_BACKEND", &config.Quota.Backend)
	envDuration("QUOTA_STORE_TIMEOUT", &config.Quota.StoreTimeout)
	envString("QUOTA_KEY_PREFIX", &config.Quota.KeyPrefix)
	envInt("MEMORY_MAX_ENTRIES", &config.Quota.Memory.MaxEntries)

	// Redis configuration
	envString("REDIS_ADDR", &config.Quota.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Quota.Redis.Password)
	envInt("REDIS_DB", &config.Quota.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Quota.Redis.PoolSize)

	// Database configuration
	envString("DATABASE_DSN", &config.Quota.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Quota.Database.MaxOpenConns)
	envDuration("DATABASE_CONN_MAX_LIFETIME", &config.Quota.Database.ConnMaxLifetime)

	// Ledger configuration
	envInt64("LEDGER_DEFAULT_CREDITS", &config.Ledger.DefaultCredits)
	envString("LEDGER_COOKIE_NAME", &config.Ledger.CookieName)
	envString("LEDGER_SECRET", &config.Ledger.CookieSecret)
	envDuration("LEDGER_COOKIE_MAX_AGE", &config.Ledger.CookieMaxAge)
	envBool("LEDGER_COOKIE_SECURE", &config.Ledger.CookieSecure)
	envBool("LEDGER_DEV_MODE", &config.Ledger.DevMode)

	// Payment configuration
	envString("PAYMENT_PROVIDER", &config.Payment.Provider)
	envString("STRIPE_SECRET_KEY", &config.Payment.SecretKey)
	envString("PAYMENT_API_URL", &config.Payment.APIURL)
	envString("PAYMENT_CREDITS_METADATA_KEY", &config.Payment.CreditsMetadataKey)
	envDuration("PAYMENT_TIMEOUT", &config.Payment.Timeout)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("TRACING_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid environment variable", "env", envPrefix+name, "value", v)
		return
	}
	*dst = n
}

func envInt64(name string, dst *int64) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("Ignoring invalid environment variable", "env", envPrefix+name, "value", v)
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring invalid environment variable", "env", envPrefix+name, "value", v)
		return
	}
	*dst = f
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring invalid environment variable", "env", envPrefix+name, "value", v)
		return
	}
	*dst = d
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// A shared counter store and real payment verification, as run in
	// production.
	config.Quota.Backend = models.QuotaBackendRedis
	config.Quota.Redis.Addr = "localhost:6379"
	config.Ledger.DevMode = false
	config.Payment.Provider = models.PaymentProviderStripe
	config.Payment.Static = []models.StaticConfirmation{
		{Reference: "dev_paid_1", Status: "paid", Credits: 10000},
	}

	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	header := "# Secrets are read from USAGEMETER_LEDGER_SECRET and USAGEMETER_STRIPE_SECRET_KEY.\n"
	if err := os.WriteFile(filePath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
