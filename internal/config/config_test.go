package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"usagemeter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

// captureLogs routes the default slog logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s
  write_timeout: 15s
  idle_timeout: 90s

quota:
  daily_limit: 5
  backend: "redis"
  store_timeout: 250ms
  key_prefix: "test:quota:"
  redis:
    addr: "redis:6379"
    db: 2
    pool_size: 20

ledger:
  default_credits: 500
  cookie_name: "credits"
  cookie_max_age: 720h
  cookie_secure: false
  dev_mode: true

payment:
  provider: "static"
  timeout: 2s
  static:
    - reference: "pay_1"
      status: "paid"
      credits: 100
    - reference: "pay_2"
      status: "unpaid"

logging:
  level: "debug"
  format: "text"
  output: "stderr"

metrics:
  enabled: true
  path: "/prom"
  port: 9191

observability:
  service_name: "usagemeter-test"
  tracing:
    enabled: true
    exporter: "stdout"
    sample_rate: 0.5
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 90*time.Second, config.Server.IdleTimeout)

	// Verify quota config
	assert.Equal(t, 5, config.Quota.DailyLimit)
	assert.Equal(t, models.QuotaBackendRedis, config.Quota.Backend)
	assert.Equal(t, 250*time.Millisecond, config.Quota.StoreTimeout)
	assert.Equal(t, "test:quota:", config.Quota.KeyPrefix)
	assert.Equal(t, "redis:6379", config.Quota.Redis.Addr)
	assert.Equal(t, 2, config.Quota.Redis.DB)
	assert.Equal(t, 20, config.Quota.Redis.PoolSize)

	// Verify ledger config
	assert.Equal(t, int64(500), config.Ledger.DefaultCredits)
	assert.Equal(t, "credits", config.Ledger.CookieName)
	assert.Equal(t, 720*time.Hour, config.Ledger.CookieMaxAge)
	assert.False(t, config.Ledger.CookieSecure)
	assert.True(t, config.Ledger.DevMode)

	// Verify payment config
	assert.Equal(t, models.PaymentProviderStatic, config.Payment.Provider)
	assert.Equal(t, 2*time.Second, config.Payment.Timeout)
	require.Len(t, config.Payment.Static, 2)
	assert.Equal(t, "pay_1", config.Payment.Static[0].Reference)
	assert.Equal(t, "paid", config.Payment.Static[0].Status)
	assert.Equal(t, int64(100), config.Payment.Static[0].Credits)
	assert.Equal(t, "unpaid", config.Payment.Static[1].Status)

	// Verify logging, metrics and tracing
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "stderr", config.Logging.Output)
	assert.Equal(t, "/prom", config.Metrics.Path)
	assert.Equal(t, 9191, config.Metrics.Port)
	assert.Equal(t, "usagemeter-test", config.Observability.ServiceName)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, 0.5, config.Observability.Tracing.SampleRate)
}

func TestLoad_WithDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 3, config.Quota.DailyLimit)
	assert.Equal(t, models.QuotaBackendMemory, config.Quota.Backend)
	assert.Equal(t, int64(10000), config.Ledger.DefaultCredits)
	assert.Equal(t, "ledger", config.Ledger.CookieName)
	assert.True(t, config.Ledger.DevMode)
	assert.Equal(t, models.PaymentProviderStatic, config.Payment.Provider)
	assert.Equal(t, "info", config.Logging.Level)
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, 9090, config.Metrics.Port)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("USAGEMETER_PORT", "9999")
	t.Setenv("USAGEMETER_HOST", "127.0.0.1")
	t.Setenv("USAGEMETER_QUOTA_DAILY_LIMIT", "7")
	t.Setenv("USAGEMETER_QUOTA_BACKEND", "sqlite")
	t.Setenv("USAGEMETER_DATABASE_DSN", "file:quota.db")
	t.Setenv("USAGEMETER_QUOTA_STORE_TIMEOUT", "1s")
	t.Setenv("USAGEMETER_LEDGER_DEFAULT_CREDITS", "2500")
	t.Setenv("USAGEMETER_LEDGER_SECRET", testSecret)
	t.Setenv("USAGEMETER_LEDGER_DEV_MODE", "false")
	t.Setenv("USAGEMETER_LEDGER_COOKIE_SECURE", "false")
	t.Setenv("USAGEMETER_PAYMENT_PROVIDER", "stripe")
	t.Setenv("USAGEMETER_STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("USAGEMETER_PAYMENT_TIMEOUT", "3s")
	t.Setenv("USAGEMETER_LOG_LEVEL", "warn")
	t.Setenv("USAGEMETER_TRACING_SAMPLE_RATE", "0.25")

	// Config file with different values (should be overridden by env vars)
	configFile := writeConfig(t, `
server:
  port: 8080
  host: "localhost"

quota:
  daily_limit: 3
  backend: "memory"

logging:
  level: "info"
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 7, config.Quota.DailyLimit)
	assert.Equal(t, models.QuotaBackendSQLite, config.Quota.Backend)
	assert.Equal(t, "file:quota.db", config.Quota.Database.DSN)
	assert.Equal(t, time.Second, config.Quota.StoreTimeout)
	assert.Equal(t, int64(2500), config.Ledger.DefaultCredits)
	assert.Equal(t, testSecret, config.Ledger.CookieSecret)
	assert.False(t, config.Ledger.DevMode)
	assert.False(t, config.Ledger.CookieSecure)
	assert.Equal(t, models.PaymentProviderStripe, config.Payment.Provider)
	assert.Equal(t, "sk_test_env", config.Payment.SecretKey)
	assert.Equal(t, 3*time.Second, config.Payment.Timeout)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_InvalidEnvironmentValueIgnored(t *testing.T) {
	logs := captureLogs(t)
	t.Setenv("USAGEMETER_PORT", "not-a-port")
	t.Setenv("USAGEMETER_QUOTA_STORE_TIMEOUT", "soon")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 500*time.Millisecond, config.Quota.StoreTimeout)
	assert.Contains(t, logs.String(), "USAGEMETER_PORT")
	assert.Contains(t, logs.String(), "USAGEMETER_QUOTA_STORE_TIMEOUT")
}

func TestLoad_SecretsInFileWarn(t *testing.T) {
	logs := captureLogs(t)

	configFile := writeConfig(t, `
ledger:
  cookie_secret: "`+testSecret+`"
  dev_mode: false

payment:
  provider: "stripe"
  secret_key: "sk_test_file"
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, testSecret, config.Ledger.CookieSecret)
	assert.Equal(t, "sk_test_file", config.Payment.SecretKey)

	output := logs.String()
	assert.Contains(t, output, "ledger.cookie_secret")
	assert.Contains(t, output, "payment.secret_key")
	assert.NotContains(t, output, testSecret)
	assert.NotContains(t, output, "sk_test_file")
}

func TestLoad_NoSecretWarningsWithoutSecrets(t *testing.T) {
	logs := captureLogs(t)

	configFile := writeConfig(t, "server:\n  port: 8080\n")
	_, err := Load(configFile)
	require.NoError(t, err)

	assert.NotContains(t, logs.String(), "Secret set in config file")
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/non/existent/path.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8080
  invalid: [unclosed array
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	configFile := writeConfig(t, "")

	config, err := Load(configFile)
	require.NoError(t, err)

	// Should have all defaults applied
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, models.QuotaBackendMemory, config.Quota.Backend)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "daily limit too high",
			content: "quota:\n  daily_limit: 10\n",
			errMsg:  "daily limit must be between 1 and 9",
		},
		{
			name:    "redis backend without address",
			content: "quota:\n  backend: redis\n",
			errMsg:  "redis address is required",
		},
		{
			name:    "production mode without secret",
			content: "ledger:\n  dev_mode: false\npayment:\n  provider: stripe\n  secret_key: sk_test\n",
			errMsg:  "cookie secret must be at least",
		},
		{
			name:    "static provider outside dev mode",
			content: "ledger:\n  dev_mode: false\n  cookie_secret: " + testSecret + "\n",
			errMsg:  "static payment provider is only allowed",
		},
		{
			name:    "stripe without key",
			content: "payment:\n  provider: stripe\n",
			errMsg:  "secret key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{value: "true", expected: true},
		{value: "TRUE", expected: true},
		{value: "false", expected: false},
		{value: "yes", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("USAGEMETER_FLAG", tt.value)
			got := !tt.expected
			envBool("FLAG", &got)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unset leaves value", func(t *testing.T) {
		got := true
		envBool("UNSET_FLAG_FOR_TEST", &got)
		assert.True(t, got)
	})
}

func TestSaveExample(t *testing.T) {
	examplePath := filepath.Join(t.TempDir(), "nested", "config.example.yaml")

	require.NoError(t, SaveExample(examplePath))

	data, err := os.ReadFile(examplePath)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "#"))
	assert.Contains(t, content, "backend: redis")
	assert.Contains(t, content, "provider: stripe")
	assert.Contains(t, content, "addr: localhost:6379")
	assert.Contains(t, content, "reference: dev_paid_1")
}
