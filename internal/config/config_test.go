package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "fund.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/fund-cli/cache", cfg.Edgar.CacheDir)
	assert.Equal(t, 30, cfg.Edgar.TimeoutSecs)
	assert.Equal(t, 3, cfg.Edgar.MaxRetries)
	assert.InDelta(t, 10.0, cfg.Edgar.RateLimit, 0.001)
	assert.Equal(t, 10, cfg.Edgar.MaxFilings)
	assert.Equal(t, "https://www.sec.gov/files/company_tickers_mf.json", cfg.Edgar.UniverseURL)
	assert.Equal(t, 300, cfg.Sync.AdapterTimeoutSecs)
	assert.True(t, cfg.Sync.ETFOnly)
	assert.Equal(t, "fund_cli", cfg.Metrics.Job)
	assert.Empty(t, cfg.Metrics.PushgatewayURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/funds
log:
  level: debug
  format: console
sync:
  etf_only: false
edgar:
  max_filings: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/funds", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Sync.ETFOnly)
	assert.Equal(t, 4, cfg.Edgar.MaxFilings)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Edgar.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FUND_STORE_DRIVER", "postgres")
	t.Setenv("FUND_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("FUND_EDGAR_USER_AGENT", "Acme Research ops@acme.test")
	t.Setenv("FUND_METRICS_PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Acme Research ops@acme.test", cfg.Edgar.UserAgent)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 30*time.Second, EdgarConfig{TimeoutSecs: 30}.Timeout())
	assert.Equal(t, 5*time.Minute, SyncConfig{AdapterTimeoutSecs: 300}.AdapterTimeout())
}

func validDefaults() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", DatabaseURL: "fund.db"},
		Edgar: EdgarConfig{UserAgent: "test agent@example.com", CacheDir: "/tmp/cache", RateLimit: 10},
	}
}

func TestValidate_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate())
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "mysql"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "edgar.user_agent is required")
	assert.Contains(t, err.Error(), "edgar.cache_dir is required")
	assert.Contains(t, err.Error(), "edgar.rate_limit")
}

func TestValidate_RateLimitCap(t *testing.T) {
	cfg := validDefaults()
	cfg.Edgar.RateLimit = 25

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edgar.rate_limit must be between 0 and 10")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
