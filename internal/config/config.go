package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Edgar   EdgarConfig   `yaml:"edgar" mapstructure:"edgar"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EdgarConfig configures the SEC EDGAR client.
type EdgarConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	CacheDir    string  `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UniverseURL string  `yaml:"universe_url" mapstructure:"universe_url"`
	MaxFilings  int     `yaml:"max_filings" mapstructure:"max_filings"`

	// Base URL overrides; empty means the public SEC hosts.
	SubmissionsURL string `yaml:"submissions_url" mapstructure:"submissions_url"`
	ArchivesURL    string `yaml:"archives_url" mapstructure:"archives_url"`
}

// Timeout returns the per-request timeout.
func (c EdgarConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SyncConfig configures the incremental fund sync.
type SyncConfig struct {
	AdapterTimeoutSecs int  `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`
	ETFOnly            bool `yaml:"etf_only" mapstructure:"etf_only"`
}

// AdapterTimeout returns the bound applied to each upstream call made on behalf of an adapter.
func (c SyncConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSecs) * time.Second
}

// MetricsConfig configures the optional Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fund.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("edgar.user_agent", "Sells Advisors fund-cli admin@sellsadvisors.com")
	v.SetDefault("edgar.cache_dir", "/tmp/fund-cli/cache")
	v.SetDefault("edgar.timeout_secs", 30)
	v.SetDefault("edgar.max_retries", 3)
	v.SetDefault("edgar.rate_limit", 10)
	v.SetDefault("edgar.universe_url", "https://www.sec.gov/files/company_tickers_mf.json")
	v.SetDefault("edgar.max_filings", 10)
	v.SetDefault("edgar.submissions_url", "")
	v.SetDefault("edgar.archives_url", "")
	v.SetDefault("sync.adapter_timeout_secs", 300)
	v.SetDefault("sync.etf_only", true)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "fund_cli")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that must be present before a run can start.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if strings.TrimSpace(c.Edgar.UserAgent) == "" {
		problems = append(problems, "edgar.user_agent is required")
	}
	if c.Edgar.CacheDir == "" {
		problems = append(problems, "edgar.cache_dir is required")
	}
	if c.Edgar.RateLimit <= 0 || c.Edgar.RateLimit > 10 {
		// SEC fair access policy caps automated clients at 10 requests per second.
		problems = append(problems, "edgar.rate_limit must be between 0 and 10")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
