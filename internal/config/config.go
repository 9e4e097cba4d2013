package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strategylab/internal/domain"
	"strategylab/internal/validate"
)

// DefaultPath is used when neither --config nor STRATEGYLAB_CONFIG is set.
const DefaultPath = "config/strategylab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for strategylab.
type Config struct {
	Storage    Storage                   `yaml:"storage"`
	Logging    Logging                   `yaml:"logging"`
	Alpaca     Alpaca                    `yaml:"alpaca"`
	Gather     GatherConfig              `yaml:"gather"`
	Backtest   BacktestConfig            `yaml:"backtest"`
	Validation domain.ValidationCriteria `yaml:"validation"`
	AI         AIConfig                  `yaml:"ai"`
	Metrics    MetricsConfig             `yaml:"metrics"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and the market data endpoint.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// GatherConfig controls daily bar downloads.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// BacktestConfig holds simulation defaults.
type BacktestConfig struct {
	Market         string   `yaml:"market"`
	Symbols        []string `yaml:"symbols"`
	InitialCapital float64  `yaml:"initial_capital"`
	CommissionRate float64  `yaml:"commission_rate"`
	MaxPositionPct float64  `yaml:"max_position_pct"`
	LookbackDays   int      `yaml:"lookback_days"`
	WindowDays     int      `yaml:"window_days"`
	StepDays       int      `yaml:"step_days"`
	Concurrency    int      `yaml:"concurrency"`
}

// AIConfig controls the insight provider and its resilience wrappers.
type AIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	RedisAddr       string        `yaml:"redis_addr"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// MetricsConfig controls the prometheus textfile snapshot.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path resolves the configuration file path from an explicit flag value,
// then STRATEGYLAB_CONFIG, then DefaultPath.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("STRATEGYLAB_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a Config built from defaults and environment overrides
// only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// applyDefaults fills zero-valued fields.
func applyDefaults(cfg *Config) {
	setString(&cfg.Storage.DataDir, "data")
	setString(&cfg.Storage.SQLitePath, "data/strategylab.db")
	setString(&cfg.Logging.Level, "info")
	setString(&cfg.Logging.Format, "text")
	setString(&cfg.Alpaca.DataURL, "https://data.alpaca.markets")

	setString(&cfg.Gather.StartDate, "2020-01-01")
	setInt(&cfg.Gather.BatchSize, 100)
	setInt(&cfg.Gather.RateLimitPerMin, 200)
	setInt(&cfg.Gather.MaxAttempts, 3)

	setString(&cfg.Backtest.Market, string(domain.MarketUS))
	cfg.Backtest.Market = strings.ToLower(cfg.Backtest.Market)
	setFloat(&cfg.Backtest.InitialCapital, 1_000_000)
	setFloat(&cfg.Backtest.CommissionRate, 0.0015)
	setFloat(&cfg.Backtest.MaxPositionPct, 0.10)
	setInt(&cfg.Backtest.LookbackDays, 120)
	setInt(&cfg.Backtest.WindowDays, 180)
	setInt(&cfg.Backtest.StepDays, 30)
	setInt(&cfg.Backtest.Concurrency, 4)

	if cfg.Validation == (domain.ValidationCriteria{}) {
		cfg.Validation = validate.DefaultCriteria()
	}

	setInt(&cfg.AI.RateLimitPerMin, 60)
	setInt(&cfg.AI.MaxAttempts, 3)
	if cfg.AI.RetryBaseDelay == 0 {
		cfg.AI.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.AI.BreakerFailures == 0 {
		cfg.AI.BreakerFailures = 5
	}
	if cfg.AI.BreakerTimeout == 0 {
		cfg.AI.BreakerTimeout = 30 * time.Second
	}
	if cfg.AI.CacheTTL == 0 {
		cfg.AI.CacheTTL = 24 * time.Hour
	}
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setFloat(p *float64, v float64) {
	if *p == 0 {
		*p = v
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.AI.RedisAddr = v
	}

	// Standard Alpaca env vars take precedence; the SDK reads the same names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
