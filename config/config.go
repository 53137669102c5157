// Package config loads backtester settings from defaults, an optional
// YAML/JSON/TOML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

// EnvPrefix namespaces environment overrides: backtest.initial_capital is
// read from BACKTEST_BACKTEST_INITIAL_CAPITAL, data.provider from
// BACKTEST_DATA_PROVIDER. Infrastructure settings also accept the plain
// names listed in envAliases.
const EnvPrefix = "BACKTEST"

const dateLayout = "2006-01-02"

// Providers accepted by data.provider.
var Providers = []string{"csv", "angel", "sqlite", "clickhouse"}

// Config holds all application configuration.
type Config struct {
	Backtest   backtest.Config `mapstructure:"backtest"`
	Strategy   strategy.Params `mapstructure:"strategy"`
	Strategies []string        `mapstructure:"strategies"`
	Watchlist  []string        `mapstructure:"watchlist"`

	Data       DataConfig       `mapstructure:"data"`
	Angel      AngelConfig      `mapstructure:"angel"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Log        LogConfig        `mapstructure:"log"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	GatewayAddr string `mapstructure:"gateway_addr"`
	Concurrency int    `mapstructure:"concurrency"`
}

// DataConfig selects where bars come from and how fetches are retried.
type DataConfig struct {
	Provider   string        `mapstructure:"provider"`
	CSVDir     string        `mapstructure:"csv_dir"`
	Start      string        `mapstructure:"start"` // YYYY-MM-DD, empty = open
	End        string        `mapstructure:"end"`
	Cache      bool          `mapstructure:"cache"` // read-through SQLite cache
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AngelConfig holds Angel One SmartAPI credentials.
type AngelConfig struct {
	APIKey     string `mapstructure:"api_key"`
	ClientCode string `mapstructure:"client_code"`
	Password   string `mapstructure:"password"`
	TOTPSecret string `mapstructure:"totp_secret"`
	Exchange   string `mapstructure:"exchange"`
	Interval   string `mapstructure:"interval"`
	// Tokens maps watchlist symbols to SmartAPI instrument tokens.
	Tokens map[string]string `mapstructure:"tokens"`
}

// Configured reports whether login credentials are present.
func (a AngelConfig) Configured() bool {
	return a.APIKey != "" && a.ClientCode != "" && a.Password != "" && a.TOTPSecret != ""
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	WebhookURL     string `mapstructure:"webhook_url"`
}

// MonitorConfig drives the latest-signal checker.
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`     // 0 = run once
	HistoryDays int           `mapstructure:"history_days"` // calendar days fetched per check
	Lookback    int           `mapstructure:"lookback"`     // recent bars searched for a signal
	Strategy    string        `mapstructure:"strategy"`
	Calendar    string        `mapstructure:"calendar"` // "nse" or "none"
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envAliases binds the unprefixed variable names used by deployments.
var envAliases = map[string]string{
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"sqlite.path":             "SQLITE_PATH",
	"metrics_addr":            "METRICS_ADDR",
	"clickhouse.addr":         "CLICKHOUSE_ADDR",
	"clickhouse.password":     "CLICKHOUSE_PASSWORD",
	"angel.api_key":           "ANGEL_API_KEY",
	"angel.client_code":       "ANGEL_CLIENT_CODE",
	"angel.password":          "ANGEL_PASSWORD",
	"angel.totp_secret":       "ANGEL_TOTP_SECRET",
	"notify.telegram_token":   "TELEGRAM_BOT_TOKEN",
	"notify.telegram_chat_id": "TELEGRAM_CHAT_ID",
	"notify.webhook_url":      "WEBHOOK_URL",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backtest:   backtest.DefaultConfig(),
		Strategy:   strategy.DefaultParams(),
		Strategies: []string{"turtle"},
		Data: DataConfig{
			Provider:   "csv",
			CSVDir:     "data",
			Retries:    3,
			RetryDelay: time.Second,
			Timeout:    30 * time.Second,
		},
		Angel:       AngelConfig{Exchange: "NSE", Interval: "ONE_DAY"},
		Redis:       RedisConfig{Addr: "localhost:6379"},
		SQLite:      SQLiteConfig{Path: "data/bars.db"},
		ClickHouse:  ClickHouseConfig{Addr: "localhost:9000", Database: "default", Username: "default", Table: "bars_daily"},
		Monitor:     MonitorConfig{HistoryDays: 365, Lookback: 5, Strategy: "turtle", Calendar: "nse"},
		Log:         LogConfig{Level: "info", Format: "json"},
		MetricsAddr: ":9090",
		GatewayAddr: ":8090",
		Concurrency: 4,
	}
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		log.Printf("[config] loaded %s", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Watchlist = splitList(cfg.Watchlist)
	cfg.Strategies = splitList(cfg.Strategies)
	cfg.Angel.Tokens = upperKeys(cfg.Angel.Tokens)
	return &cfg, nil
}

// upperKeys undoes viper's key lowercasing so tokens match watchlist symbols.
func upperKeys(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// setDefaults registers every leaf of def so that AutomaticEnv can override
// nested keys.
func setDefaults(v *viper.Viper, def Config) error {
	var tree map[string]any
	if err := mapstructure.Decode(def, &tree); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch sub := val.(type) {
			case map[string]any:
				walk(key, sub)
			default:
				v.SetDefault(key, val)
			}
		}
	}
	walk("", tree)
	v.SetDefault("watchlist", []string{})
	return nil
}

// splitList accepts both YAML lists and a single comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Engine returns the backtest settings with the unit cap and stop distance
// taken from the strategy section, so sizing, strategy stops and engine
// stops use the same values.
func (c *Config) Engine() backtest.Config {
	b := c.Backtest
	b.PyramidCap = c.Strategy.PyramidCap
	b.StopMultiple = c.Strategy.StopMultiple
	return b
}

// Range parses data.start / data.end into a model.Range.
func (c *Config) Range() (model.Range, error) {
	var rng model.Range
	var err error
	if c.Data.Start != "" {
		if rng.From, err = time.Parse(dateLayout, c.Data.Start); err != nil {
			return rng, invalid("data.start %q: %v", c.Data.Start, err)
		}
	}
	if c.Data.End != "" {
		if rng.To, err = time.Parse(dateLayout, c.Data.End); err != nil {
			return rng, invalid("data.end %q: %v", c.Data.End, err)
		}
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return rng, invalid("data.end %s is before data.start %s", c.Data.End, c.Data.Start)
	}
	return rng, nil
}

// Validate checks the engine settings, strategy names, data source and
// date range. Errors wrap model.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if len(c.Strategies) == 0 {
		return invalid("at least one strategy is required")
	}
	names := strategy.Names()
	for _, s := range append(slices.Clone(c.Strategies), c.Monitor.Strategy) {
		if !slices.Contains(names, s) {
			return invalid("unknown strategy %q (known: %s)", s, strings.Join(names, ", "))
		}
	}
	if !slices.Contains(Providers, c.Data.Provider) {
		return invalid("unknown data.provider %q", c.Data.Provider)
	}
	if c.Data.Provider == "angel" && !c.Angel.Configured() {
		return invalid("angel provider needs ANGEL_API_KEY, ANGEL_CLIENT_CODE, ANGEL_PASSWORD and ANGEL_TOTP_SECRET")
	}
	if c.Data.Retries < 0 {
		return invalid("data.retries must be >= 0, got %d", c.Data.Retries)
	}
	if c.Concurrency < 1 {
		return invalid("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.Monitor.Lookback < 1 {
		return invalid("monitor.lookback must be >= 1, got %d", c.Monitor.Lookback)
	}
	if c.Monitor.Calendar != "nse" && c.Monitor.Calendar != "none" {
		return invalid("monitor.calendar must be nse or none, got %q", c.Monitor.Calendar)
	}
	if c.Monitor.HistoryDays < 30 {
		return invalid("monitor.history_days must be >= 30, got %d", c.Monitor.HistoryDays)
	}
	_, err := c.Range()
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidConfiguration}, args...)...)
}
