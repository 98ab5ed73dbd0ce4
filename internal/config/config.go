package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/easygo-dev/token/internal/logging"
	"github.com/easygo-dev/token/internal/metrics"
)

// Supported metrics source variants.
const (
	SourceGraphQL  = "graphql"
	SourceBrowser  = "browser"
	SourceContract = "contract"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Token    TokenConfig    `mapstructure:"token"`
	Zapper   ZapperConfig   `mapstructure:"zapper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
	Baseline BaselineConfig `mapstructure:"baseline"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MonitorConfig governs the poll loop.
type MonitorConfig struct {
	Source        string        `mapstructure:"source"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	Backoff       time.Duration `mapstructure:"backoff"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// TokenConfig identifies the monitored token.
type TokenConfig struct {
	Address string `mapstructure:"address"`
	Network string `mapstructure:"network"`
	Name    string `mapstructure:"name"`
	Symbol  string `mapstructure:"symbol"`
}

// ZapperConfig covers the GraphQL API variant.
type ZapperConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	ClientName     string        `mapstructure:"client_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BrowserConfig covers the headless-browser variant.
type BrowserConfig struct {
	PageURL         string        `mapstructure:"page_url"`
	WaitSelector    string        `mapstructure:"wait_selector"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout"`
	UserDataDir     string        `mapstructure:"user_data_dir"`
}

// EthereumConfig covers the contract-read variant.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	TokenAddress   string        `mapstructure:"token_address"`
	NonCirculating []string      `mapstructure:"non_circulating"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BaselineConfig locates the persisted baseline record.
type BaselineConfig struct {
	Path string `mapstructure:"path"`
}

// AlertingConfig defines thresholds and the Telegram channel.
type AlertingConfig struct {
	PriceThreshold  float64        `mapstructure:"price_threshold"`
	McapThreshold   float64        `mapstructure:"mcap_threshold"`
	SupplyThreshold float64        `mapstructure:"supply_threshold"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds bot credentials and routing.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DatabaseConfig encapsulates the optional alert audit database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tokenmon")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.source", SourceGraphQL)
	v.SetDefault("monitor.backoff", "60s")
	v.SetDefault("monitor.startup_delay", "0s")

	v.SetDefault("token.network", "SHAPE_MAINNET")

	v.SetDefault("zapper.endpoint", "https://zapper.xyz/z/graphql")
	v.SetDefault("zapper.client_name", "web-relay")
	v.SetDefault("zapper.request_timeout", "10s")

	v.SetDefault("browser.navigate_timeout", "45s")
	v.SetDefault("browser.user_data_dir", "/tmp/tokenmon-profile")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("baseline.path", "data.json")

	v.SetDefault("alerting.price_threshold", 5.0)
	v.SetDefault("alerting.mcap_threshold", 5.0)
	v.SetDefault("alerting.supply_threshold", 5.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Monitor.Source {
	case SourceGraphQL, SourceBrowser, SourceContract:
	default:
		return fmt.Errorf("monitor.source must be one of graphql, browser, contract")
	}
	if c.Monitor.Backoff <= 0 {
		return fmt.Errorf("monitor.backoff must be greater than zero")
	}
	if c.Monitor.CheckInterval < 0 {
		return fmt.Errorf("monitor.check_interval cannot be negative")
	}
	if c.Baseline.Path == "" {
		return fmt.Errorf("baseline.path is required")
	}
	if c.Alerting.PriceThreshold < 0 || c.Alerting.McapThreshold < 0 || c.Alerting.SupplyThreshold < 0 {
		return fmt.Errorf("alerting thresholds cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// EffectiveInterval resolves the poll interval, falling back to the
// per-variant default (browser pages refresh faster than the API allows).
func (c *Config) EffectiveInterval() time.Duration {
	if c.Monitor.CheckInterval > 0 {
		return c.Monitor.CheckInterval
	}
	if c.Monitor.Source == SourceBrowser {
		return time.Minute
	}
	return 5 * time.Minute
}

// MetricSpecs returns the ordered tracked-metric specs for the configured
// source variant.
func (c *Config) MetricSpecs() []metrics.Spec {
	if c.Monitor.Source == SourceContract {
		threshold := decimal.NewFromFloat(c.Alerting.SupplyThreshold)
		return []metrics.Spec{
			{
				Name:         metrics.TotalSupply,
				Label:        "Total Supply",
				Emoji:        "🪙",
				ChangeLabel:  "Total Supply Change",
				ChangeEmoji:  "📈",
				Places:       2,
				ThresholdPct: threshold,
			},
			{
				Name:         metrics.CirculatingSupply,
				Label:        "Circulating Supply",
				Emoji:        "🔄",
				ChangeLabel:  "Circulating Supply Change",
				ChangeEmoji:  "📊",
				Places:       2,
				ThresholdPct: threshold,
			},
		}
	}

	return []metrics.Spec{
		{
			Name:         metrics.Price,
			Label:        "Price",
			Unit:         "$",
			Emoji:        "💰",
			ChangeLabel:  "Price Change",
			ChangeEmoji:  "📈",
			Places:       8,
			ThresholdPct: decimal.NewFromFloat(c.Alerting.PriceThreshold),
		},
		{
			Name:         metrics.MarketCap,
			Label:        "Market Cap",
			Unit:         "$",
			Emoji:        "🏦",
			ChangeLabel:  "Market Cap Change",
			ChangeEmoji:  "📊",
			Places:       2,
			ThresholdPct: decimal.NewFromFloat(c.Alerting.McapThreshold),
		},
	}
}
