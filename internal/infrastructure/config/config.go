package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"arbwatch/internal/domain"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultPath            = "configs/config.toml"
	DefaultSpreadThreshold = 0.005
)

var (
	ErrMissingMarket      = errors.New("config: primary and secondary market are required")
	ErrSameMarket         = errors.New("config: primary and secondary market must differ")
	ErrMissingSymbol      = errors.New("config: symbol is required")
	ErrInvalidSymbol      = errors.New("config: invalid symbol")
	ErrMissingCredentials = errors.New("config: telegram bot token and chat id are required")
	ErrInvalidValue       = errors.New("config: invalid value")
)

type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Notify    NotifyConfig    `toml:"notify"`
	Alert     AlertConfig     `toml:"alert"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	HTTP      HTTPConfig      `toml:"http"`
	Storage   StorageConfig   `toml:"storage"`
	Redis     RedisConfig     `toml:"redis"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Postgres  PostgresConfig  `toml:"postgres"`
}

type AppConfig struct {
	LogLevel    string `toml:"log_level"`
	ClearScreen bool   `toml:"clear_screen"`
	Color       bool   `toml:"color"`
}

type MarketConfig struct {
	Symbol    string `toml:"symbol"`
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`

	// Pair is parsed from Symbol by Validate.
	Pair domain.Pair `toml:"-"`
}

type ArbitrageConfig struct {
	SpreadThreshold float64 `toml:"spread_threshold"`
}

type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	TelegramAPIURL    string `toml:"telegram_api_url"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

type AlertConfig struct {
	Cooldown     Duration `toml:"cooldown"`
	Timeout      Duration `toml:"timeout"`
	QueueSize    int      `toml:"queue_size"`
	DrainTimeout Duration `toml:"drain_timeout"`
}

type MonitorConfig struct {
	CycleTimeout Duration `toml:"cycle_timeout"`
}

type VenueConfig struct {
	WsURL string `toml:"ws_url"`
}

type ExchangeConfig struct {
	Binance  VenueConfig `toml:"binance"`
	Bybit    VenueConfig `toml:"bybit"`
	OKX      VenueConfig `toml:"okx"`
	Bitget   VenueConfig `toml:"bitget"`
	MEXC     VenueConfig `toml:"mexc"`
	Bitfinex VenueConfig `toml:"bitfinex"`
	BitMEX   VenueConfig `toml:"bitmex"`
}

// WsURL returns the configured websocket endpoint for market id.
func (e ExchangeConfig) WsURL(market string) string {
	switch market {
	case "binance":
		return e.Binance.WsURL
	case "bybit":
		return e.Bybit.WsURL
	case "okx":
		return e.OKX.WsURL
	case "bitget":
		return e.Bitget.WsURL
	case "mexc":
		return e.MEXC.WsURL
	case "bitfinex":
		return e.Bitfinex.WsURL
	case "bitmex":
		return e.BitMEX.WsURL
	}
	return ""
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type StorageConfig struct {
	WriteTimeout Duration `toml:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      Duration `toml:"ttl"`
}

type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// Duration decodes TOML strings such as "5s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Defaults() Config {
	return Config{
		App: AppConfig{
			LogLevel:    "info",
			ClearScreen: true,
			Color:       true,
		},
		Arbitrage: ArbitrageConfig{SpreadThreshold: DefaultSpreadThreshold},
		Notify: NotifyConfig{
			TelegramAPIURL: "https://api.telegram.org",
		},
		Alert: AlertConfig{
			Timeout:      Duration{10 * time.Second},
			QueueSize:    64,
			DrainTimeout: Duration{5 * time.Second},
		},
		Exchange: ExchangeConfig{
			Binance:  VenueConfig{WsURL: "wss://stream.binance.com:9443/ws"},
			Bybit:    VenueConfig{WsURL: "wss://stream.bybit.com/v5/public/spot"},
			OKX:      VenueConfig{WsURL: "wss://ws.okx.com:8443/ws/v5/public"},
			Bitget:   VenueConfig{WsURL: "wss://ws.bitget.com/v2/ws/public"},
			MEXC:     VenueConfig{WsURL: "wss://wbs-api.mexc.com/ws"},
			Bitfinex: VenueConfig{WsURL: "wss://api-pub.bitfinex.com/ws/2"},
			BitMEX:   VenueConfig{WsURL: "wss://ws.bitmex.com/realtime"},
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Storage: StorageConfig{WriteTimeout: Duration{2 * time.Second}},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "arbwatch",
			TTL:    Duration{time.Minute},
		},
		SQLite: SQLiteConfig{Path: "data/arbwatch.db"},
	}
}

// Load merges, in order: defaults, the TOML file at path, .env, environment
// variables. A missing file is only tolerated at DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !(errors.Is(err, fs.ErrNotExist) && path == DefaultPath) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	// .env 不存在时忽略
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	t := cfg.Arbitrage.SpreadThreshold
	if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		cfg.Arbitrage.SpreadThreshold = DefaultSpreadThreshold
	}
	if cfg.Alert.QueueSize <= 0 {
		cfg.Alert.QueueSize = 64
	}
	if cfg.Alert.Timeout.Duration <= 0 {
		cfg.Alert.Timeout.Duration = 10 * time.Second
	}
	if cfg.Alert.Cooldown.Duration < 0 {
		cfg.Alert.Cooldown.Duration = 0
	}
	if cfg.Monitor.CycleTimeout.Duration < 0 {
		cfg.Monitor.CycleTimeout.Duration = 0
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.Market.Primary = strings.ToLower(strings.TrimSpace(cfg.Market.Primary))
	cfg.Market.Secondary = strings.ToLower(strings.TrimSpace(cfg.Market.Secondary))
	cfg.App.LogLevel = strings.ToLower(strings.TrimSpace(cfg.App.LogLevel))
}

// Validate checks required settings and fills Market.Pair.
// Market ids are checked against the feed registry by the service context.
func (c *Config) Validate() error {
	if c.Market.Primary == "" || c.Market.Secondary == "" {
		return ErrMissingMarket
	}
	if c.Market.Primary == c.Market.Secondary {
		return fmt.Errorf("%w: %s", ErrSameMarket, c.Market.Primary)
	}

	if strings.TrimSpace(c.Market.Symbol) == "" {
		return ErrMissingSymbol
	}
	pair, err := domain.ParsePair(c.Market.Symbol)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSymbol, c.Market.Symbol, err)
	}
	c.Market.Pair = pair

	if strings.TrimSpace(c.Notify.TelegramToken) == "" || strings.TrimSpace(c.Notify.TelegramChatID) == "" {
		return ErrMissingCredentials
	}

	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis.addr empty but enabled")
	}
	if c.SQLite.Enabled && strings.TrimSpace(c.SQLite.Path) == "" {
		return errors.New("config: sqlite.path empty but enabled")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		return errors.New("config: postgres.dsn empty but enabled")
	}
	return nil
}
