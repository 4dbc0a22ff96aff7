package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// envReader collects parse failures so every bad key is reported at once.
type envReader struct {
	errs []error
}

// applyEnvOverrides overwrites fields whose environment variable is set and
// non-empty. Unparsable values fail with ErrInvalidValue, except
// SPREAD_THRESHOLD which falls back to the default with a warning.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// market
	e.setStr(&cfg.Market.Symbol, "SYMBOL")
	e.setStr(&cfg.Market.Primary, "PRIMARY_EXCHANGE")
	e.setStr(&cfg.Market.Secondary, "SECONDARY_EXCHANGE")
	e.setThreshold(&cfg.Arbitrage.SpreadThreshold, "SPREAD_THRESHOLD")

	// notify
	e.setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	e.setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	e.setStr(&cfg.Notify.TelegramAPIURL, "TELEGRAM_API_URL")
	e.setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")

	// alert
	e.setDuration(&cfg.Alert.Cooldown, "ALERT_COOLDOWN")
	e.setDuration(&cfg.Alert.Timeout, "ALERT_TIMEOUT")
	e.setInt(&cfg.Alert.QueueSize, "ALERT_QUEUE_SIZE")
	e.setDuration(&cfg.Alert.DrainTimeout, "ALERT_DRAIN_TIMEOUT")
	e.setDuration(&cfg.Monitor.CycleTimeout, "CYCLE_TIMEOUT")

	// app
	e.setStr(&cfg.App.LogLevel, "LOG_LEVEL")
	e.setBool(&cfg.App.ClearScreen, "CLEAR_SCREEN")
	e.setBool(&cfg.App.Color, "COLOR")

	// venues
	e.setStr(&cfg.Exchange.Binance.WsURL, "BINANCE_WS_URL")
	e.setStr(&cfg.Exchange.Bybit.WsURL, "BYBIT_WS_URL")
	e.setStr(&cfg.Exchange.OKX.WsURL, "OKX_WS_URL")
	e.setStr(&cfg.Exchange.Bitget.WsURL, "BITGET_WS_URL")
	e.setStr(&cfg.Exchange.MEXC.WsURL, "MEXC_WS_URL")
	e.setStr(&cfg.Exchange.Bitfinex.WsURL, "BITFINEX_WS_URL")
	e.setStr(&cfg.Exchange.BitMEX.WsURL, "BITMEX_WS_URL")

	// http
	e.setBool(&cfg.HTTP.Enabled, "HTTP_ENABLED")
	e.setStr(&cfg.HTTP.Addr, "HTTP_ADDR")

	// storage
	e.setDuration(&cfg.Storage.WriteTimeout, "STORAGE_WRITE_TIMEOUT")
	e.setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	e.setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	e.setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	e.setInt(&cfg.Redis.DB, "REDIS_DB")
	e.setStr(&cfg.Redis.Prefix, "REDIS_PREFIX")
	e.setDuration(&cfg.Redis.TTL, "REDIS_TTL")
	e.setBool(&cfg.SQLite.Enabled, "SQLITE_ENABLED")
	e.setStr(&cfg.SQLite.Path, "SQLITE_PATH")
	e.setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	e.setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")

	return errors.Join(e.errs...)
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, v, err))
}

func (e *envReader) setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (e *envReader) setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

// setThreshold falls back to the default on bad input, as a missing value does.
func (e *envReader) setThreshold(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn().Str("key", key).Str("value", v).Float64("default", DefaultSpreadThreshold).
				Msg("invalid spread threshold, using default")
			*dst = DefaultSpreadThreshold
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(dst *Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}
